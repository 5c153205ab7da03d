package executor

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/deskpilot/pkg/action"
	"github.com/odvcencio/deskpilot/pkg/errors"
	"github.com/odvcencio/deskpilot/pkg/guard"
)

type stubLauncher struct {
	apps     []string
	paths    []string
	music    int
	appErr   error
	appOut   string
	musicErr error
}

func (s *stubLauncher) OpenApp(name string) (string, error) {
	s.apps = append(s.apps, name)
	return s.appOut, s.appErr
}

func (s *stubLauncher) PlayMusic() (string, error) {
	s.music++
	return "", s.musicErr
}

func (s *stubLauncher) OpenPath(path string) {
	s.paths = append(s.paths, path)
}

func newTestExecutor(t *testing.T) (*Executor, *stubLauncher, string) {
	t.Helper()
	home := t.TempDir()
	for _, d := range []string{"Desktop", "Documents", "Downloads"} {
		require.NoError(t, os.MkdirAll(filepath.Join(home, d), 0755))
	}
	launcher := &stubLauncher{}
	g := guard.New(home, []string{"~/Desktop", "~/Documents", "~/Downloads"})
	return New(g, launcher, nil), launcher, home
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestPreviewRejectsPathsOutsideRoots(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	actions := []action.Action{&action.Move{Src: "/etc/passwd", DstDir: "~/Documents"}}

	_, err := exec.Preview(actions)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGuardViolation))

	// Execute propagates the same violation and mutates nothing.
	_, err = exec.Execute(actions, true)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGuardViolation))
}

func TestPreviewMoveComputesDestination(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Desktop", "report.pdf"))

	prev, err := exec.Preview([]action.Action{
		&action.Move{Src: "~/Desktop/report.pdf", DstDir: "~/Documents"},
	})
	require.NoError(t, err)
	require.Len(t, prev.Actions, 1)

	assert.Equal(t, filepath.Join(home, "Documents", "report.pdf"), prev.Actions[0].ComputedDst)
	assert.Equal(t, "low", prev.Actions[0].Risk)
	assert.False(t, prev.RequiresConfirm)
}

func TestPreviewMoveOverwriteEscalates(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Desktop", "report.pdf"))
	touch(t, filepath.Join(home, "Documents", "report.pdf"))

	move := &action.Move{Src: "~/Desktop/report.pdf", DstDir: "~/Documents"}
	prev, err := exec.Preview([]action.Action{move})
	require.NoError(t, err)

	assert.True(t, prev.RequiresConfirm)
	assert.Equal(t, "high", prev.Actions[0].Risk)
	assert.Contains(t, prev.Actions[0].Reason, "目标已存在")
	// Preview escalates its entry copy, not the planner's action.
	assert.Equal(t, action.RiskLow, move.Meta().Risk)
}

func TestPreviewRenameExtensionChange(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Documents", "a.txt"))

	tests := []struct {
		name    string
		newName string
		high    bool
	}{
		{"extension change", "a.md", true},
		{"case-only extension change", "a.TXT", false},
		{"same extension", "b.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, err := exec.Preview([]action.Action{
				&action.Rename{Path: "~/Documents/a.txt", NewName: tt.newName},
			})
			require.NoError(t, err)
			if tt.high {
				assert.Equal(t, "high", prev.Actions[0].Risk)
				assert.Contains(t, prev.Actions[0].Reason, "扩展名")
				assert.True(t, prev.RequiresConfirm)
			} else {
				assert.Equal(t, "low", prev.Actions[0].Risk)
			}
		})
	}
}

func TestPreviewRenameCollisionEscalates(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Documents", "a.txt"))
	touch(t, filepath.Join(home, "Documents", "b.txt"))

	prev, err := exec.Preview([]action.Action{
		&action.Rename{Path: "~/Documents/a.txt", NewName: "b.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "high", prev.Actions[0].Risk)
	assert.True(t, prev.RequiresConfirm)
}

func TestPreviewEnsureFolderNonDirectoryCollision(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Documents", "notes"))

	prev, err := exec.Preview([]action.Action{
		&action.EnsureFolder{Path: "~/Documents/notes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "high", prev.Actions[0].Risk)
	assert.Contains(t, prev.Actions[0].Reason, "不是文件夹")
}

func TestPreviewHonorsPlannerEscalation(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Desktop", "a.txt"))

	move := &action.Move{Src: "~/Desktop/a.txt", DstDir: "~/Documents"}
	move.Meta().Escalate(action.RiskHigh, "批量操作较多")

	prev, err := exec.Preview([]action.Action{move})
	require.NoError(t, err)
	assert.True(t, prev.RequiresConfirm)
}

func TestPreviewIsIdempotentAndReadOnly(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Desktop", "report.pdf"))

	actions := []action.Action{
		&action.EnsureFolder{Path: "~/Documents/归档"},
		&action.Move{Src: "~/Desktop/report.pdf", DstDir: "~/Documents/归档"},
	}

	first, err := exec.Preview(actions)
	require.NoError(t, err)
	second, err := exec.Preview(actions)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// No mutation: the folder was not created and the file did not move.
	assert.NoFileExists(t, filepath.Join(home, "Documents", "归档", "report.pdf"))
	assert.NoDirExists(t, filepath.Join(home, "Documents", "归档"))
	assert.FileExists(t, filepath.Join(home, "Desktop", "report.pdf"))
}

func TestExecuteConfirmationGate(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Desktop", "report.pdf"))
	touch(t, filepath.Join(home, "Documents", "report.pdf"))

	actions := []action.Action{&action.Move{Src: "~/Desktop/report.pdf", DstDir: "~/Documents"}}

	resp, err := exec.Execute(actions, false)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "需要确认")
	assert.Empty(t, resp.Results)
	require.NotNil(t, resp.Preview)
	assert.True(t, resp.Preview.RequiresConfirm)
	// Zero mutations happened.
	assert.FileExists(t, filepath.Join(home, "Desktop", "report.pdf"))

	// Re-invoking with confirm proceeds.
	resp, err = exec.Execute(actions, true)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.NoFileExists(t, filepath.Join(home, "Desktop", "report.pdf"))
	assert.FileExists(t, filepath.Join(home, "Documents", "report.pdf"))
}

func TestExecuteMoveScenario(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Desktop", "report.pdf"))

	resp, err := exec.Execute([]action.Action{
		&action.EnsureFolder{Path: "~/Documents"},
		&action.Move{Src: "~/Desktop/report.pdf", DstDir: "~/Documents"},
	}, false)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].OK)
	assert.True(t, resp.Results[1].OK)
	assert.Equal(t, filepath.Join(home, "Documents", "report.pdf"), resp.Results[1].MovedTo)
	assert.FileExists(t, filepath.Join(home, "Documents", "report.pdf"))
}

func TestExecuteRename(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Documents", "report.pdf"))

	resp, err := exec.Execute([]action.Action{
		&action.Rename{Path: "~/Documents/report.pdf", NewName: "总结.pdf"},
	}, false)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, filepath.Join(home, "Documents", "总结.pdf"), resp.Results[0].RenamedTo)
	assert.FileExists(t, filepath.Join(home, "Documents", "总结.pdf"))
}

func TestExecuteRenameTraversalNeutralized(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Documents", "a.txt"))

	resp, err := exec.Execute([]action.Action{
		&action.Rename{Path: "~/Documents/a.txt", NewName: "../escape.txt"},
	}, true)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	// Separators in the new name were replaced, keeping the file in place.
	assert.FileExists(t, filepath.Join(home, "Documents", ".._escape.txt"))
	assert.NoFileExists(t, filepath.Join(home, "escape.txt"))
}

func TestExecuteMissingSourceFailsPerAction(t *testing.T) {
	exec, _, home := newTestExecutor(t)
	touch(t, filepath.Join(home, "Desktop", "real.txt"))

	resp, err := exec.Execute([]action.Action{
		&action.Move{Src: "~/Desktop/ghost.txt", DstDir: "~/Documents"},
		&action.Move{Src: "~/Desktop/real.txt", DstDir: "~/Documents"},
	}, false)
	require.NoError(t, err)

	assert.False(t, resp.OK)
	require.Len(t, resp.Results, 2)
	assert.False(t, resp.Results[0].OK)
	assert.NotEmpty(t, resp.Results[0].Error)
	// The failure did not abort the batch.
	assert.True(t, resp.Results[1].OK)
	assert.FileExists(t, filepath.Join(home, "Documents", "real.txt"))
}

func TestExecuteUnknownKind(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	actions := action.FromEnvelopes([]action.Envelope{{Type: "shred_disk"}})
	resp, err := exec.Execute(actions, false)
	require.NoError(t, err)

	assert.False(t, resp.OK)
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Error, "未知动作类型：shred_disk")
}

func TestExecuteOpenAppAndMusic(t *testing.T) {
	exec, launcher, _ := newTestExecutor(t)

	resp, err := exec.Execute([]action.Action{
		&action.OpenApp{Name: "Calendar"},
		&action.PlayMusic{},
	}, false)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, []string{"Calendar"}, launcher.apps)
	assert.Equal(t, 1, launcher.music)
}

func TestExecuteOpenAppFailureReported(t *testing.T) {
	exec, launcher, _ := newTestExecutor(t)
	launcher.appErr = stderrors.New("exit status 1")
	launcher.appOut = "Unable to find application named 'Nope'"

	resp, err := exec.Execute([]action.Action{&action.OpenApp{Name: "Nope"}}, false)
	require.NoError(t, err)

	assert.False(t, resp.OK)
	assert.Contains(t, resp.Results[0].Error, "打开应用失败：Nope")
	assert.Contains(t, resp.Results[0].Error, "Unable to find application")
}

func TestExecuteOpenPath(t *testing.T) {
	exec, launcher, home := newTestExecutor(t)

	resp, err := exec.Execute([]action.Action{&action.OpenPath{Path: "~/Desktop"}}, false)
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, []string{filepath.Join(home, "Desktop")}, launcher.paths)
}
