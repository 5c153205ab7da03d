package assistant

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/deskpilot/pkg/config"
	"github.com/odvcencio/deskpilot/pkg/errors"
	"github.com/odvcencio/deskpilot/pkg/executor"
	"github.com/odvcencio/deskpilot/pkg/guard"
	"github.com/odvcencio/deskpilot/pkg/llm"
)

type stubChatter struct {
	reply    string
	err      error
	messages []llm.Message
}

func (s *stubChatter) Chat(_ context.Context, messages []llm.Message, _ float64) (string, error) {
	s.messages = messages
	return s.reply, s.err
}

type noopLauncher struct{}

func (noopLauncher) OpenApp(string) (string, error) { return "", nil }
func (noopLauncher) PlayMusic() (string, error)     { return "", nil }
func (noopLauncher) OpenPath(string)                {}

func newTestAssistant(t *testing.T, chat *stubChatter) (*Assistant, *config.Rules, string) {
	t.Helper()
	home := t.TempDir()
	for _, d := range []string{"Desktop", "Documents", "Downloads"} {
		require.NoError(t, os.MkdirAll(filepath.Join(home, d), 0755))
	}
	rules := config.Default(home)
	g := guard.New(home, rules.AllowedRoots)
	exec := executor.New(g, noopLauncher{}, nil)
	return New(chat, exec, nil), rules, home
}

func TestRespondEmptyInstruction(t *testing.T) {
	a, rules, _ := newTestAssistant(t, &stubChatter{reply: "好的。"})
	_, err := a.Respond(context.Background(), rules, Request{Text: "   "})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestRespondExecutesLowRiskPlan(t *testing.T) {
	chat := &stubChatter{reply: "已经帮你移动好了。还有别的需要吗？"}
	a, rules, home := newTestAssistant(t, chat)
	require.NoError(t, os.WriteFile(filepath.Join(home, "Desktop", "report.pdf"), []byte("x"), 0644))

	reply, err := a.Respond(context.Background(), rules, Request{
		Text:    "把 report.pdf 放到 文档",
		History: []llm.Message{{Role: "assistant", Content: "你好"}},
	})
	require.NoError(t, err)
	assert.True(t, reply.Executed)
	require.NotNil(t, reply.Execute)
	assert.True(t, reply.Execute.OK)
	assert.FileExists(t, filepath.Join(home, "Documents", "report.pdf"))
	assert.Equal(t, "已经帮你移动好了。还有别的需要吗？", reply.Reply)

	// The pipeline outcome rides along as a system message for the model.
	last := chat.messages[len(chat.messages)-1]
	assert.Equal(t, "system", last.Role)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Content), &summary))
	assert.Equal(t, true, summary["plan_ok"])
	assert.Equal(t, true, summary["executed"])
}

func TestRespondDefersHighRiskPlan(t *testing.T) {
	chat := &stubChatter{reply: "这个操作会覆盖同名文件，需要你确认一下。"}
	a, rules, home := newTestAssistant(t, chat)
	require.NoError(t, os.WriteFile(filepath.Join(home, "Desktop", "report.pdf"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(home, "Documents", "report.pdf"), []byte("old"), 0644))

	reply, err := a.Respond(context.Background(), rules, Request{
		Text:    "把 report.pdf 放到 文档",
		History: []llm.Message{{Role: "assistant", Content: "你好"}},
	})
	require.NoError(t, err)
	assert.False(t, reply.Executed)
	assert.Nil(t, reply.Execute)
	require.NotNil(t, reply.Preview)
	assert.True(t, reply.Preview.RequiresConfirm)

	// Nothing moved without confirmation.
	data, err := os.ReadFile(filepath.Join(home, "Documents", "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestRespondUnparsedInstruction(t *testing.T) {
	chat := &stubChatter{reply: "抱歉，我没听懂这个指令。可以换个说法吗？"}
	a, rules, _ := newTestAssistant(t, chat)

	reply, err := a.Respond(context.Background(), rules, Request{
		Text:    "毫无意义的输入",
		History: []llm.Message{{Role: "assistant", Content: "你好"}},
	})
	require.NoError(t, err)
	assert.False(t, reply.Executed)
	assert.Empty(t, reply.Actions)

	last := chat.messages[len(chat.messages)-1]
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Content), &summary))
	assert.Equal(t, false, summary["plan_ok"])
	assert.Contains(t, summary["plan_error"], "无法解析指令")
}

func TestRespondAddsIntroOnFirstReply(t *testing.T) {
	chat := &stubChatter{reply: "桌面已经整理好了。"}
	a, rules, _ := newTestAssistant(t, chat)

	reply, err := a.Respond(context.Background(), rules, Request{Text: "打开路径 ~/Documents"})
	require.NoError(t, err)
	assert.Contains(t, reply.Reply, "我是你的桌面助手"+DefaultName)

	// With prior assistant turns the intro is not injected.
	chat.reply = "桌面已经整理好了。"
	reply, err = a.Respond(context.Background(), rules, Request{
		Text:    "打开路径 ~/Documents",
		History: []llm.Message{{Role: "assistant", Content: "你好"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, reply.Reply, "我是你的桌面助手")
}

func TestRespondPropagatesChatError(t *testing.T) {
	chat := &stubChatter{err: errors.New(errors.ErrCodeLLMAPIError, "boom")}
	a, rules, _ := newTestAssistant(t, chat)

	_, err := a.Respond(context.Background(), rules, Request{Text: "打开路径 ~/Documents"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLLMAPIError))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		agent string
	}{
		{"strips emoji and newlines", "已完成🎉。\n还有别的吗？", "已完成。还有别的吗？", ""},
		{"keeps at most two sentences", "一。二！三？", "一。二！", ""},
		{"dedupes repeated sentences", "已完成。已 完成。好的。", "已完成。好的。", ""},
		{"removes duplicate intro", "我是你的桌面助手小T。我是你的桌面助手小T。好的。", "我是你的桌面助手小T。好的。", "小T"},
		{"no trailing separator kept", "只有一句话", "只有一句话", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, tt.agent))
		})
	}
}
