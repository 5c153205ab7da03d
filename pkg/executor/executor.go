// Package executor validates planned actions against the path guard, computes
// a read-only preview with risk escalation, and performs the actual mutations
// behind a confirmation gate.
package executor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/deskpilot/pkg/action"
	"github.com/odvcencio/deskpilot/pkg/errors"
	"github.com/odvcencio/deskpilot/pkg/guard"
	"github.com/odvcencio/deskpilot/pkg/logging"
)

const permissionRemediation = "权限不足，无法访问路径：%v。请在 macOS 系统设置 > 隐私与安全性 中为运行本服务的终端/应用授权“文件与文件夹”或“完全磁盘访问”。"

// Entry is one previewed action: its wire form plus the computed destination
// and any risk escalation the preview applied. Escalations live on the entry
// copy; the planner's action values are never mutated by preview.
type Entry struct {
	action.Envelope
	ComputedDst  string `json:"computed_dst,omitempty"`
	ComputedPath string `json:"computed_path,omitempty"`
}

// Preview is the read-only result of checking an action batch.
type Preview struct {
	Actions         []Entry `json:"actions"`
	RequiresConfirm bool    `json:"requires_confirm"`
}

// Result records the outcome of one executed action. Failures are reported
// here, never raised; one action's failure does not abort the batch.
type Result struct {
	Action    action.Envelope `json:"action"`
	OK        bool            `json:"ok"`
	MovedTo   string          `json:"moved_to,omitempty"`
	RenamedTo string          `json:"renamed_to,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Response is the outcome of an execute call. OK is the conjunction of all
// per-action results.
type Response struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Results []Result `json:"results"`
	Preview *Preview `json:"preview"`
}

// Executor runs validated actions inside the guard boundary.
type Executor struct {
	guard    *guard.Guard
	launcher Launcher
	log      *logging.Logger
}

// New builds an executor. The logger is optional.
func New(g *guard.Guard, launcher Launcher, log *logging.Logger) *Executor {
	if launcher == nil {
		launcher = SystemLauncher{}
	}
	return &Executor{guard: g, launcher: launcher, log: log}
}

// Guard exposes the executor's guard boundary.
func (e *Executor) Guard() *guard.Guard {
	return e.guard
}

// Preview computes destinations and risk for a batch without touching the
// filesystem. Guard violations propagate as errors rather than being folded
// into the result: a batch referencing a path outside the allowed roots is
// rejected wholesale.
func (e *Executor) Preview(actions []action.Action) (*Preview, error) {
	prev := &Preview{Actions: make([]Entry, 0, len(actions))}

	for _, a := range actions {
		entry := Entry{Envelope: a.Envelope()}

		switch act := a.(type) {
		case *action.Move:
			if err := e.checkPaths(act.Src, act.DstDir); err != nil {
				return nil, err
			}
			src := e.expand(act.Src)
			dst := guard.SafeJoin(e.expand(act.DstDir), filepath.Base(src))
			entry.ComputedDst = dst
			if pathExists(dst) {
				entry.escalate("目标已存在，可能覆盖同名文件")
			}

		case *action.Rename:
			if err := e.checkPaths(act.Path); err != nil {
				return nil, err
			}
			src := e.expand(act.Path)
			dst := guard.SafeJoin(filepath.Dir(src), act.NewName)
			entry.ComputedDst = dst
			if pathExists(dst) {
				entry.escalate("重命名目标已存在，可能覆盖同名文件")
			}
			// Fires independently of the collision rule.
			srcExt, dstExt := filepath.Ext(src), filepath.Ext(dst)
			if srcExt != "" && dstExt != "" && !strings.EqualFold(srcExt, dstExt) {
				entry.escalate("改变了文件扩展名，属于高风险操作")
			}

		case *action.EnsureFolder:
			if err := e.checkPaths(act.Path); err != nil {
				return nil, err
			}
			folder := e.expand(act.Path)
			entry.ComputedPath = folder
			if info, err := os.Stat(folder); err == nil && !info.IsDir() {
				entry.escalate("同名路径存在但不是文件夹")
			}

		case *action.OpenPath:
			if err := e.checkPaths(act.Path); err != nil {
				return nil, err
			}
		}

		// Escalations carried in from the planner (batch risk) gate the
		// batch just like the preview's own.
		if entry.Risk == action.RiskHigh.String() {
			prev.RequiresConfirm = true
		}
		prev.Actions = append(prev.Actions, entry)
	}

	return prev, nil
}

// Execute re-runs preview, applies the confirmation gate, and then processes
// actions strictly in order with per-action failure isolation.
func (e *Executor) Execute(actions []action.Action, confirm bool) (*Response, error) {
	prev, err := e.Preview(actions)
	if err != nil {
		return nil, err
	}

	if prev.RequiresConfirm && !confirm {
		return &Response{
			OK:      false,
			Error:   "存在高风险操作，需要确认后才能执行",
			Results: []Result{},
			Preview: prev,
		}, nil
	}

	resp := &Response{OK: true, Results: make([]Result, 0, len(actions)), Preview: prev}
	for _, a := range actions {
		result := e.run(a)
		if !result.OK {
			resp.OK = false
		}
		e.logResult(a, result)
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

// run performs one action's mutation, translating failures into the result.
func (e *Executor) run(a action.Action) Result {
	result := Result{Action: a.Envelope()}

	switch act := a.(type) {
	case *action.EnsureFolder:
		folder := e.expand(act.Path)
		if err := e.guard.Check(folder); err != nil {
			return result.fail(guardMessage(err))
		}
		if err := os.MkdirAll(folder, 0755); err != nil {
			return result.fail(osMessage(err))
		}
		result.OK = true

	case *action.Move:
		src, dstDir := e.expand(act.Src), e.expand(act.DstDir)
		if err := e.guard.Check(src); err != nil {
			return result.fail(guardMessage(err))
		}
		if err := e.guard.Check(dstDir); err != nil {
			return result.fail(guardMessage(err))
		}
		if err := os.MkdirAll(dstDir, 0755); err != nil {
			return result.fail(osMessage(err))
		}
		dst := guard.SafeJoin(dstDir, filepath.Base(src))
		if err := movePath(src, dst); err != nil {
			return result.fail(osMessage(err))
		}
		result.OK = true
		result.MovedTo = dst

	case *action.Rename:
		src := e.expand(act.Path)
		if err := e.guard.Check(src); err != nil {
			return result.fail(guardMessage(err))
		}
		dst := guard.SafeJoin(filepath.Dir(src), act.NewName)
		if err := os.Rename(src, dst); err != nil {
			return result.fail(osMessage(err))
		}
		result.OK = true
		result.RenamedTo = dst

	case *action.OpenApp:
		if out, err := e.launcher.OpenApp(act.Name); err != nil {
			msg := "打开应用失败：" + act.Name
			if out != "" {
				msg += "\n" + out
			}
			return result.fail(msg)
		}
		result.OK = true

	case *action.PlayMusic:
		if out, err := e.launcher.PlayMusic(); err != nil {
			msg := "播放失败"
			if out != "" {
				msg += "\n" + out
			}
			return result.fail(msg)
		}
		result.OK = true

	case *action.OpenPath:
		path := e.expand(act.Path)
		if err := e.guard.Check(path); err != nil {
			return result.fail(guardMessage(err))
		}
		// Fire-and-forget: only the guard check can fail this action.
		e.launcher.OpenPath(path)
		result.OK = true

	default:
		return result.fail("未知动作类型：" + string(a.Kind()))
	}

	return result
}

func (e *Executor) expand(path string) string {
	return filepath.Clean(e.guard.ExpandHome(path))
}

func (e *Executor) checkPaths(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := e.guard.Check(p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) logResult(a action.Action, result Result) {
	if e.log == nil {
		return
	}
	details := map[string]any{"type": string(a.Kind()), "ok": result.OK}
	if result.Error != "" {
		details["error"] = result.Error
		e.log.Warn(logging.CategoryExecutor, "action_failed", "action failed", details)
		return
	}
	e.log.Info(logging.CategoryExecutor, "action_executed", "action executed", details)
}

func (en *Entry) escalate(reason string) {
	en.Risk = action.RiskHigh.String()
	en.Reason = reason
}

func (r Result) fail(msg string) Result {
	r.OK = false
	r.Error = msg
	return r
}

func guardMessage(err error) string {
	if dpErr, ok := err.(*errors.Error); ok {
		return "安全拦截：" + dpErr.UserFacing()
	}
	return "安全拦截：" + err.Error()
}

// osMessage maps OS failures to user-facing text, with remediation guidance
// for permission refusals.
func osMessage(err error) string {
	if os.IsPermission(err) {
		return fmt.Sprintf(permissionRemediation, err)
	}
	return err.Error()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// movePath renames src to dst, falling back to copy-and-delete for regular
// files when the rename crosses filesystems.
func movePath(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if _, ok := err.(*os.LinkError); !ok {
		return err
	}

	info, statErr := os.Stat(src)
	if statErr != nil || !info.Mode().IsRegular() {
		return err
	}
	if copyErr := copyFile(src, dst, info.Mode()); copyErr != nil {
		return copyErr
	}
	return os.Remove(src)
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
