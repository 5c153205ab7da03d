// Package planner turns free-form Chinese file-organization commands into
// ordered action lists. Parsing is rule-based: a fixed cascade of intent
// families is tried in priority order and the first match wins. There is no
// scoring and no LLM fallback; anything outside the known families fails with
// a help message.
package planner

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/odvcencio/deskpilot/pkg/action"
	"github.com/odvcencio/deskpilot/pkg/config"
	"github.com/odvcencio/deskpilot/pkg/errors"
)

var (
	movePattern = regexp.MustCompile(
		`^(?:把|将)\s*(?P<file>.+?)\s*(?:放到|放入|放进|移动到|移到|移动至|移至)\s*(?P<folder>.+?)(?:\s*(?:并)?(?:重命名为|重命名成|改名为|改名成)\s*(?P<newname>.+))?\s*$`)
	playMusicPattern = regexp.MustCompile(`^(?:打开)?音乐.*(?:自动播放|播放)`)
	openAppPattern   = regexp.MustCompile(`^(?:打开软件|打开|打开应用)\s*(?P<app>.+?)\s*$`)
	openPathPattern  = regexp.MustCompile(`^(?:打开路径|打开文件夹|打开目录)\s*(?P<path>.+?)\s*$`)
)

// organizePhrases trigger the bulk desktop-organize plan when contained in
// the command.
var organizePhrases = []string{
	"整理桌面", "整理一下桌面", "整理桌面文件", "整理桌面并分类",
	"整理桌面文件并分类", "分类桌面", "分类桌面文件",
}

const helpMessage = "无法解析指令。可试试：整理桌面文件并分类 / 把 XXX 移动到 YYY 并重命名为 ZZZ / 打开软件 AppName / 打开路径 /path"

// matcher pairs an intent family with its plan builder. Returning ok=false
// passes the command to the next family.
type matcher struct {
	name string
	plan func(rules *config.Rules, text string) ([]action.Action, bool, error)
}

// matchers is the intent cascade in strict priority order. openPath must run
// before openApp: 打开路径 would otherwise parse as opening an app named
// 路径 <path>.
var matchers = []matcher{
	{"open_path", planOpenPath},
	{"move", planMove},
	{"play_music", planPlayMusic},
	{"open_app", planOpenApp},
	{"organize", planOrganize},
}

// Plan converts a raw command into an ordered action list. The rules handle
// is loaded fresh by the caller for each request.
func Plan(rules *config.Rules, text string) ([]action.Action, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty command").
			WithUserMessage("请输入指令")
	}

	for _, m := range matchers {
		actions, ok, err := m.plan(rules, text)
		if err != nil {
			return nil, err
		}
		if ok {
			return actions, nil
		}
	}

	return nil, errors.New(errors.ErrCodeUnparsedInput, "no intent family matched").
		WithContext("text", text).
		WithUserMessage(helpMessage)
}

func planOpenPath(rules *config.Rules, text string) ([]action.Action, bool, error) {
	m := openPathPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false, nil
	}
	path := strings.TrimSpace(m[1])
	return []action.Action{&action.OpenPath{Path: path}}, true, nil
}

func planMove(rules *config.Rules, text string) ([]action.Action, bool, error) {
	m := movePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false, nil
	}

	fileToken := trimQuotes(strings.TrimSpace(m[1]))
	folder := resolveInputFolder(rules, trimQuotes(strings.TrimSpace(m[2])))
	newName := m[3]

	src := resolveInputFile(rules, fileToken)
	actions := []action.Action{
		&action.EnsureFolder{Path: folder},
		&action.Move{Src: src, DstDir: folder},
	}
	if newName != "" {
		// The rename targets the post-move location: resolved folder plus the
		// source file's base name.
		dstPath := filepath.Join(expandPath(rules, folder), filepath.Base(src))
		actions = append(actions, &action.Rename{Path: dstPath, NewName: strings.TrimSpace(newName)})
	}
	return actions, true, nil
}

func planPlayMusic(rules *config.Rules, text string) ([]action.Action, bool, error) {
	if !playMusicPattern.MatchString(text) {
		return nil, false, nil
	}
	return []action.Action{&action.PlayMusic{}}, true, nil
}

func planOpenApp(rules *config.Rules, text string) ([]action.Action, bool, error) {
	m := openAppPattern.FindStringSubmatch(text)
	// 打开路径 belongs to the open_path family even when no path followed it.
	if m == nil || strings.HasPrefix(text, "打开路径") {
		return nil, false, nil
	}
	app := resolveAppName(strings.TrimSpace(m[1]))
	return []action.Action{&action.OpenApp{Name: app}}, true, nil
}

func planOrganize(rules *config.Rules, text string) ([]action.Action, bool, error) {
	matched := false
	for _, phrase := range organizePhrases {
		if strings.Contains(text, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false, nil
	}
	actions, err := organizeDesktop(rules)
	if err != nil {
		return nil, true, err
	}
	return actions, true, nil
}

func trimQuotes(s string) string {
	return strings.Trim(s, `"'`)
}
