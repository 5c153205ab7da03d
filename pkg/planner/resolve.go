package planner

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/odvcencio/deskpilot/pkg/config"
	"github.com/odvcencio/deskpilot/pkg/guard"
)

// locationPrefixPattern splits a bare token into a leading location word and
// an optional remainder name. Alternation order matters: Go regexp alternation
// is leftmost-first, so 下载 wins over 下载目录 and the particle list prefers
// its earlier entries, matching the resolution behavior users already rely on.
var locationPrefixPattern = regexp.MustCompile(
	`^(?P<loc>桌面|文稿|文档|下载|下载目录|下载文件夹)(?:下的|里的|中的|下面的|上面的|上的|上面|下面|上|下|里|中)?\s*(?P<name>.*)$`)

// folderSuffixPattern strips trailing 文件夹/locative particles from a folder
// token ("工作文件夹里" -> "工作").
var folderSuffixPattern = regexp.MustCompile(`(?:文件夹)?(?:下面|下|里|中)?$`)

func expandPath(rules *config.Rules, path string) string {
	g := guard.New(rules.HomeDir, nil)
	return filepath.Clean(g.ExpandHome(path))
}

// resolveInputFile maps a file token to a concrete source path. Explicit
// paths pass through; a bare name resolves under its location prefix or, by
// default, the desktop.
func resolveInputFile(rules *config.Rules, fileToken string) string {
	if strings.Contains(fileToken, "/") || strings.HasPrefix(fileToken, "~") {
		return expandPath(rules, fileToken)
	}
	if base, name, ok := splitLocationPrefix(rules, fileToken); ok {
		return resolveExistingFile(base, name)
	}
	return resolveExistingFile(rules.Desktop(), fileToken)
}

// resolveExistingFile returns the path for name under baseDir. When the exact
// name is absent on disk, a same-stem entry is accepted only if it is the
// unique candidate; an ambiguous or empty match returns the literal
// non-existent path, deferring the not-found failure to execution time.
func resolveExistingFile(baseDir, name string) string {
	candidate := filepath.Join(baseDir, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return candidate
	}
	var matches []string
	for _, entry := range entries {
		entryName := entry.Name()
		stem := strings.TrimSuffix(entryName, filepath.Ext(entryName))
		if entryName == name || stem == name {
			matches = append(matches, filepath.Join(baseDir, entryName))
		}
	}
	if len(matches) == 1 {
		return matches[0]
	}
	return candidate
}

// resolveInputFolder maps a folder token to a destination directory path.
// Explicit paths pass through verbatim (the executor expands them); bare
// tokens try the location grammar, then existing subdirectories of the
// default roots, then root synonyms, and finally fall back to a new
// subdirectory under Documents.
func resolveInputFolder(rules *config.Rules, folder string) string {
	if strings.Contains(folder, "/") || strings.HasPrefix(folder, "~") {
		return folder
	}
	folder = normalizeFolderText(folder)

	if base, name, ok := splitLocationPrefix(rules, folder); ok {
		if name != "" {
			return filepath.Join(base, name)
		}
		return base
	}

	if existing := resolveExistingFolder(rules, folder); existing != "" {
		return existing
	}

	switch folder {
	case "桌面", "桌面上", "桌面里", "桌面中":
		return rules.Desktop()
	case "文稿", "文档", "文稿里", "文稿中", "文档里", "文档中":
		return rules.Documents()
	case "下载", "下载目录", "下载文件夹", "下载里", "下载中":
		return rules.Downloads()
	}

	return filepath.Join(rules.Documents(), folder)
}

// splitLocationPrefix resolves a leading location word to its root directory
// and returns the remainder as a relative name.
func splitLocationPrefix(rules *config.Rules, text string) (base, name string, ok bool) {
	m := locationPrefixPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", text, false
	}
	loc, rest := m[1], strings.TrimSpace(m[2])

	switch loc {
	case "桌面":
		return rules.Desktop(), rest, true
	case "文稿", "文档":
		return rules.Documents(), rest, true
	case "下载", "下载目录", "下载文件夹":
		return rules.Downloads(), rest, true
	}
	return "", text, false
}

func normalizeFolderText(text string) string {
	return strings.TrimSpace(folderSuffixPattern.ReplaceAllString(strings.TrimSpace(text), ""))
}

// resolveExistingFolder looks for an existing subdirectory with this name
// under the default roots, in fixed order.
func resolveExistingFolder(rules *config.Rules, name string) string {
	for _, base := range []string{rules.Desktop(), rules.Documents(), rules.Downloads()} {
		candidate := filepath.Join(base, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}

// appAliases maps common Chinese application names to their launcher names.
// Unrecognized names pass through verbatim.
var appAliases = map[string]string{
	"音乐":      "Music",
	"音乐app":   "Music",
	"apple music": "Music",
	"日历":      "Calendar",
	"备忘录":     "Notes",
	"提醒事项":    "Reminders",
	"通讯录":     "Contacts",
	"日程":      "Calendar",
	"邮件":      "Mail",
	"邮件.app":  "Mail",
	"计算器":     "Calculator",
	"终端":      "Terminal",
	"系统设置":    "System Settings",
	"系统偏好设置":  "System Settings",
	"相册":      "Photos",
}

func resolveAppName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if resolved, ok := appAliases[key]; ok {
		return resolved
	}
	return strings.TrimSpace(name)
}
