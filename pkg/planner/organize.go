package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/deskpilot/pkg/action"
	"github.com/odvcencio/deskpilot/pkg/config"
	"github.com/odvcencio/deskpilot/pkg/errors"
	"github.com/odvcencio/deskpilot/pkg/guard"
)

// organizeDesktop builds the bulk classification plan: every immediate child
// of the desktop is classified by keyword rules first, then extension rules;
// unclassified files stay in place. Each classified file yields an
// ensure_folder plus a move.
func organizeDesktop(rules *config.Rules) ([]action.Action, error) {
	desktop := rules.Desktop()
	entries, err := os.ReadDir(desktop)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "cannot list desktop").
			WithContext("path", desktop).
			WithUserMessage("无法读取桌面目录")
	}

	var actions []action.Action
	for _, entry := range entries {
		name := entry.Name()
		if rules.SkipHidden && guard.IsHidden(name) {
			continue
		}
		if rules.SkipDirectories && entry.IsDir() {
			continue
		}

		dst := matchKeywordRule(rules, name)
		if dst == "" {
			dst = matchExtensionRule(rules, name)
		}
		if dst == "" {
			continue // unclassified: leave in place
		}

		actions = append(actions,
			&action.EnsureFolder{Path: dst},
			&action.Move{Src: filepath.Join(desktop, name), DstDir: dst},
		)
	}

	escalateBatch(rules, actions)
	return actions, nil
}

// escalateBatch applies the blanket batch escalation: once the plan reaches
// the configured threshold of classified files (two actions each), every move
// and rename in the batch is marked high risk.
func escalateBatch(rules *config.Rules, actions []action.Action) {
	if len(actions) < rules.BatchRiskThreshold*2 {
		return
	}
	reason := fmt.Sprintf("批量操作较多（>%d 个文件），建议确认后执行", rules.BatchRiskThreshold)
	for _, a := range actions {
		switch a.(type) {
		case *action.Move, *action.Rename:
			a.Meta().Escalate(action.RiskHigh, reason)
		}
	}
}

// matchKeywordRule returns the destination of the first keyword rule, in
// declared order, whose keyword appears case-insensitively in the filename.
func matchKeywordRule(rules *config.Rules, filename string) string {
	low := strings.ToLower(filename)
	for _, rule := range rules.KeywordRules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(low, strings.ToLower(kw)) {
				return rule.DstDir
			}
		}
	}
	return ""
}

// matchExtensionRule looks up the lowercased, dot-stripped extension.
func matchExtensionRule(rules *config.Rules, filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return ""
	}
	return rules.ExtensionRules[ext]
}
