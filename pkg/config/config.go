// Package config loads the classification rules that drive planning. The
// rules file is re-read at the start of every planning request so edits take
// effect without a restart; there is no caching and no cross-request locking.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/deskpilot/pkg/errors"
	"github.com/odvcencio/deskpilot/pkg/guard"
)

// Default configuration values
const (
	DefaultBatchRiskThreshold = 20
)

// DefaultAllowedRoots are the roots guarded when the rules file names none.
var DefaultAllowedRoots = []string{"~/Desktop", "~/Documents", "~/Downloads"}

// KeywordRule routes files whose name contains one of the keywords
// (case-insensitive) to a destination directory. Rules apply in declared
// order; the first hit wins.
type KeywordRule struct {
	Keywords []string `yaml:"keywords"`
	DstDir   string   `yaml:"dst_dir"`
}

// Rules is the planner configuration loaded from the rules file.
type Rules struct {
	AllowedRoots       []string          `yaml:"allowed_roots"`
	KeywordRules       []KeywordRule     `yaml:"keyword_rules"`
	ExtensionRules     map[string]string `yaml:"extension_rules"`
	SkipHidden         bool              `yaml:"skip_hidden"`
	SkipDirectories    bool              `yaml:"skip_directories"`
	BatchRiskThreshold int               `yaml:"batch_risk_threshold"`

	// HomeDir anchors ~ expansion and the default location roots. Threaded
	// explicitly instead of read from the environment so tests can point it
	// at a scratch directory.
	HomeDir string `yaml:"-"`
}

// rawRules mirrors Rules with pointer booleans so absent keys can fall back
// to their defaults (both skip flags default to true).
type rawRules struct {
	AllowedRoots       []string          `yaml:"allowed_roots"`
	KeywordRules       []KeywordRule     `yaml:"keyword_rules"`
	ExtensionRules     map[string]string `yaml:"extension_rules"`
	SkipHidden         *bool             `yaml:"skip_hidden"`
	SkipDirectories    *bool             `yaml:"skip_directories"`
	BatchRiskThreshold *int              `yaml:"batch_risk_threshold"`
}

// Load reads and parses the rules file. Call it once per planning request.
func Load(path, home string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "cannot read rules file").
			WithContext("path", path).
			WithUserMessage("无法读取规则文件").
			WithRemediation("check that the rules file exists and is readable: " + path)
	}
	return Parse(data, home)
}

// Parse decodes a rules document and applies defaults.
func Parse(data []byte, home string) (*Rules, error) {
	var raw rawRules
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigParse, "cannot parse rules file").
			WithUserMessage("规则文件格式有误")
	}

	rules := &Rules{
		AllowedRoots:       raw.AllowedRoots,
		KeywordRules:       raw.KeywordRules,
		ExtensionRules:     raw.ExtensionRules,
		SkipHidden:         true,
		SkipDirectories:    true,
		BatchRiskThreshold: DefaultBatchRiskThreshold,
		HomeDir:            home,
	}
	if len(rules.AllowedRoots) == 0 {
		rules.AllowedRoots = append([]string{}, DefaultAllowedRoots...)
	}
	if rules.ExtensionRules == nil {
		rules.ExtensionRules = map[string]string{}
	}
	if raw.SkipHidden != nil {
		rules.SkipHidden = *raw.SkipHidden
	}
	if raw.SkipDirectories != nil {
		rules.SkipDirectories = *raw.SkipDirectories
	}
	if raw.BatchRiskThreshold != nil {
		rules.BatchRiskThreshold = *raw.BatchRiskThreshold
	}
	return rules, nil
}

// Default returns the built-in rules used when no rules file is configured.
func Default(home string) *Rules {
	return &Rules{
		AllowedRoots:       append([]string{}, DefaultAllowedRoots...),
		ExtensionRules:     map[string]string{},
		SkipHidden:         true,
		SkipDirectories:    true,
		BatchRiskThreshold: DefaultBatchRiskThreshold,
		HomeDir:            home,
	}
}

// ExpandPath expands a leading ~ against the configured home directory.
func (r *Rules) ExpandPath(path string) string {
	g := guard.New(r.HomeDir, nil)
	return g.ExpandHome(path)
}

// Desktop returns the resolved desktop directory.
func (r *Rules) Desktop() string { return filepath.Join(r.HomeDir, "Desktop") }

// Documents returns the resolved documents directory.
func (r *Rules) Documents() string { return filepath.Join(r.HomeDir, "Documents") }

// Downloads returns the resolved downloads directory.
func (r *Rules) Downloads() string { return filepath.Join(r.HomeDir, "Downloads") }
