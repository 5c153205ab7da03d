// Package guard enforces path containment for filesystem actions. Every
// mutating operation must resolve inside one of the configured allowed roots;
// the guard canonicalizes paths (home expansion, absolute, symlinks resolved)
// before checking so symlinks and relative tricks cannot escape the boundary.
package guard

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/deskpilot/pkg/errors"
)

// Guard checks paths against a fixed set of allowed roots.
type Guard struct {
	home  string
	roots []string
}

// New builds a guard from the configured roots. Roots are expanded against
// home and canonicalized once at construction.
func New(home string, roots []string) *Guard {
	g := &Guard{home: home}
	for _, r := range roots {
		canonical, err := g.Canonicalize(r)
		if err != nil {
			continue
		}
		g.roots = append(g.roots, canonical)
	}
	return g
}

// Roots returns the canonical allowed roots.
func (g *Guard) Roots() []string {
	out := make([]string, len(g.roots))
	copy(out, g.roots)
	return out
}

// Check returns a GUARD_VIOLATION error when path does not resolve to an
// allowed root or a descendant of one.
func (g *Guard) Check(path string) error {
	if g.Allows(path) {
		return nil
	}
	return errors.New(errors.ErrCodeGuardViolation, "path outside allowed roots").
		WithContext("path", path).
		WithUserMessage("路径不在允许范围内：" + path)
}

// Allows reports whether path is equal to or under any allowed root,
// evaluated on the canonicalized path.
func (g *Guard) Allows(path string) bool {
	canonical, err := g.Canonicalize(path)
	if err != nil {
		return false
	}
	for _, root := range g.roots {
		if canonical == root || strings.HasPrefix(canonical, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Canonicalize expands the home prefix, makes the path absolute, and resolves
// symlinks. Non-existent leaves resolve through their nearest existing parent
// so planned destinations can be checked before they exist.
func (g *Guard) Canonicalize(path string) (string, error) {
	expanded := g.ExpandHome(path)

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}

	canonical, err := resolveSymlinksWalkUp(absPath)
	if err != nil {
		return absPath, nil
	}
	return canonical, nil
}

// ExpandHome rewrites a leading ~ to the guard's home directory.
func (g *Guard) ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" {
		return g.home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(g.home, path[2:])
	}
	return path
}

// SafeJoin joins a filename onto a directory, neutralizing path separators in
// the name so a crafted new_name cannot traverse out of the directory.
func SafeJoin(dir, name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return filepath.Join(dir, name)
}

// IsHidden reports whether a directory entry name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// resolveSymlinksWalkUp resolves symlinks, walking up the directory tree past
// components that do not exist yet and rebuilding the path from the deepest
// resolvable parent.
func resolveSymlinksWalkUp(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}

	resolvedParent, err := resolveSymlinksWalkUp(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// Home returns the home directory the guard expands ~ against.
func (g *Guard) Home() string {
	return g.home
}

// UserHome returns the current user's home directory, falling back to the
// HOME environment variable.
func UserHome() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return os.Getenv("HOME")
}
