package executor

import (
	"os/exec"
	"strings"
)

// Launcher abstracts the OS primitives for opening applications, starting
// music playback, and revealing paths. The calls block with no internal
// timeout; a hang in the OS primitive hangs the request.
type Launcher interface {
	// OpenApp launches an application by display name. On failure the
	// returned string carries the primitive's diagnostic output.
	OpenApp(name string) (string, error)
	// PlayMusic activates the default music application and starts playback.
	PlayMusic() (string, error)
	// OpenPath reveals a path in the system file browser. Fire-and-forget:
	// the call's own failure is not reported.
	OpenPath(path string)
}

const playMusicScript = "tell application \"Music\"\nactivate\nplay\nend tell"

// SystemLauncher shells out to the macOS open/osascript primitives.
type SystemLauncher struct{}

func (SystemLauncher) OpenApp(name string) (string, error) {
	out, err := exec.Command("open", "-a", name).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (SystemLauncher) PlayMusic() (string, error) {
	out, err := exec.Command("osascript", "-e", playMusicScript).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (SystemLauncher) OpenPath(path string) {
	_ = exec.Command("open", path).Run()
}
