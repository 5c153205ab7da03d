// Package action defines the planned filesystem/application operations that
// the planner emits and the executor consumes, along with their risk metadata
// and JSON wire format.
package action

// Kind identifies an action variant on the wire.
type Kind string

const (
	KindEnsureFolder Kind = "ensure_folder"
	KindMove         Kind = "move"
	KindRename       Kind = "rename"
	KindOpenApp      Kind = "open_app"
	KindOpenPath     Kind = "open_path"
	KindPlayMusic    Kind = "play_music"
)

// Risk is an ordered severity level attached to an action.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

// String returns the wire name of the risk level.
func (r Risk) String() string {
	switch r {
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "low"
	}
}

// ParseRisk converts a wire string to a risk level. Unknown values map to low,
// matching the default on the wire.
func ParseRisk(s string) Risk {
	switch s {
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	default:
		return RiskLow
	}
}

// Meta carries the mutable risk metadata shared by all action variants.
type Meta struct {
	Risk   Risk
	Reason string
}

// Escalate upgrades risk monotonically. A lower or equal risk never overwrites
// a higher one set by an earlier stage.
func (m *Meta) Escalate(risk Risk, reason string) {
	if risk < m.Risk {
		return
	}
	m.Risk = risk
	m.Reason = reason
}

// Action is one planned operation. Variants are a closed set; the executor
// dispatches on the concrete type.
type Action interface {
	Kind() Kind
	// Meta returns the shared risk metadata for in-place escalation.
	Meta() *Meta
	// Envelope serializes the action to its wire form.
	Envelope() Envelope
}

// EnsureFolder creates a directory (recursively, idempotent).
type EnsureFolder struct {
	Path string
	meta Meta
}

// Move relocates Src into DstDir keeping its base name.
type Move struct {
	Src    string
	DstDir string
	meta   Meta
}

// Rename renames Path to NewName within its parent directory.
type Rename struct {
	Path    string
	NewName string
	meta    Meta
}

// OpenApp launches an application by display name.
type OpenApp struct {
	Name string
	meta Meta
}

// OpenPath reveals a path in the system file browser.
type OpenPath struct {
	Path string
	meta Meta
}

// PlayMusic activates the default music application and starts playback.
type PlayMusic struct {
	meta Meta
}

// Unknown preserves an unrecognized wire kind so the executor can report it
// per-action instead of failing the whole batch.
type Unknown struct {
	TypeName string
	meta     Meta
}

func (a *EnsureFolder) Kind() Kind { return KindEnsureFolder }
func (a *Move) Kind() Kind         { return KindMove }
func (a *Rename) Kind() Kind       { return KindRename }
func (a *OpenApp) Kind() Kind      { return KindOpenApp }
func (a *OpenPath) Kind() Kind     { return KindOpenPath }
func (a *PlayMusic) Kind() Kind    { return KindPlayMusic }
func (a *Unknown) Kind() Kind      { return Kind(a.TypeName) }

func (a *EnsureFolder) Meta() *Meta { return &a.meta }
func (a *Move) Meta() *Meta         { return &a.meta }
func (a *Rename) Meta() *Meta       { return &a.meta }
func (a *OpenApp) Meta() *Meta      { return &a.meta }
func (a *OpenPath) Meta() *Meta     { return &a.meta }
func (a *PlayMusic) Meta() *Meta    { return &a.meta }
func (a *Unknown) Meta() *Meta      { return &a.meta }

func (a *EnsureFolder) Envelope() Envelope {
	return envelopeFor(a, Envelope{Path: a.Path})
}

func (a *Move) Envelope() Envelope {
	return envelopeFor(a, Envelope{Src: a.Src, DstDir: a.DstDir})
}

func (a *Rename) Envelope() Envelope {
	return envelopeFor(a, Envelope{Path: a.Path, NewName: a.NewName})
}

func (a *OpenApp) Envelope() Envelope {
	return envelopeFor(a, Envelope{Name: a.Name})
}

func (a *OpenPath) Envelope() Envelope {
	return envelopeFor(a, Envelope{Path: a.Path})
}

func (a *PlayMusic) Envelope() Envelope {
	return envelopeFor(a, Envelope{})
}

func (a *Unknown) Envelope() Envelope {
	return envelopeFor(a, Envelope{})
}

func envelopeFor(a Action, env Envelope) Envelope {
	env.Type = string(a.Kind())
	env.Risk = a.Meta().Risk.String()
	env.Reason = a.Meta().Reason
	return env
}
