package action

import "encoding/json"

// Envelope is the wire form of an action: the variant tag plus whichever
// optional fields the variant uses. Absent fields are omitted; risk and reason
// are always present.
type Envelope struct {
	Type    string `json:"type"`
	Src     string `json:"src,omitempty"`
	DstDir  string `json:"dst_dir,omitempty"`
	Path    string `json:"path,omitempty"`
	NewName string `json:"new_name,omitempty"`
	Name    string `json:"name,omitempty"`
	Risk    string `json:"risk"`
	Reason  string `json:"reason"`
}

// Action reconstructs the typed action from the envelope. Unrecognized types
// decode to *Unknown rather than erroring, so malformed actions surface as
// per-action failures at execution time.
func (e Envelope) Action() Action {
	meta := Meta{Risk: ParseRisk(e.Risk), Reason: e.Reason}
	switch Kind(e.Type) {
	case KindEnsureFolder:
		return &EnsureFolder{Path: e.Path, meta: meta}
	case KindMove:
		return &Move{Src: e.Src, DstDir: e.DstDir, meta: meta}
	case KindRename:
		return &Rename{Path: e.Path, NewName: e.NewName, meta: meta}
	case KindOpenApp:
		return &OpenApp{Name: e.Name, meta: meta}
	case KindOpenPath:
		return &OpenPath{Path: e.Path, meta: meta}
	case KindPlayMusic:
		return &PlayMusic{meta: meta}
	default:
		return &Unknown{TypeName: e.Type, meta: meta}
	}
}

// Decode parses a JSON list of wire actions.
func Decode(data []byte) ([]Action, error) {
	var envs []Envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, err
	}
	return FromEnvelopes(envs), nil
}

// FromEnvelopes converts wire envelopes to typed actions.
func FromEnvelopes(envs []Envelope) []Action {
	actions := make([]Action, len(envs))
	for i, env := range envs {
		actions[i] = env.Action()
	}
	return actions
}

// Envelopes serializes a list of actions to wire form.
func Envelopes(actions []Action) []Envelope {
	envs := make([]Envelope, len(actions))
	for i, a := range actions {
		envs[i] = a.Envelope()
	}
	return envs
}
