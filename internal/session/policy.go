package session

// RestrictedAction is a host-surface interaction suppressed while a session
// is active.
type RestrictedAction string

const (
	ActionContextMenu RestrictedAction = "context_menu"
	ActionCopy        RestrictedAction = "copy"
	ActionPaste       RestrictedAction = "paste"
	ActionCut         RestrictedAction = "cut"
)

// RestrictedActions lists every interaction the exam surface must disable
// while a session is active.
func RestrictedActions() []RestrictedAction {
	return []RestrictedAction{ActionContextMenu, ActionCopy, ActionPaste, ActionCut}
}

// InputPolicy tells the host surface which interactions to suppress. The
// restrictions apply uniformly while active and lift on submission.
type InputPolicy struct {
	Active bool `json:"active"`
}

// Blocked reports whether the given action must be suppressed.
func (p InputPolicy) Blocked(RestrictedAction) bool {
	return p.Active
}

// BlockedActions returns the concrete action list for the current state,
// ready for the host to render or enforce.
func (p InputPolicy) BlockedActions() []RestrictedAction {
	if !p.Active {
		return nil
	}
	return RestrictedActions()
}
