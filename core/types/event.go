package types

// Event represents a typed event emitted during credit engine state
// transitions. Amounts are rendered as base-10 integers.
type Event struct {
	Type       string            `json:"type"`
	Block      uint64            `json:"block"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute stored under key or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
