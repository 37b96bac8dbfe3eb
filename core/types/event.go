package types

// Event represents a typed event emitted once a ledger operation commits.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	// Timestamp is the unix second at which the emitting operation ran.
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// Attr returns the attribute value or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
