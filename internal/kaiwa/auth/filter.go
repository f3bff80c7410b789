// Package auth decides which senders the bridge answers.
package auth

// Filter is a pure allow-list predicate over Matrix sender IDs. With an empty
// allow-list every sender is authorized (open mode); otherwise authorization
// is exact string membership, no wildcards. The bot's own user ID is always
// rejected so the bridge never replies to itself.
type Filter struct {
	allowed map[string]struct{}
	self    string
}

// NewFilter builds a Filter from the configured allow-list and the bot's own
// user ID.
func NewFilter(allowList []string, selfUserID string) *Filter {
	f := &Filter{self: selfUserID}
	if len(allowList) > 0 {
		f.allowed = make(map[string]struct{}, len(allowList))
		for _, id := range allowList {
			f.allowed[id] = struct{}{}
		}
	}
	return f
}

// Allowed reports whether a message from sender should be processed.
func (f *Filter) Allowed(sender string) bool {
	if sender == f.self {
		return false
	}
	if f.allowed == nil {
		return true
	}
	_, ok := f.allowed[sender]
	return ok
}
