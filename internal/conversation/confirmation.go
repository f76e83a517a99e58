package conversation

import "strings"

// Affirmative tokens that count as a whole-message confirmation.
var confirmationTokens = map[string]struct{}{
	"sim":            {},
	"ok":             {},
	"confirmo":       {},
	"confirmar":      {},
	"sim confirmo":   {},
	"sim, confirmo":  {},
	"ok confirmo":    {},
	"ok, confirmo":   {},
	"pode confirmar": {},
	"pode sim":       {},
}

// IsConfirmation reports whether the inbound text is a bare affirmative
// reply to a previously presented summary. Detection alone never creates
// a booking; extraction must still find the summary.
func IsConfirmation(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!?")
	normalized = strings.Join(strings.Fields(normalized), " ")
	if normalized == "" {
		return false
	}
	_, ok := confirmationTokens[normalized]
	return ok
}
