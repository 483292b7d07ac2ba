package payment

import (
	"strconv"
	"strings"

	"github.com/ent0n29/slotbot/internal/chat"
)

// Expected is the payment a pending /slot invocation is waiting for.
type Expected struct {
	PayerID  string
	PayeeID  string
	Amount   int64
	Currency string
}

// MatchesExpectedPayment reports whether a notification body confirms exp.
// The body must mention the payer before the payee and contain both the
// decimal amount and the currency symbol. Matching is plain substring
// containment: "1000" also matches inside "10000", and nothing guards
// against a notice that merely repeats these strings.
func MatchesExpectedPayment(text string, exp Expected) bool {
	if exp.Amount <= 0 || exp.Currency == "" {
		return false
	}
	from := chat.MentionIndex(text, exp.PayerID)
	if from < 0 {
		return false
	}
	to := chat.MentionIndex(text[from+1:], exp.PayeeID)
	if to < 0 {
		return false
	}
	if !strings.Contains(text, strconv.FormatInt(exp.Amount, 10)) {
		return false
	}
	return strings.Contains(text, exp.Currency)
}

// Matches applies MatchesExpectedPayment to messages authored by the
// trusted notifier only.
func Matches(msg chat.Message, notifierID string, exp Expected) bool {
	if notifierID == "" || msg.AuthorID != notifierID {
		return false
	}
	return MatchesExpectedPayment(msg.Content, exp)
}
