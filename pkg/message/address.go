package message

import "strings"

// minRecipientDigits is the shortest phone number accepted after
// stripping formatting.
const minRecipientDigits = 10

// NormalizeRecipient strips everything but digits from a phone number.
// Returns ErrInvalidRecipient when fewer than 10 digits remain.
func NormalizeRecipient(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) < minRecipientDigits {
		return "", ErrRegistry.New(ErrInvalidRecipient).WithDetail("recipient", raw)
	}
	return digits, nil
}

// NormalizeRecipients normalizes every address or none: a single bad
// address rejects the whole batch so no partial job set is created.
func NormalizeRecipients(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, ErrRegistry.New(ErrNoRecipients)
	}

	out := make([]string, len(raw))
	for i, r := range raw {
		n, err := NormalizeRecipient(r)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
