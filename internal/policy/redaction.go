package policy

// RedactToken keeps a short prefix of a session token so log lines can be
// correlated without leaking a usable credential.
func RedactToken(token string) string {
	const keep = 6
	if len(token) <= keep {
		return "[REDACTED]"
	}
	return token[:keep] + "…"
}
