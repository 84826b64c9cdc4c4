package utils

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Preview returns the standard 200-character preview used in analysis
// responses and history rows.
func Preview(s string) string {
	return Truncate(s, 200)
}
