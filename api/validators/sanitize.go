package validators

import "strings"

// SanitizeString trims surrounding whitespace and truncates to maxLen
// bytes. A maxLen of zero disables truncation.
func SanitizeString(input string, maxLen int) string {
	clean := strings.TrimSpace(input)
	if maxLen > 0 && len(clean) > maxLen {
		return clean[:maxLen]
	}
	return clean
}
