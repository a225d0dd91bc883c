package auth

import "strings"

// ParseBearer extracts the token from an Authorization header value of the form
// "Bearer <token>". The scheme is matched case-insensitively; anything else,
// including extra space-separated parts, is rejected.
func ParseBearer(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
