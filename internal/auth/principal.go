package auth

import (
	"crypto/subtle"
	"strings"
)

// Principal is who a lifecycle request was accepted from.
type Principal string

const (
	PrincipalRejected  Principal = "rejected"
	PrincipalScheduler Principal = "scheduler"
	PrincipalAdmin     Principal = "admin"
)

// Trusted reports whether p may trigger or inspect lifecycle jobs.
func (p Principal) Trusted() bool {
	return p == PrincipalScheduler || p == PrincipalAdmin
}

// Secrets are the two bearer tokens accepted on lifecycle endpoints.
type Secrets struct {
	Scheduler string
	Admin     string
}

// Classify maps an Authorization header value to a principal. Anything other
// than "Bearer <token>" with a token equal to one of the secrets is rejected.
func Classify(authHeader string, secrets Secrets) Principal {
	token, ok := bearerToken(authHeader)
	if !ok {
		return PrincipalRejected
	}
	switch {
	case matches(token, secrets.Scheduler):
		return PrincipalScheduler
	case matches(token, secrets.Admin):
		return PrincipalAdmin
	}
	return PrincipalRejected
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// matches compares in constant time; an empty secret never matches.
func matches(token, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
