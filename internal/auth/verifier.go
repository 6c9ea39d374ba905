package auth

import (
	"errors"
	"strings"
)

// Verification failure reasons surfaced to clients.
const (
	ReasonMalformedHeader    = "malformed header"
	ReasonExpired            = "Token has expired"
	ReasonInvalidPrefix      = "Invalid token: "
	ReasonVerificationFailed = "Token verification failed"
)

// VerificationResult is the outcome of Verify.
type VerificationResult struct {
	Valid   bool
	Claims  *Claims
	Reason  string
	Expired bool
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>"
// header. Anything other than exactly two space-separated parts is rejected.
func ExtractBearer(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Verify checks an Authorization header against secret.
func Verify(header string, secret []byte) VerificationResult {
	token, ok := ExtractBearer(header)
	if !ok {
		return VerificationResult{Reason: ReasonMalformedHeader}
	}
	if len(secret) == 0 {
		return VerificationResult{Reason: ReasonVerificationFailed}
	}

	claims, err := ParseToken(token, secret)
	if err == nil {
		return VerificationResult{Valid: true, Claims: claims}
	}

	var verr *ValidationError
	switch {
	case errors.Is(err, ErrTokenExpired):
		return VerificationResult{Reason: ReasonExpired, Expired: true}
	case errors.As(err, &verr):
		return VerificationResult{Reason: ReasonInvalidPrefix + verr.Detail}
	default:
		return VerificationResult{Reason: ReasonVerificationFailed}
	}
}
