// Package auth holds the single-password login flow: the credential
// verifier, the per-address login throttle and the session token service.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/johnwmail/pasta/internal/common"
)

// Verifier checks a candidate password against the one configured secret.
type Verifier struct {
	secret []byte
	hashed bool
}

// NewVerifier returns common.ErrConfiguration when secret is empty. A secret
// in bcrypt format ($2a$, $2b$ or $2y$) is treated as a hash.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth password is not set: %w", common.ErrConfiguration)
	}
	v := &Verifier{secret: []byte(secret), hashed: isBcryptHash(secret)}
	if v.hashed {
		if _, err := bcrypt.Cost(v.secret); err != nil {
			return nil, fmt.Errorf("auth password hash: %w: %w", err, common.ErrConfiguration)
		}
	}
	return v, nil
}

// Verify reports whether candidate matches. Plain secrets are compared in
// constant time once the lengths agree.
func (v *Verifier) Verify(candidate string) bool {
	if v == nil || len(v.secret) == 0 {
		return false
	}
	if v.hashed {
		err := bcrypt.CompareHashAndPassword(v.secret, []byte(candidate))
		return err == nil
	}
	c := []byte(candidate)
	if len(c) != len(v.secret) {
		return false
	}
	return subtle.ConstantTimeCompare(c, v.secret) == 1
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
