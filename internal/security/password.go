// Package security hashes and verifies user passwords.
package security

import (
	"crypto/md5" // #nosec G501 -- legacy verifiers only, never used for new hashes
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong is returned when a password exceeds what bcrypt can hash.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// PasswordHasher turns a password into a stored verifier and checks it later.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(verifier, password string) error
	// Owns reports whether verifier was produced by this hasher.
	Owns(verifier string) bool
}

// ErrMismatch is returned by Compare when the password does not match.
var ErrMismatch = errors.New("password does not match")

// BcryptHasher salts every password individually and is slow on purpose.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptHasher) Compare(verifier, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(verifier), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

func (BcryptHasher) Owns(verifier string) bool {
	_, err := bcrypt.Cost([]byte(verifier))
	return err == nil
}

// LegacyDigestHasher reproduces the digest older accounts were stored with:
// hex(md5(password + salt)) with one salt shared by every account.
type LegacyDigestHasher struct {
	Salt string
}

func (h LegacyDigestHasher) Hash(password string) (string, error) {
	sum := md5.Sum([]byte(password + h.Salt)) // #nosec G401
	return hex.EncodeToString(sum[:]), nil
}

func (h LegacyDigestHasher) Compare(verifier, password string) error {
	digest, _ := h.Hash(password)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(verifier)), []byte(digest)) != 1 {
		return ErrMismatch
	}
	return nil
}

func (LegacyDigestHasher) Owns(verifier string) bool {
	if len(verifier) != hex.EncodedLen(md5.Size) {
		return false
	}
	_, err := hex.DecodeString(verifier)
	return err == nil
}

// Credentials hashes with the current hasher and still accepts verifiers
// written by legacy ones.
type Credentials struct {
	current PasswordHasher
	legacy  []PasswordHasher
	dummy   string
}

// NewCredentials builds a Credentials. A dummy verifier is prepared so that
// lookups for unknown accounts cost the same as real comparisons.
func NewCredentials(current PasswordHasher, legacy ...PasswordHasher) *Credentials {
	c := &Credentials{current: current, legacy: legacy}
	c.dummy, _ = current.Hash("dummy-password-for-timing")
	return c
}

// Hash produces a verifier with the current hasher.
func (c *Credentials) Hash(password string) (string, error) {
	return c.current.Hash(password)
}

// Verify checks password against verifier. upgrade is true when the match came
// from a legacy hasher and the verifier should be replaced.
func (c *Credentials) Verify(verifier, password string) (ok, upgrade bool) {
	if c.current.Owns(verifier) {
		return c.current.Compare(verifier, password) == nil, false
	}
	for _, h := range c.legacy {
		if h.Owns(verifier) {
			matched := h.Compare(verifier, password) == nil
			return matched, matched
		}
	}
	return false, false
}

// Burn runs a comparison against the dummy verifier and discards the result.
func (c *Credentials) Burn(password string) {
	if c.dummy != "" {
		_ = c.current.Compare(c.dummy, password)
	}
}
