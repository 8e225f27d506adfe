package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher is the one-way credential capability the persistence layer
// consumes. An empty stored hash means "no password set" and verifies
// true against any input.
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(raw, hash string) bool
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(raw, hash string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
