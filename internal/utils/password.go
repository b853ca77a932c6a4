package utils

import "golang.org/x/crypto/bcrypt"

// PasswordManager hashes and verifies passwords with bcrypt. The salt is
// generated per call and embedded in the digest.
type PasswordManager struct {
	cost int
}

// NewPasswordManager falls back to bcrypt.DefaultCost for out of range costs.
func NewPasswordManager(cost int) PasswordManager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return PasswordManager{cost: cost}
}

// Hash returns the bcrypt digest of plain.
func (p PasswordManager) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), p.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares a bcrypt digest and a plain password.
func (p PasswordManager) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
