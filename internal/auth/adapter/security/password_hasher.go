package security

import (
	"errors"

	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest secret bcrypt accepts.
const MaxPasswordBytes = 72

// BcryptHasher implements repository.PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost   int
	logger logger.Logger
}

// NewBcryptHasher creates a hasher with the given cost, clamped to bcrypt's range.
func NewBcryptHasher(cost int, log logger.Logger) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &BcryptHasher{cost: cost, logger: log.WithComponent("password_hasher")}
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", apperrors.NewHashingError(err).WithComponent("password_hasher")
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hashed. A malformed hash never matches.
func (h *BcryptHasher) Verify(plaintext, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		h.logger.Warnf("stored password hash is unusable: %v", err)
	}
	return false
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int { return h.cost }
