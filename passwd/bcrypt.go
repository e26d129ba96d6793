package passwd

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest work factor accepted for new verifiers.
	MinBcryptCost = 10
)

type (
	Bcrypt struct {
		cost int
	}
)

// NewBcrypt returns a bcrypt hasher. A zero cost selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < MinBcryptCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("passwd: bcrypt cost must be in [%v,%v] got %v", MinBcryptCost, bcrypt.MaxCost, cost)
	}
	return &Bcrypt{cost: cost}, nil
}

func (b *Bcrypt) Hash(p PlainText) (string, error) {
	if len(p) == 0 {
		return "", ErrEmptyPassword
	}
	buf, err := bcrypt.GenerateFromPassword(p, b.cost)
	if err != nil {
		return "", fmt.Errorf("passwd: unable to hash password, cause %w", err)
	}
	return string(buf), nil
}

func (b *Bcrypt) Verify(p PlainText, verifier string) bool {
	if !isBcrypt(verifier) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(verifier), p) == nil
}
