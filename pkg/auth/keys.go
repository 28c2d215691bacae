package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrBadKeyHash    = errors.New("API key hash is not a bcrypt hash")
)

// KeyCost is the bcrypt cost used by HashKey.
const KeyCost = 12

// KeySet holds the bcrypt hashes of the accepted API keys. Plain keys are
// never stored.
type KeySet struct {
	hashes [][]byte
}

// NewKeySet checks that every entry is a bcrypt hash.
func NewKeySet(hashes []string) (*KeySet, error) {
	ks := &KeySet{hashes: make([][]byte, 0, len(hashes))}
	for i, h := range hashes {
		if err := CheckKeyHash(h); err != nil {
			return nil, fmt.Errorf("api key %d: %w", i, err)
		}
		ks.hashes = append(ks.hashes, []byte(h))
	}
	return ks, nil
}

// CheckKeyHash reports whether h can be used as an API key hash.
func CheckKeyHash(h string) error {
	if _, err := bcrypt.Cost([]byte(h)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadKeyHash, err)
	}
	return nil
}

// HashKey returns the hash to put in the configuration for key.
func HashKey(key string) (string, error) {
	return hashKey(key, KeyCost)
}

func hashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrInvalidAPIKey
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hashed), nil
}

// Len returns the number of accepted keys.
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.hashes)
}

// Match returns the index of the hash key matches.
func (ks *KeySet) Match(key string) (int, error) {
	if key == "" || ks == nil {
		return -1, ErrInvalidAPIKey
	}
	for i, h := range ks.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return i, nil
		}
	}
	return -1, ErrInvalidAPIKey
}
