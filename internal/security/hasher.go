package security

import "fmt"

// PasswordHasher turns plaintext passwords into one-way hashes and checks
// plaintext against a stored hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// NewHasher returns the hasher named by the PASSWORD_HASHER setting.
func NewHasher(name string) (PasswordHasher, error) {
	switch name {
	case "", "bcrypt":
		return NewBcryptHasher(0), nil
	case "argon2":
		return NewArgon2Hasher(DefaultArgon2Params()), nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
