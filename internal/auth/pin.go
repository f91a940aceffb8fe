package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"mise.app/internal/outcome"
)

// StaffPinCost is the bcrypt work factor for per-staff PINs.
const StaffPinCost = 10

// Admin PIN argon2id parameters.
const (
	adminMemory      = 64 * 1024
	adminIterations  = 3
	adminParallelism = 2
	adminKeyLength   = 32
	adminSaltLength  = 16
)

const argon2Prefix = "$argon2id$"

const (
	MinPinLength      = 4
	MaxPinLength      = 8
	MinAdminPinLength = 6
	MaxAdminPinLength = 8
	maxGeneratedPin   = 12
)

// HashPin hashes a staff PIN with bcrypt and a per-call salt.
func HashPin(pin string) (string, error) {
	if pin == "" {
		return "", outcome.Validation("pin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), StaffPinCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

// VerifyPin reports whether pin matches a bcrypt staff hash. Admin-tier hashes never match.
func VerifyPin(pin, hash string) bool {
	if hash == "" || strings.HasPrefix(hash, argon2Prefix) || !isBcrypt(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// HashAdminPin hashes the owner's admin PIN with argon2id.
func HashAdminPin(pin string) (string, error) {
	if pin == "" {
		return "", outcome.Validation("admin_pin")
	}
	salt := make([]byte, adminSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(pin), salt, adminIterations, adminMemory, adminParallelism, adminKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		adminMemory,
		adminIterations,
		adminParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyAdminPin reports whether pin matches an argon2id admin hash, using the
// parameters encoded in the hash. Staff-tier hashes never match.
func VerifyAdminPin(pin, encoded string) bool {
	params, salt, want, ok := decodeArgon2(encoded)
	if !ok {
		return false
	}
	got := argon2.IDKey([]byte(pin), salt, params.iterations, params.memory, params.parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func decodeArgon2(encoded string) (argon2Params, []byte, []byte, bool) {
	var p argon2Params
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return p, nil, nil, false
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return p, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return p, nil, nil, false
	}
	return p, salt, hash, true
}

func isBcrypt(hash string) bool {
	_, err := bcrypt.Cost([]byte(hash))
	return err == nil
}

// GenerateSecurePin returns length uniformly random digits. Leading zeros are kept.
func GenerateSecurePin(length int) (string, error) {
	if length < MinPinLength || length > maxGeneratedPin {
		return "", outcome.Validation("pin_length")
	}
	ten := big.NewInt(10)
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate pin: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// ValidatePin checks a staff PIN is 4 to 8 digits.
func ValidatePin(pin string) error {
	if !digitsBetween(pin, MinPinLength, MaxPinLength) {
		return outcome.Validation("pin")
	}
	return nil
}

// ValidateAdminPin checks an admin PIN is 6 to 8 digits.
func ValidateAdminPin(pin string) error {
	if !digitsBetween(pin, MinAdminPinLength, MaxAdminPinLength) {
		return outcome.Validation("admin_pin")
	}
	return nil
}

// PinPrefix is the only PIN fragment that may be logged.
func PinPrefix(pin string) string {
	if len(pin) < 2 {
		return "**"
	}
	return pin[:2] + "**"
}

func digitsBetween(s string, min, max int) bool {
	if len(s) < min || len(s) > max {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
