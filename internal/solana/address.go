package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of a Solana address.
const PublicKeyLength = 32

// maxSeedLength bounds each PDA seed.
const maxSeedLength = 32

var (
	// ErrInvalidAddress is returned for malformed base58 addresses.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNoViableBump is returned when no bump seed yields an off-curve address.
	ErrNoViableBump = errors.New("no viable bump seed")
)

// DecodeAddress decodes a base58 address and checks its length.
func DecodeAddress(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != PublicKeyLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(raw))
	}
	return raw, nil
}

// ValidateAddress reports whether addr is a well-formed 32-byte base58 address.
func ValidateAddress(addr string) error {
	_, err := DecodeAddress(addr)
	return err
}

// IsOnCurve reports whether the 32 bytes decode to an ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// FindProgramAddress derives a Program Derived Address for seeds under programID.
// Returns the base58 address and bump seed.
func FindProgramAddress(seeds [][]byte, programID string) (string, byte, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return "", 0, fmt.Errorf("seed longer than %d bytes", maxSeedLength)
		}
	}

	// PDA derivation:
	// sha256(seeds || bump || program || "ProgramDerivedAddress"), first off-curve bump from 255 down
	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, program...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return base58.Encode(hash[:]), byte(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// LockAddress derives the lock record account a locker program keeps for a pool.
// Seeds: ("lock", pool).
func LockAddress(lockerProgram, pool string) (string, error) {
	poolKey, err := DecodeAddress(pool)
	if err != nil {
		return "", fmt.Errorf("pool: %w", err)
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte("lock"), poolKey}, lockerProgram)
	if err != nil {
		return "", err
	}
	return addr, nil
}

// VerifyLockAccount reports whether lockAccount is the derived lock record for pool.
func VerifyLockAccount(lockerProgram, pool, lockAccount string) bool {
	if lockerProgram == "" || pool == "" || lockAccount == "" {
		return false
	}
	want, err := LockAddress(lockerProgram, pool)
	if err != nil {
		return false
	}
	return want == lockAccount
}
