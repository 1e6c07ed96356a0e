package auth

// PASSWORD HASHING:
// bcrypt is slow on purpose, and the cost factor sets how slow. It salts
// every hash and embeds the salt and cost in the output, so the users table
// needs only one password_hash column:
//
//	$2a$12$<22-char salt><31-char hash>
//
// Cost 12 takes roughly 250ms on a modern server. Tests use cost 4.

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const defaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs would be
// truncated silently, so they are rejected instead.
const maxPasswordBytes = 72

var (
	ErrPasswordMismatch = errors.New("auth: invalid password")
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)
)

// PasswordService hashes and verifies passwords. The cost is a field so
// tests can use the bcrypt minimum.
type PasswordService struct {
	cost int
	// dummyHash is compared against when the account does not exist, so a
	// login for an unknown email takes as long as a wrong password.
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with cost 12.
func NewPasswordService() *PasswordService {
	return newPasswordServiceWithCost(defaultCost)
}

// NewPasswordServiceForTest creates a PasswordService with the given cost.
// Use bcrypt.MinCost (4) in tests in other packages; never in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return newPasswordServiceWithCost(cost)
}

func newPasswordServiceWithCost(cost int) *PasswordService {
	dummy, err := bcrypt.GenerateFromPassword([]byte("recipebox-dummy-password"), cost)
	if err != nil {
		// Only an out-of-range cost fails here, which is a programming error.
		panic(fmt.Sprintf("auth: bcrypt cost %d: %v", cost, err))
	}
	return &PasswordService{cost: cost, dummyHash: dummy}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch
// when it does not. bcrypt compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return fmt.Errorf("auth: comparing password hash: %w", err)
}

// VerifyMissing burns the same time as Verify for an account that does not
// exist. It always returns ErrPasswordMismatch.
func (p *PasswordService) VerifyMissing(plaintext string) error {
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
	return ErrPasswordMismatch
}

// UnusableHash returns the hash of a random 32-byte secret nobody knows.
// Accounts created through GitHub sign-in get one, so password login is
// impossible for them until a password is set.
func (p *PasswordService) UnusableHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generating random password: %w", err)
	}
	return p.Hash(hex.EncodeToString(buf))
}
