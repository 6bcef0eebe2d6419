package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes bounds the hashing work per call. It matches the bcrypt
// input limit so both algorithms accept the same passwords.
const MaxPasswordBytes = 72

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

const (
	argon2SaltLen = 16
	argon2KeyLen  = 32

	// Ceilings applied to parameters read back from stored hashes.
	maxArgon2Time      = 16
	maxArgon2MemoryKiB = 512 * 1024
	maxArgon2Threads   = 16
	maxArgon2KeyLen    = 64
)

// Argon2Params are the argon2id cost settings.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// PasswordHasher hashes new passwords with the configured algorithm and
// verifies hashes produced by either algorithm.
type PasswordHasher struct {
	algorithm  string
	argon2     Argon2Params
	bcryptCost int

	decoyOnce sync.Once
	decoy     string
}

// NewPasswordHasher validates the cost settings for algorithm.
func NewPasswordHasher(algorithm string, params Argon2Params, bcryptCost int) (*PasswordHasher, error) {
	switch algorithm {
	case AlgorithmArgon2id:
		if params.Time == 0 || params.MemoryKiB == 0 || params.Threads == 0 {
			return nil, fmt.Errorf("argon2id parameters must be positive: %+v", params)
		}
		if params.Time > maxArgon2Time || params.MemoryKiB > maxArgon2MemoryKiB || params.Threads > maxArgon2Threads {
			return nil, fmt.Errorf("argon2id parameters above ceiling: %+v", params)
		}
	case AlgorithmBcrypt:
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", bcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
		}
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", algorithm)
	}

	return &PasswordHasher{algorithm: algorithm, argon2: params, bcryptCost: bcryptCost}, nil
}

// Hash returns an encoded, salted hash of password. Each call draws a fresh
// salt, so hashing the same password twice gives different strings.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("%w: password longer than %d bytes", common.ErrValidation, MaxPasswordBytes)
	}

	if h.algorithm == AlgorithmBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(hash), nil
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	p := h.argon2
	key := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches hash. Malformed or unsupported
// hashes never match.
func (h *PasswordHasher) Verify(hash, password string) bool {
	if len(password) > MaxPasswordBytes {
		return false
	}

	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(hash, password)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	default:
		return false
	}
}

// VerifyDecoy spends the same work as a real Verify against a hash that no
// password matches. Login calls it for unknown usernames.
func (h *PasswordHasher) VerifyDecoy(password string) {
	h.decoyOnce.Do(func() {
		secret, err := common.MakeRandHexString(16)
		if err != nil {
			return
		}
		h.decoy, _ = h.Hash(secret)
	})
	_ = h.Verify(h.decoy, password)
}

func verifyArgon2id(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || threads == 0 ||
		memory > maxArgon2MemoryKiB || iterations > maxArgon2Time || threads > maxArgon2Threads {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > maxArgon2KeyLen {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
