package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

const (
	argon2IDPrefix = "$argon2id$"

	// legacySalt is the application-wide salt of the original single-digest
	// scheme. Only used to verify hashes written before per-user salts.
	legacySalt      = "AgencyDesk#2019!RealEstate"
	legacyDigestLen = sha256.Size * 2
)

var (
	ErrEmptyPassword       = errors.New("password must not be empty")
	ErrInvalidPasswordHash = errors.New("invalid password hash encoding")
)

// PasswordHasher creates Argon2id password hashes with a fresh random salt per
// hash and verifies both current and legacy encodings.
type PasswordHasher struct {
	params Argon2Params
	rand   io.Reader
}

func NewPasswordHasher(params Argon2Params) (*PasswordHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &PasswordHasher{params: params, rand: rand.Reader}, nil
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, h.params.SaltLen)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("hash password: generate salt: %w", err)
	}
	return HashPasswordWithSalt(password, salt, h.params)
}

func (h *PasswordHasher) Verify(password, encoded string) bool {
	return VerifyPassword(password, encoded)
}

// NeedsRehash reports whether encoded was produced by the legacy scheme or
// with parameters weaker than the hasher's.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	if IsLegacyDigest(encoded) {
		return true
	}
	params, _, _, err := decodeArgon2ID(encoded)
	if err != nil {
		return true
	}
	return params.weakerThan(h.params)
}

// HashPasswordWithSalt is deterministic for a fixed password, salt and params.
func HashPasswordWithSalt(password string, salt []byte, params Argon2Params) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	key, err := deriveArgon2ID([]byte(password), salt, params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	defer memguard.WipeBytes(key)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2IDPrefix,
		argon2.Version,
		params.Memory,
		params.Iterations,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword never returns an error: empty input and malformed encodings
// simply fail verification.
func VerifyPassword(password, encoded string) bool {
	if password == "" || encoded == "" {
		return false
	}
	if IsLegacyDigest(encoded) {
		return strings.EqualFold(LegacyDigest(password), encoded)
	}

	params, salt, want, err := decodeArgon2ID(encoded)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)
	defer memguard.WipeBytes(got)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// LegacyDigest reproduces the original scheme: SHA-256 over the shared salt
// followed by the password, as lowercase hex.
func LegacyDigest(password string) string {
	sum := sha256.Sum256([]byte(legacySalt + password))
	return hex.EncodeToString(sum[:])
}

func IsLegacyDigest(encoded string) bool {
	if len(encoded) != legacyDigestLen {
		return false
	}
	_, err := hex.DecodeString(encoded)
	return err == nil
}

func decodeArgon2ID(encoded string) (Argon2Params, []byte, []byte, error) {
	if !strings.HasPrefix(encoded, argon2IDPrefix) {
		return Argon2Params{}, nil, nil, ErrInvalidPasswordHash
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: expected 6 segments, got %d", ErrInvalidPasswordHash, len(parts))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: version: %v", ErrInvalidPasswordHash, err)
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPasswordHash, version)
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: params: %v", ErrInvalidPasswordHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidPasswordHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidPasswordHash, err)
	}
	params.SaltLen = len(salt)
	params.KeyLen = uint32(len(key))
	if err := params.Validate(); err != nil {
		return Argon2Params{}, nil, nil, err
	}
	return params, salt, key, nil
}
