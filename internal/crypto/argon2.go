package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	DefaultArgon2MemoryKiB  uint32 = 64 * 1024
	DefaultArgon2Iterations uint32 = 3
	DefaultArgon2SaltLen           = 16
	DefaultArgon2KeyLen     uint32 = 32
	MinArgon2MemoryKiB      uint32 = 8 * 1024
	// Upper bounds keep a tampered stored hash from demanding gigabytes of
	// memory or minutes of CPU on login.
	MaxArgon2MemoryKiB  uint32 = 1024 * 1024
	MaxArgon2Iterations uint32 = 64
	maxArgon2SaltLen           = 64
	maxArgon2KeyLen     uint32 = 128
)

var ErrInvalidArgon2Params = errors.New("invalid argon2 parameters")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     int
	KeyLen      uint32
}

// DefaultArgon2Params returns the parameters new password hashes are created
// with. Parallelism is pinned to 1 so an encoded hash verifies identically on
// any machine the database file is restored to.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      DefaultArgon2MemoryKiB,
		Iterations:  DefaultArgon2Iterations,
		Parallelism: 1,
		SaltLen:     DefaultArgon2SaltLen,
		KeyLen:      DefaultArgon2KeyLen,
	}
}

func (p Argon2Params) Validate() error {
	switch {
	case p.Memory < MinArgon2MemoryKiB:
		return fmt.Errorf("%w: memory must be >= %d KiB", ErrInvalidArgon2Params, MinArgon2MemoryKiB)
	case p.Memory > MaxArgon2MemoryKiB:
		return fmt.Errorf("%w: memory must be <= %d KiB", ErrInvalidArgon2Params, MaxArgon2MemoryKiB)
	case p.Iterations == 0:
		return fmt.Errorf("%w: iterations must be > 0", ErrInvalidArgon2Params)
	case p.Iterations > MaxArgon2Iterations:
		return fmt.Errorf("%w: iterations must be <= %d", ErrInvalidArgon2Params, MaxArgon2Iterations)
	case p.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be > 0", ErrInvalidArgon2Params)
	case p.SaltLen < 16 || p.SaltLen > maxArgon2SaltLen:
		return fmt.Errorf("%w: salt length must be between 16 and %d", ErrInvalidArgon2Params, maxArgon2SaltLen)
	case p.KeyLen < 16 || p.KeyLen > maxArgon2KeyLen:
		return fmt.Errorf("%w: key length must be between 16 and %d", ErrInvalidArgon2Params, maxArgon2KeyLen)
	default:
		return nil
	}
}

// weakerThan reports whether p would produce a cheaper hash than target.
func (p Argon2Params) weakerThan(target Argon2Params) bool {
	return p.Memory < target.Memory ||
		p.Iterations < target.Iterations ||
		p.KeyLen < target.KeyLen
}

func deriveArgon2ID(password, salt []byte, params Argon2Params) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(salt) < params.SaltLen {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", ErrInvalidArgon2Params, params.SaltLen)
	}
	return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen), nil
}
