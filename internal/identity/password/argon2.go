// Package password hashes and verifies passwords with argon2id.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/bissquit/notes-garden/internal/pkg/metrics"
	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// Params configures argon2id. Memory is in KiB.
type Params struct {
	Memory        uint32
	Iterations    uint32
	Parallelism   uint8
	SaltLength    uint32
	KeyLength     uint32
	MaxConcurrent int64
}

// DefaultParams follows the RFC 9106 second recommended option.
func DefaultParams() Params {
	return Params{
		Memory:        64 * 1024,
		Iterations:    3,
		Parallelism:   2,
		SaltLength:    16,
		KeyLength:     32,
		MaxConcurrent: int64(runtime.NumCPU()),
	}
}

const (
	// costHeadroom bounds the cost a stored hash may ask for, relative to the configured params.
	costHeadroom = 4

	minKeyLength  = 16
	minSaltLength = 8
)

// Hasher produces PHC-formatted argon2id hashes.
// At most MaxConcurrent hashes run at once; the rest wait on ctx.
type Hasher struct {
	params Params
	limits Params
	sem    *semaphore.Weighted
}

// NewHasher creates a hasher.
func NewHasher(params Params) *Hasher {
	if params.MaxConcurrent < 1 {
		params.MaxConcurrent = 1
	}
	return &Hasher{
		params: params,
		limits: Params{
			Memory:      scaleLimit(params.Memory, math.MaxUint32),
			Iterations:  scaleLimit(params.Iterations, math.MaxUint32),
			Parallelism: uint8(scaleLimit(uint32(params.Parallelism), math.MaxUint8)),
			SaltLength:  scaleLimit(params.SaltLength, math.MaxUint32),
			KeyLength:   scaleLimit(params.KeyLength, math.MaxUint32),
		},
		sem: semaphore.NewWeighted(params.MaxConcurrent),
	}
}

func scaleLimit(v uint32, ceiling uint64) uint32 {
	return uint32(min(uint64(v)*costHeadroom, ceiling))
}

// Hash returns "$argon2id$v=19$m=..,t=..,p=..$salt$key" with a fresh random salt.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hasher: %w", err)
	}
	start := time.Now()
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	metrics.PasswordHashDuration.Observe(time.Since(start).Seconds())
	h.sem.Release(1)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches encoded. Parameters are read from
// encoded, so hashes made with older settings keep verifying.
// Malformed input, costs above the configured limits, or ctx ending before
// a slot frees up yield false.
func (h *Hasher) Verify(ctx context.Context, plaintext, encoded string) bool {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false
	}
	if err := h.checkLimits(p, salt, key); err != nil {
		return false
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	h.sem.Release(1)

	return subtle.ConstantTimeCompare(key, candidate) == 1
}

func (h *Hasher) checkLimits(p Params, salt, key []byte) error {
	switch {
	case p.Memory > h.limits.Memory,
		p.Iterations > h.limits.Iterations,
		p.Parallelism > h.limits.Parallelism:
		return fmt.Errorf("hash cost m=%d,t=%d,p=%d exceeds limits", p.Memory, p.Iterations, p.Parallelism)
	case len(key) < minKeyLength || uint64(len(key)) > uint64(h.limits.KeyLength):
		return fmt.Errorf("key length %d out of range", len(key))
	case len(salt) < minSaltLength || uint64(len(salt)) > uint64(h.limits.SaltLength):
		return fmt.Errorf("salt length %d out of range", len(salt))
	}
	return nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, fmt.Errorf("unsupported hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("unsupported argon2 version")
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Params{}, nil, nil, fmt.Errorf("parse params: %w", err)
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return Params{}, nil, nil, fmt.Errorf("invalid params")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, fmt.Errorf("decode salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, fmt.Errorf("decode key")
	}

	return p, salt, key, nil
}
