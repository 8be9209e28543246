// Package auth guards the admin surface with an Argon2id-hashed bearer token.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/sheetseries/internal/config"
	"golang.org/x/crypto/argon2"
)

var (
	ErrTokenNotConfigured = errors.New("admin_token_not_configured")
	ErrInvalidToken       = errors.New("invalid_admin_token")
)

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

var defaultParams = argonParams{
	memory:  64 * 1024,
	time:    1,
	threads: 4,
	keyLen:  32,
}

const saltLen = 16

// HashToken encodes token as a PHC-style Argon2id string suitable for ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := defaultParams
	key := argon2.IDKey([]byte(token), salt, p.time, p.memory, p.threads, p.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyToken reports whether token matches the encoded hash.
func VerifyToken(token, encoded string) bool {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false
	}
	check := argon2.IDKey([]byte(token), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, check) == 1
}

func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams
	parts := strings.Split(strings.TrimSpace(encoded), "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, nil, nil, ErrInvalidToken
	}

	for _, kv := range strings.Split(parts[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return p, nil, nil, ErrInvalidToken
		}
		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return p, nil, nil, ErrInvalidToken
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return p, nil, nil, ErrInvalidToken
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil {
				return p, nil, nil, ErrInvalidToken
			}
			p.threads = uint8(v)
		default:
			return p, nil, nil, ErrInvalidToken
		}
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, nil, nil, ErrInvalidToken
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidToken
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrInvalidToken
	}
	return p, salt, key, nil
}

// AdminVerifier checks bearer tokens against the configured hash.
type AdminVerifier struct {
	hash string
}

func NewAdminVerifier(cfg config.Config) *AdminVerifier {
	return &AdminVerifier{hash: strings.TrimSpace(cfg.AdminTokenHash)}
}

// Verify returns ErrTokenNotConfigured when no hash is set, so the admin
// surface stays closed by default.
func (v *AdminVerifier) Verify(token string) error {
	if v == nil || v.hash == "" {
		return ErrTokenNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" || !VerifyToken(token, v.hash) {
		return ErrInvalidToken
	}
	return nil
}
