package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// State token decode failures, distinguishable with errors.Is.
//
// ErrStateTampered covers both a wrong key and a modified ciphertext; AES-GCM
// cannot tell them apart and callers must not try to.
var (
	// ErrStateMalformed indicates the token is not structurally valid
	// (bad base64, or too short to contain a nonce and expiry prefix).
	ErrStateMalformed = errors.New("state token malformed")

	// ErrStateTampered indicates the token failed authenticated decryption.
	ErrStateTampered = errors.New("state token failed integrity check")

	// ErrStateExpired indicates the token decrypted cleanly but its embedded
	// expiry has elapsed.
	ErrStateExpired = errors.New("state token expired")
)

// hkdfInfo binds derived keys to this use so the same secret can be shared
// with other subsystems without key reuse.
const hkdfInfo = "oauth-gateway state token v1"

// expiryPrefixLen is the size of the big-endian unix-seconds expiry that
// leads every plaintext. Zero means the token never expires.
const expiryPrefixLen = 8

// StateCodec encrypts and decrypts self-contained state tokens with
// AES-256-GCM. The AES key is derived from the shared secret once at
// construction via HKDF-SHA256 and reused for every call; each Encode uses a
// fresh random nonce, so identical payloads produce different tokens.
//
// Tokens carry their own optional expiry inside the authenticated plaintext,
// which makes the gateway fully stateless: nothing about an in-flight flow is
// held server-side. The trade-off is that a token cannot be revoked, only
// outlived, and nothing prevents a still-valid token from being decoded more
// than once.
type StateCodec struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewStateCodec creates a codec from the shared secret. The secret may be any
// non-empty string; it is stretched to a 32-byte AES-256 key.
func NewStateCodec(secret string) (*StateCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("state secret is required")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &StateCodec{
		aead: aead,
		now:  time.Now,
	}, nil
}

// SetNow overrides the codec's time source. Intended for tests.
func (c *StateCodec) SetNow(now func() time.Time) {
	c.now = now
}

// Encode seals payload into an opaque, URL-safe token. A zero expiresAt
// produces a token with no expiry.
func (c *StateCodec) Encode(payload string, expiresAt time.Time) (string, error) {
	plaintext := make([]byte, expiryPrefixLen+len(payload))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(plaintext, uint64(expiresAt.Unix()))
	}
	copy(plaintext[expiryPrefixLen:], payload)

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal with the nonce slice as destination so the wire format is
	// [nonce][ciphertext].
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token produced by Encode and returns its payload.
// Failures are reported as ErrStateMalformed, ErrStateTampered or
// ErrStateExpired; expiry is only checked after the integrity check passes.
func (c *StateCodec) Decode(token string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStateMalformed, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("%w: token too short", ErrStateMalformed)
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w", ErrStateTampered)
	}

	if len(plaintext) < expiryPrefixLen {
		return "", fmt.Errorf("%w: missing expiry prefix", ErrStateMalformed)
	}

	if exp := binary.BigEndian.Uint64(plaintext[:expiryPrefixLen]); exp != 0 {
		expiresAt := time.Unix(int64(exp), 0)
		if c.now().After(expiresAt) {
			return "", fmt.Errorf("%w: expired at %s", ErrStateExpired, expiresAt.UTC().Format(time.RFC3339))
		}
	}

	return string(plaintext[expiryPrefixLen:]), nil
}
