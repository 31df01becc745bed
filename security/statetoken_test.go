package security

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/staticlabs/oauth-gateway/internal/testutil"
)

func TestNewStateCodec(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{
			name:   "valid secret",
			secret: "correct horse battery staple",
		},
		{
			name:   "short secret is stretched, not rejected",
			secret: "x",
		},
		{
			name:    "empty secret",
			secret:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStateCodec(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewStateCodec() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStateCodecRoundTrip(t *testing.T) {
	codec, err := NewStateCodec(testutil.GenerateRandomString(32))
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}

	payloads := []string{
		"",
		"https://example.com/dashboard",
		"https://example.com/path?query=1&other=2",
		"ghu_arbitraryProviderToken123",
		"unicode: héllo wörld ✓",
	}

	for _, payload := range payloads {
		token, err := codec.Encode(payload, time.Time{})
		if err != nil {
			t.Fatalf("Encode(%q) error = %v", payload, err)
		}

		got, err := codec.Decode(token)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if got != payload {
			t.Errorf("Decode() = %q, want %q", got, payload)
		}
	}
}

func TestStateCodecNonceFreshness(t *testing.T) {
	codec, err := NewStateCodec("test-secret")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}

	first, err := codec.Encode("same payload", time.Time{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	second, err := codec.Encode("same payload", time.Time{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if first == second {
		t.Error("Encode() produced identical tokens for identical payloads")
	}
}

func TestStateCodecKeySensitivity(t *testing.T) {
	codec, err := NewStateCodec("secret-one")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}
	other, err := NewStateCodec("secret-two")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}

	token, err := codec.Encode("payload", time.Time{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	_, err = other.Decode(token)
	if !errors.Is(err, ErrStateTampered) {
		t.Errorf("Decode() under wrong key error = %v, want ErrStateTampered", err)
	}
}

func TestStateCodecTamperDetection(t *testing.T) {
	codec, err := NewStateCodec("test-secret")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}

	token, err := codec.Encode("payload", time.Time{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("DecodeString() error = %v", err)
	}
	raw[len(raw)-1] ^= 0x01
	flipped := base64.RawURLEncoding.EncodeToString(raw)

	_, err = codec.Decode(flipped)
	if !errors.Is(err, ErrStateTampered) {
		t.Errorf("Decode() of flipped ciphertext error = %v, want ErrStateTampered", err)
	}
}

func TestStateCodecMalformed(t *testing.T) {
	codec, err := NewStateCodec("test-secret")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "!!not-base64!!"},
		{name: "empty", token: ""},
		{name: "shorter than nonce", token: base64.RawURLEncoding.EncodeToString([]byte("short"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			if !errors.Is(err, ErrStateMalformed) {
				t.Errorf("Decode(%q) error = %v, want ErrStateMalformed", tt.token, err)
			}
		})
	}
}

func TestStateCodecExpiry(t *testing.T) {
	codec, err := NewStateCodec("test-secret")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := testutil.NewMockTime(base)
	codec.SetNow(clock.Now)

	token, err := codec.Encode("payload", base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Before expiry the token decodes normally.
	if got, err := codec.Decode(token); err != nil || got != "payload" {
		t.Fatalf("Decode() before expiry = %q, %v; want payload, nil", got, err)
	}

	// At the expiry instant it is still valid.
	clock.Set(base.Add(10 * time.Minute))
	if _, err := codec.Decode(token); err != nil {
		t.Errorf("Decode() at expiry error = %v, want nil", err)
	}

	// Past expiry it fails with the expiry kind, not the tamper kind.
	clock.Advance(time.Second)
	_, err = codec.Decode(token)
	if !errors.Is(err, ErrStateExpired) {
		t.Errorf("Decode() after expiry error = %v, want ErrStateExpired", err)
	}
	if errors.Is(err, ErrStateTampered) {
		t.Error("expired token must not be reported as tampered")
	}
}

func TestStateCodecNoExpiry(t *testing.T) {
	codec, err := NewStateCodec("test-secret")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}
	codec.SetNow(func() time.Time { return time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC) })

	token, err := codec.Encode("payload", time.Time{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if got, err := codec.Decode(token); err != nil || got != "payload" {
		t.Errorf("Decode() of no-expiry token = %q, %v; want payload, nil", got, err)
	}
}

func TestStateCodecReplayDecodes(t *testing.T) {
	// Statelessness trade-off: nothing tracks single use, so a still-valid
	// token decodes again.
	codec, err := NewStateCodec("test-secret")
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}

	token, err := codec.Encode("payload", time.Time{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if got, err := codec.Decode(token); err != nil || got != "payload" {
			t.Fatalf("Decode() attempt %d = %q, %v; want payload, nil", i+1, got, err)
		}
	}
}
