// Package secrets encrypts node daemon credentials at rest using age.
//
// Credentials cannot be stored hashed: the panel must present them to
// daemons on every relay call and countersign console tokens with them.
// They are therefore sealed with an age X25519 recipient before hitting
// the database and opened on demand.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"filippo.io/age"
)

// Errors returned by the box.
var (
	// ErrNoRecipient is returned when no public key is configured for sealing.
	ErrNoRecipient = errors.New("no age recipient configured")
	// ErrNoIdentity is returned when no private key is configured for opening.
	ErrNoIdentity = errors.New("no age identity configured")
	// ErrInvalidKey is returned when a configured key cannot be parsed.
	ErrInvalidKey = errors.New("invalid age key")
	// ErrOpenFailed is returned when a sealed value cannot be decrypted.
	ErrOpenFailed = errors.New("opening sealed value failed")
)

// Config holds the age key pair. The panel needs both halves; a
// read-only reporting deployment could carry only the recipient.
type Config struct {
	// AgePublicKey is the X25519 recipient (age1...).
	AgePublicKey string
	// AgePrivateKey is the X25519 identity (AGE-SECRET-KEY-1...).
	AgePrivateKey string
}

// Box seals and opens short secrets such as node daemon credentials.
type Box struct {
	recipient *age.X25519Recipient
	identity  *age.X25519Identity
	logger    *slog.Logger
}

// NewBox creates a box from the configured key pair. At least one of the
// two keys must be present.
func NewBox(cfg *Config, logger *slog.Logger) (*Box, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Box{logger: logger}

	if cfg.AgePublicKey != "" {
		recipient, err := age.ParseX25519Recipient(cfg.AgePublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing recipient: %v", ErrInvalidKey, err)
		}
		b.recipient = recipient
	}
	if cfg.AgePrivateKey != "" {
		identity, err := age.ParseX25519Identity(cfg.AgePrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing identity: %v", ErrInvalidKey, err)
		}
		b.identity = identity
		if b.recipient == nil {
			b.recipient = identity.Recipient()
		}
	}
	if b.recipient == nil && b.identity == nil {
		return nil, ErrInvalidKey
	}

	return b, nil
}

// GenerateKeyPair mints a fresh age key pair for first-run setup.
func GenerateKeyPair() (publicKey, privateKey string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age identity: %w", err)
	}
	return identity.Recipient().String(), identity.String(), nil
}

// Seal encrypts a plaintext secret and returns a base64 string suitable
// for a text column.
func (b *Box) Seal(plaintext string) (string, error) {
	if b.recipient == nil {
		return "", ErrNoRecipient
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, b.recipient)
	if err != nil {
		return "", fmt.Errorf("sealing: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("sealing: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("sealing: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	if b.identity == nil {
		return "", ErrNoIdentity
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), b.identity)
	if err != nil {
		b.logger.Error("failed to open sealed value", "error", err)
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	return string(plaintext), nil
}
