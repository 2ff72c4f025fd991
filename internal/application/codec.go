package application

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// LegacyKeyID is assigned to the single key recovered from a pre-collection
// configuration blob.
const LegacyKeyID = "legacy_import"

const (
	codecSaltSize      = 16
	codecKeySize       = 32 // AES-256
	codecKDFIterations = 4096
)

var (
	// ErrEncode is returned when the collection cannot be serialized or sealed.
	ErrEncode = errors.New("encode keys")

	// ErrUndecodable is returned for any blob that does not decrypt and parse
	// cleanly: wrong environment, corrupted ciphertext or malformed content.
	ErrUndecodable = errors.New("stored keys could not be decrypted")
)

// Codec converts a key collection to and from the opaque encrypted string
// kept in storage. The passphrase is the environment fingerprint, re-derived on
// every call.
//
// Blob layout: base64(salt[16] || nonce[12] || AES-256-GCM ciphertext+tag),
// with the AES key derived by PBKDF2-SHA256 from the passphrase and salt.
type Codec struct {
	probe driven.EnvironmentProbe
}

// NewCodec creates a Codec that derives its passphrase from probe.
func NewCodec(probe driven.EnvironmentProbe) *Codec {
	return &Codec{probe: probe}
}

// Encode serializes keys to JSON and encrypts the result.
func (c *Codec) Encode(keys model.Collection) (string, error) {
	if keys == nil {
		keys = model.Collection{}
	}

	plaintext, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %w", ErrEncode, err)
	}

	salt := make([]byte, codecSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("%w: rand salt: %w", ErrEncode, err)
	}

	gcm, err := c.newGCM(salt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: rand nonce: %w", ErrEncode, err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decode decrypts and parses a blob produced by Encode. It never returns
// partial data: any failure yields a nil collection and ErrUndecodable.
func (c *Codec) Decode(blob string) (model.Collection, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %w", ErrUndecodable, err)
	}

	if len(data) < codecSaltSize {
		return nil, fmt.Errorf("%w: blob too short", ErrUndecodable)
	}
	salt, rest := data[:codecSaltSize], data[codecSaltSize:]

	gcm, err := c.newGCM(salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrUndecodable)
	}

	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm.Open: %w", ErrUndecodable, err)
	}

	keys, err := parseStoredKeys(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return keys, nil
}

func (c *Codec) newGCM(salt []byte) (cipher.AEAD, error) {
	passphrase := Fingerprint(c.probe.Environment())
	key := pbkdf2.Key([]byte(passphrase), salt, codecKDFIterations, codecKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// legacyConfig is the single-key layout saved before keys became a list.
type legacyConfig struct {
	APIKey   string `json:"apiKey"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// parseStoredKeys accepts either a key list or a legacy single-key object.
func parseStoredKeys(plaintext []byte) (model.Collection, error) {
	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 {
		return nil, errors.New("empty plaintext")
	}

	switch trimmed[0] {
	case '[':
		var keys model.Collection
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return nil, fmt.Errorf("unmarshal keys: %w", err)
		}
		for i, k := range keys {
			if k.ID == "" || k.Secret == "" {
				return nil, fmt.Errorf("stored key %d is missing id or secret", i)
			}
		}
		if keys == nil {
			keys = model.Collection{}
		}
		return keys, nil

	case '{':
		var legacy legacyConfig
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("unmarshal legacy config: %w", err)
		}
		if legacy.APIKey == "" {
			return nil, errors.New("legacy config has no key")
		}
		return model.Collection{{
			ID:       LegacyKeyID,
			Secret:   legacy.APIKey,
			Email:    legacy.Email,
			Password: legacy.Password,
		}}, nil

	default:
		return nil, errors.New("unrecognized plaintext layout")
	}
}
