// Package secrets encrypts tenant credentials at rest.
//
// Envelopes are hex(nonce) + ":" + hex(ciphertext) under AES-256-GCM with a
// key derived from the configured passphrase via scrypt and a fixed salt, so
// every process sharing the passphrase can read every envelope.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrCodec is wrapped by every decryption failure: malformed envelopes,
// foreign keys and tampered ciphertext.
var ErrCodec = errors.New("credential codec")

const (
	keySalt = "salt"
	keyLen  = 32

	// scrypt cost parameters (N, r, p).
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	envelopeSep = ":"
)

// Codec encrypts and decrypts credential strings. It is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the process key from passphrase. Derivation is deliberately
// slow; build one Codec at startup and share it.
func NewCodec(passphrase string) (*Codec, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is empty")
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(keySalt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt returns the envelope for plaintext. A nil plaintext yields nil.
func (c *Codec) Encrypt(plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	env, err := c.EncryptString(*plaintext)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// Decrypt opens an envelope. A nil envelope yields nil.
func (c *Codec) Decrypt(envelope *string) (*string, error) {
	if envelope == nil {
		return nil, nil
	}
	p, err := c.DecryptString(*envelope)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EncryptString encrypts a required value.
func (c *Codec) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + envelopeSep + hex.EncodeToString(sealed), nil
}

// DecryptString opens a required envelope.
func (c *Codec) DecryptString(envelope string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(envelope, envelopeSep)
	if !ok {
		return "", fmt.Errorf("%w: missing nonce separator", ErrCodec)
	}

	nonce, err := hex.DecodeString(ivHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: invalid nonce", ErrCodec)
	}
	sealed, err := hex.DecodeString(ctHex)
	if err != nil || len(sealed) < c.aead.Overhead() {
		return "", fmt.Errorf("%w: invalid ciphertext", ErrCodec)
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return string(plaintext), nil
}
