// Package cryptox provides the AES-256-GCM envelope used to store git
// remote credentials at rest: a server-held secret is hashed down to a
// 32-byte key, and each ciphertext is prefixed with the random nonce
// used to produce it, the same shape used elsewhere in the reference
// stack for at-rest file encryption.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/refmd-collab/docserver/internal/apperr"
)

// deriveKey reduces an arbitrary-length secret to the 32 bytes
// AES-256 requires.
func deriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// Encrypt seals plaintext under serverSecret, returning nonce||ciphertext.
func Encrypt(serverSecret string, plaintext []byte) ([]byte, error) {
	key := deriveKey(serverSecret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Errorf("cryptox: new cipher: %w", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Errorf("cryptox: new gcm: %w", err))
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Errorf("cryptox: read nonce: %w", err))
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext blob produced by Encrypt.
func Decrypt(serverSecret string, blob []byte) ([]byte, error) {
	key := deriveKey(serverSecret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Errorf("cryptox: new cipher: %w", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Errorf("cryptox: new gcm: %w", err))
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, apperr.New(apperr.EncodingError, "cryptox: ciphertext shorter than nonce")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, fmt.Errorf("cryptox: decrypt: %w", err))
	}
	return plaintext, nil
}
