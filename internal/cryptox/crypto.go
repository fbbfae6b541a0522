// Package cryptox seals and opens files on the client before they leave
// the machine. The server only ever sees ciphertext and the nonce.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/securedrop/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

// Sealed is the result of encrypting one file under a fresh key.
type Sealed struct {
	Ciphertext []byte
	Key        []byte
	Nonce      []byte
}

// Wipe zeroes the key held by s.
func (s *Sealed) Wipe() {
	common.WipeByteArray(s.Key)
}

// Seal encrypts plaintext with AES-256-GCM using a freshly generated key
// and nonce. No additional data is authenticated.
//
// Example:
//
//	sealed, err := cryptox.Seal(data)
//	if err != nil {
//	    return err
//	}
//	defer sealed.Wipe()
func Seal(plaintext []byte) (*Sealed, error) {
	key, err := common.RandomBytes(KeySize)
	if err != nil {
		return nil, err
	}
	nonce, err := common.RandomBytes(NonceSize)
	if err != nil {
		return nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return &Sealed{
		Ciphertext: aesgcm.Seal(nil, nonce, plaintext, nil),
		Key:        key,
		Nonce:      nonce,
	}, nil
}

// Open decrypts ciphertext produced by Seal. A wrong key, a wrong nonce or
// any modification of the ciphertext yields common.ErrDecryptionFailed.
// Inputs of the wrong length yield common.ErrValidation.
func Open(ciphertext, key, nonce []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrValidation, KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", common.ErrValidation, NonceSize, len(nonce))
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
