package conn

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

type crypt struct {
	Key []byte
}

// NewCrypt returns a new crypt object, with a cryptographic key derived from
// the specified session key and salt.
func NewCrypt(sessionkey, salt []byte) crypt {
	return crypt{
		Key: pbkdf2.Key(sessionkey, salt, 100, 32, sha256.New),
	}
}

// Encrypt encrypts the provided message using the shared key and a random nonce that is prepended to the message.
func (s crypt) Encrypt(unencrypted []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.Key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("unable to generate random nonce: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	encrypted := aesgcm.Seal(nil, nonce, unencrypted, nil)
	return append(nonce, encrypted...), nil
}

// Decrypt decrypts the provided message with the shared key.
func (s crypt) Decrypt(encrypted []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.Key)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(encrypted) < 12 {
		return nil, errors.New("encrypted message too short")
	}
	return aesgcm.Open(nil, encrypted[:12], encrypted[12:], nil)
}
