package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrypt(t *testing.T) {
	c := NewCrypt([]byte("sessionkey"), []byte("andsalt!"))

	t.Run("round trip", func(t *testing.T) {
		oracle := []byte("a carrier pigeon walks into a bar")
		enc, err := c.Encrypt(oracle)
		assert.Nil(t, err)
		assert.NotEqual(t, oracle, enc)

		dec, err := c.Decrypt(enc)
		assert.Nil(t, err)
		assert.Equal(t, oracle, dec)
	})

	t.Run("distinct nonces", func(t *testing.T) {
		enc1, err := c.Encrypt([]byte("same message"))
		assert.Nil(t, err)
		enc2, err := c.Encrypt([]byte("same message"))
		assert.Nil(t, err)
		assert.NotEqual(t, enc1, enc2)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		enc, err := c.Encrypt([]byte("secret"))
		assert.Nil(t, err)

		other := NewCrypt([]byte("otherkey"), []byte("andsalt!"))
		_, err = other.Decrypt(enc)
		assert.NotNil(t, err)
	})

	t.Run("truncated ciphertext fails", func(t *testing.T) {
		_, err := c.Decrypt([]byte("short"))
		assert.NotNil(t, err)
	})
}
