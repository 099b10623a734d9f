package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jamiah-chat/internal/security"
)

func TestEncryptor(t *testing.T) {
	enc, err := security.NewEncryptor([]byte("any-length-secret"))
	assert.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		ciphertext, err := enc.Encrypt("hello world")
		assert.NoError(t, err)
		assert.NotEqual(t, "hello world", ciphertext)

		plain, err := enc.Decrypt(ciphertext)
		assert.NoError(t, err)
		assert.Equal(t, "hello world", plain)
	})

	t.Run("NonDeterministicNonce", func(t *testing.T) {
		c1, err := enc.Encrypt("same input")
		assert.NoError(t, err)
		c2, err := enc.Encrypt("same input")
		assert.NoError(t, err)
		assert.NotEqual(t, c1, c2)
	})

	t.Run("WrongKeyFails", func(t *testing.T) {
		other, err := security.NewEncryptor([]byte("different-secret"))
		assert.NoError(t, err)

		ciphertext, err := enc.Encrypt("secret message")
		assert.NoError(t, err)

		_, err = other.Decrypt(ciphertext)
		assert.Error(t, err)
	})

	t.Run("PlainTextFailsDecryption", func(t *testing.T) {
		_, err := enc.Decrypt("not encrypted at all")
		assert.Error(t, err)
	})

	t.Run("EmptyKeyRejected", func(t *testing.T) {
		_, err := security.NewEncryptor(nil)
		assert.Error(t, err)
	})
}

func TestTokenService(t *testing.T) {
	tokens := security.NewTokenService("secret", time.Hour)

	t.Run("RoundTrip", func(t *testing.T) {
		tok, err := tokens.CreateForUser("user-1")
		assert.NoError(t, err)

		claims, err := tokens.Parse(tok)
		assert.NoError(t, err)
		assert.Equal(t, "user-1", security.Subject(claims))
	})

	t.Run("WrongSecretRejected", func(t *testing.T) {
		tok, err := tokens.CreateForUser("user-1")
		assert.NoError(t, err)

		other := security.NewTokenService("other-secret", time.Hour)
		_, err = other.Parse(tok)
		assert.Error(t, err)
	})

	t.Run("ExpiredRejected", func(t *testing.T) {
		tok, err := tokens.CreateWithTTL("user-1", -time.Minute)
		assert.NoError(t, err)

		_, err = tokens.Parse(tok)
		assert.Error(t, err)
	})
}

func TestPasswordHasher(t *testing.T) {
	hasher := security.NewPasswordHasher(4)

	hashed, err := hasher.Hash("Password1!")
	assert.NoError(t, err)
	assert.NotEqual(t, "Password1!", hashed)

	assert.NoError(t, hasher.Verify("Password1!", hashed))
	assert.Error(t, hasher.Verify("wrong", hashed))
}
