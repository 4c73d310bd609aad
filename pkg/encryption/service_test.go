package encryption

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, defaultKey string) *Service {
	t.Helper()
	return NewService(slog.Default(), defaultKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestService(t, "0123456789abcdef0123456789abcdef")

	tests := []struct {
		name     string
		value    string
		withSalt bool
	}{
		{"plain value", "hunter2", false},
		{"salted value", "hunter2", true},
		{"empty value", "", false},
		{"unicode value", "wachtwoord-émoji-ok", true},
		{"block sized value", "0123456789abcdef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := svc.EncryptWithAes(tt.value, "", tt.withSalt)
			require.NoError(t, err)
			assert.NotEqual(t, tt.value, encrypted)

			decrypted, err := svc.DecryptWithAes(encrypted, "")
			require.NoError(t, err)
			assert.Equal(t, tt.value, decrypted)
		})
	}
}

func TestSaltedEncryptionDiffersPerCall(t *testing.T) {
	svc := newTestService(t, "0123456789abcdef0123456789abcdef")

	first, err := svc.EncryptWithAes("same value", "", true)
	require.NoError(t, err)
	second, err := svc.EncryptWithAes("same value", "", true)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestEncryptWithoutKeyFails(t *testing.T) {
	svc := newTestService(t, "")

	_, err := svc.EncryptWithAes("value", "", false)
	assert.ErrorIs(t, err, ErrKeyNotConfigured)
}

func TestPerCallKeyOverridesDefault(t *testing.T) {
	svc := newTestService(t, "default-key-default-key-default!")

	encrypted, err := svc.EncryptWithAes("value", "per-call-key", false)
	require.NoError(t, err)

	_, err = svc.DecryptWithAes(encrypted, "")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	decrypted, err := svc.DecryptWithAes(encrypted, "per-call-key")
	require.NoError(t, err)
	assert.Equal(t, "value", decrypted)
}

func TestDecryptGarbageFails(t *testing.T) {
	svc := newTestService(t, "0123456789abcdef0123456789abcdef")

	_, err := svc.DecryptWithAes("not base64 at all!!!", "")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = svc.DecryptWithAes("QUJD", "")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestHashWithSha512IsDeterministic(t *testing.T) {
	svc := newTestService(t, "")

	first := svc.HashWithSha512("wachtwoord")
	second := svc.HashWithSha512("wachtwoord")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, svc.HashWithSha512("Wachtwoord"))
	// SHA-512 digest is 64 bytes, 88 characters in base64.
	assert.Len(t, first, 88)
}

func TestEncryptDecryptID(t *testing.T) {
	svc := newTestService(t, "0123456789abcdef0123456789abcdef")

	encrypted, err := svc.EncryptID(123456, "")
	require.NoError(t, err)

	id, err := svc.DecryptID(encrypted, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), id)
}
