// Package encryption provides the value-level security used by secure-input
// fields and encrypted item ids: AES-256-CBC encryption (optionally salted)
// and SHA-512 hashing.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/pbkdf2"

	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

const (
	keyIterations = 10000
	keyLength     = 32
	saltLength    = 16
)

// Common errors.
var (
	ErrKeyNotConfigured = errors.New("encryption key not configured")
	ErrDecryptionFailed = errors.New("failed to decrypt data")
)

// Service encrypts and hashes field values. The default key comes from
// configuration; callers may override it per operation.
type Service struct {
	log        *slog.Logger
	defaultKey string
}

// NewService creates a new encryption service with the given default key.
func NewService(log *slog.Logger, defaultKey string) *Service {
	svc := &Service{
		log:        log.With(logger.Scope("encryption")),
		defaultKey: defaultKey,
	}

	if defaultKey == "" {
		svc.log.Warn("no default encryption key configured, callers must supply one per operation")
	}

	return svc
}

// resolveKey picks the per-call key or falls back to the configured default.
func (s *Service) resolveKey(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	if s.defaultKey != "" {
		return s.defaultKey, nil
	}
	return "", ErrKeyNotConfigured
}

// EncryptWithAes encrypts a value with AES-256-CBC. When withSalt is true a
// random salt is used for key derivation and stored with the ciphertext, so
// the same plaintext encrypts differently every call.
func (s *Service) EncryptWithAes(value, key string, withSalt bool) (string, error) {
	resolvedKey, err := s.resolveKey(key)
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltLength)
	if withSalt {
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
	}

	block, err := aes.NewCipher(deriveKey(resolvedKey, salt))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	plaintext := pkcs7Pad([]byte(value), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	// Layout: salt | iv | ciphertext. The salt is all zeroes when unsalted,
	// which keeps decryption layout-independent.
	payload := make([]byte, 0, saltLength+aes.BlockSize+len(ciphertext))
	payload = append(payload, salt...)
	payload = append(payload, iv...)
	payload = append(payload, ciphertext...)

	return base64.URLEncoding.EncodeToString(payload), nil
}

// DecryptWithAes reverses EncryptWithAes.
func (s *Service) DecryptWithAes(value, key string) (string, error) {
	resolvedKey, err := s.resolveKey(key)
	if err != nil {
		return "", err
	}

	payload, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(payload) < saltLength+aes.BlockSize || (len(payload)-saltLength)%aes.BlockSize != 0 {
		return "", ErrDecryptionFailed
	}

	salt := payload[:saltLength]
	iv := payload[saltLength : saltLength+aes.BlockSize]
	ciphertext := payload[saltLength+aes.BlockSize:]

	block, err := aes.NewCipher(deriveKey(resolvedKey, salt))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(unpadded), nil
}

// HashWithSha512 returns the base64 SHA-512 digest of a value. Used by
// secure-input fields configured with the hash security method.
func (s *Service) HashWithSha512(value string) string {
	digest := sha512.Sum512([]byte(value))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// EncryptID encrypts a numeric item id into a URL-safe token.
func (s *Service) EncryptID(id uint64, key string) (string, error) {
	return s.EncryptWithAes(strconv.FormatUint(id, 10), key, false)
}

// DecryptID reverses EncryptID.
func (s *Service) DecryptID(encryptedID, key string) (uint64, error) {
	decrypted, err := s.DecryptWithAes(encryptedID, key)
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseUint(decrypted, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a numeric id", ErrDecryptionFailed)
	}

	return id, nil
}

func deriveKey(key string, salt []byte) []byte {
	return pbkdf2.Key([]byte(key), salt, keyIterations, keyLength, sha256.New)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
