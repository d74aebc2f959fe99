// Package crypto - шифрование секретов биржи в конфигурации и хеширование API токенов.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// SecretPrefix помечает зашифрованное значение в конфиге: "enc:<base64>"
const SecretPrefix = "enc:"

var (
	ErrInvalidKeyLength  = errors.New("encryption key must be 32 bytes (raw) or 64 hex chars")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed: authentication error")
	ErrMissingKey        = errors.New("encrypted secret requires ENCRYPTION_KEY")
)

// ParseKey принимает ключ AES-256 как 32 байта или как 64 hex-символа
func ParseKey(s string) ([]byte, error) {
	switch len(s) {
	case 32:
		return []byte(s), nil
	case 64:
		key, err := hex.DecodeString(s)
		if err != nil {
			return nil, ErrInvalidKeyLength
		}
		return key, nil
	default:
		return nil, ErrInvalidKeyLength
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt шифрует plaintext AES-256-GCM, результат - base64(nonce|ciphertext|tag)
func Encrypt(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt - обратная операция к Encrypt
func Decrypt(encoded string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, data := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// SealSecret возвращает значение для конфига с префиксом enc:
func SealSecret(plaintext string, key []byte) (string, error) {
	enc, err := Encrypt(plaintext, key)
	if err != nil {
		return "", err
	}
	return SecretPrefix + enc, nil
}

// OpenSecret расшифровывает значение с префиксом enc:, остальные возвращает как есть
func OpenSecret(value string, key []byte) (string, error) {
	if !strings.HasPrefix(value, SecretPrefix) {
		return value, nil
	}
	if len(key) == 0 {
		return "", ErrMissingKey
	}
	return Decrypt(strings.TrimPrefix(value, SecretPrefix), key)
}

// GenerateKey - случайный 32-байтный ключ
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKeyHex - ключ в hex для .env
func GenerateKeyHex() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
