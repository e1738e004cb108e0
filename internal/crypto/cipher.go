package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// NonceSize размер nonce для AES-GCM
	NonceSize = 12
	// KeySize длина ключа AES-256
	KeySize = 32
)

// ErrDecrypt возвращается, если данные повреждены или ключ не подходит
var ErrDecrypt = errors.New("failed to decrypt: authentication failed or corrupted data")

// Sealer шифрует документы записей AES-256-GCM.
// Имя записи используется как additional data, поэтому
// шифротекст нельзя незаметно переложить под другое имя.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer создает Sealer для 32-байтного ключа
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal шифрует plaintext, привязывая его к name.
// Формат результата: nonce (12 bytes) + ciphertext + auth_tag (16 bytes)
func (s *Sealer) Seal(name string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, []byte(name)), nil
}

// Open расшифровывает результат Seal для того же name
func (s *Sealer) Open(name string, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("sealed data too short: %w", ErrDecrypt)
	}

	plaintext, err := s.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return plaintext, nil
}
