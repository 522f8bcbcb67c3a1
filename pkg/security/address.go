package security

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/modacart/modacart-backend/pkg/types"
)

// ErrInvalidCiphertext signals a sealed address blob that cannot be opened.
var ErrInvalidCiphertext = fmt.Errorf("invalid address ciphertext")

// AddressCipher seals shipping addresses with XChaCha20-Poly1305 before
// they reach the orders table. The nonce is prepended to the ciphertext.
type AddressCipher struct {
	key []byte
}

// NewAddressCipher builds a cipher from a hex-encoded 256-bit key.
func NewAddressCipher(hexKey string) (*AddressCipher, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("address encryption key is required")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding address encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("address encryption key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &AddressCipher{key: key}, nil
}

// Seal encrypts the address as JSON.
func (c *AddressCipher) Seal(addr types.Address) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("encoding address: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a sealed address blob.
func (c *AddressCipher) Open(sealed []byte) (types.Address, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return types.Address{}, err
	}

	if len(sealed) < aead.NonceSize() {
		return types.Address{}, ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return types.Address{}, ErrInvalidCiphertext
	}

	var addr types.Address
	if err := json.Unmarshal(plaintext, &addr); err != nil {
		return types.Address{}, fmt.Errorf("decoding address: %w", err)
	}
	return addr, nil
}
