package util

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"hlsgrab/enums"
	"hlsgrab/models"

	"github.com/pkg/errors"
)

// Decryptor undoes AES-128-CBC segment encryption for one stream.
// A nil key turns it into the identity function. The underlying block
// cipher is read-only after construction and shared by all workers.
type Decryptor struct {
	block cipher.Block
	iv    []byte
}

func NewDecryptor(key *models.DecryptionKey) (*Decryptor, error) {
	if key == nil {
		return &Decryptor{}, nil
	}
	if !IsValidAESKey(key.Key) {
		return nil, fmt.Errorf("invalid key: expected 16 bytes, got %d", len(key.Key))
	}
	if key.IV != nil && !IsValidIV(key.IV) {
		return nil, fmt.Errorf("invalid IV: expected 16 bytes, got %d", len(key.IV))
	}
	block, err := aes.NewCipher(key.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return &Decryptor{
		block: block,
		iv:    key.IV,
	}, nil
}

func (d *Decryptor) Enabled() bool {
	return d != nil && d.block != nil
}

// Decrypt returns the plaintext of the segment with the given media
// sequence number. Misaligned input is rejected before any block is touched.
func (d *Decryptor) Decrypt(ciphertext []byte, sequence uint64) ([]byte, error) {
	if !d.Enabled() {
		return ciphertext, nil
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecryptError{
			Kind:   enums.DecryptErrorBadAlignment,
			Length: len(ciphertext),
		}
	}
	iv := d.iv
	if iv == nil {
		iv = calculateSegmentIV(GenerateZeroIV(), sequence)
	}
	mode := cipher.NewCBCDecrypter(d.block, iv)
	decryptedData := make([]byte, len(ciphertext))
	mode.CryptBlocks(decryptedData, ciphertext)
	unpaddedData, err := removePKCS7Padding(decryptedData)
	if err != nil {
		return nil, &DecryptError{
			Kind:   enums.DecryptErrorCipherFailure,
			Length: len(ciphertext),
			Err:    fmt.Errorf("failed to remove padding: %w", err),
		}
	}
	return unpaddedData, nil
}

// calculates the IV for a specific segment using media sequence number
// HLS specification: without an explicit IV, the media sequence number
// is used as a big-endian 128-bit IV
func calculateSegmentIV(baseIV []byte, mediaSequence uint64) []byte {
	iv := make([]byte, len(baseIV))
	copy(iv, baseIV)

	// add media sequence to the last 8 bytes of IV (big-endian)
	carry := uint64(0)

	// start from the least significant byte and work backwards
	for i := 15; i >= 8; i-- {
		sum := uint64(iv[i]) + ((mediaSequence >> (8 * (15 - i))) & 0xFF) + carry
		iv[i] = byte(sum & 0xFF)
		carry = sum >> 8
	}
	// handle any remaining carry into the upper bytes
	for i := 7; i >= 0 && carry > 0; i-- {
		sum := uint64(iv[i]) + carry
		iv[i] = byte(sum & 0xFF)
		carry = sum >> 8
	}

	return iv
}

// removes PKCS#7 padding from decrypted data
func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("data is empty")
	}
	paddingLength := int(data[len(data)-1])
	if paddingLength == 0 || paddingLength > aes.BlockSize {
		return nil, fmt.Errorf("invalid padding length: %d", paddingLength)
	}
	if paddingLength > len(data) {
		return nil, fmt.Errorf("padding length (%d) exceeds data length (%d)", paddingLength, len(data))
	}
	for i := len(data) - paddingLength; i < len(data); i++ {
		if data[i] != byte(paddingLength) {
			return nil, fmt.Errorf("invalid padding at position %d", i)
		}
	}
	return data[:len(data)-paddingLength], nil
}

func IsValidAESKey(key []byte) bool {
	return len(key) == 16
}

func IsValidIV(iv []byte) bool {
	return len(iv) == 16
}

func GenerateZeroIV() []byte {
	return make([]byte, 16)
}
