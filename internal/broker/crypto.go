package broker

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrEnvelope marks a demo-key envelope that could not be decrypted,
// whether malformed on the wire or failing padding validation.
var ErrEnvelope = errors.New("invalid key envelope")

// GenerateHMAC computes HMAC-SHA256 over the UTF-8 bytes of deviceID,
// keyed by the UTF-8 bytes of the raw PSK string (not decoded), and
// returns the standard-base64 digest. The byte encodings are part of the
// wire contract: the same HMAC must be reproducible outside this process.
func GenerateHMAC(psk, deviceID string) string {
	mac := hmac.New(sha256.New, []byte(psk))
	mac.Write([]byte(deviceID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// DecryptEnvelope decrypts a server-issued "<ivHex>:<cipherHex>" envelope
// with AES-256-CBC/PKCS5 under key = SHA-256(raw PSK string bytes).
// Any malformed envelope returns an error, never a panic.
func DecryptEnvelope(psk, envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: want iv:cipher, got %d parts", ErrEnvelope, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad iv hex: %v", ErrEnvelope, err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrEnvelope, aes.BlockSize, len(iv))
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext hex: %v", ErrEnvelope, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d not a block multiple", ErrEnvelope, len(ciphertext))
	}

	key := sha256.Sum256([]byte(psk))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs5Unpad(plaintext)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// pkcs5Unpad strips PKCS5 padding, validating every padding byte.
func pkcs5Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrEnvelope)
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrEnvelope)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: invalid padding", ErrEnvelope)
		}
	}
	return data[:len(data)-pad], nil
}
