// Package encryption implements row-level field encryption for tenant
// databases: the AES-256-CBC codec, the per-tenant key registry and live key
// rotation.
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the raw key length in bytes (AES-256).
const KeySize = 32

var (
	ErrKeySize    = errors.New("encryption: key must be 32 bytes")
	ErrCiphertext = errors.New("encryption: malformed ciphertext")
	ErrPadding    = errors.New("encryption: invalid padding")
	ErrPlaintext  = errors.New("encryption: decrypted value is not text")
)

var zeroIV = make([]byte, aes.BlockSize)

// Codec encrypts single column values. With legacy set it uses an all-zero
// IV and stores bare ciphertext; otherwise each value gets a random IV
// stored as the first block.
type Codec struct {
	legacy  bool
	subkeys sync.Map
}

// NewCodec returns a codec in random-IV mode, or zero-IV mode when
// legacyZeroIV is true.
func NewCodec(legacyZeroIV bool) *Codec {
	return &Codec{legacy: legacyZeroIV}
}

// Legacy reports whether the codec uses the fixed zero IV.
func (c *Codec) Legacy() bool {
	return c.legacy
}

// GenerateKey returns fresh random key material.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext with key.
func (c *Codec) Encrypt(key []byte, plaintext string) ([]byte, error) {
	if c.legacy {
		return encryptCBC(key, zeroIV, []byte(plaintext), false)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	return encryptCBC(key, iv, []byte(plaintext), true)
}

// Decrypt opens a value produced by Encrypt in the same mode.
func (c *Codec) Decrypt(key []byte, data []byte) (string, error) {
	if c.legacy {
		return DecryptLegacy(key, data)
	}
	return DecryptRandomIV(key, data)
}

// DecryptRandomIV opens iv||ciphertext.
func DecryptRandomIV(key, data []byte) (string, error) {
	if len(data) < 2*aes.BlockSize {
		return "", ErrCiphertext
	}
	return decryptCBC(key, data[:aes.BlockSize], data[aes.BlockSize:])
}

// DecryptLegacy opens bare ciphertext written with the zero IV.
func DecryptLegacy(key, data []byte) (string, error) {
	return decryptCBC(key, zeroIV, data)
}

// Hash returns the searchable keyed hash of plaintext under key.
func (c *Codec) Hash(key []byte, plaintext string) string {
	mac := hmac.New(sha256.New, c.subkey(key))
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// subkey derives the hashing key so the data key itself never keys the MAC.
func (c *Codec) subkey(key []byte) []byte {
	if v, ok := c.subkeys.Load(string(key)); ok {
		return v.([]byte)
	}
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, key, nil, []byte("adms search hash v1"))
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf only fails when asked for more than 255 blocks.
		panic(err)
	}
	c.subkeys.Store(string(key), out)
	return out
}

func encryptCBC(key, iv, plaintext []byte, prefixIV bool) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)

	out := make([]byte, 0, len(iv)+len(padded))
	if prefixIV {
		out = append(out, iv...)
	}
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return append(out, ct...), nil
}

func decryptCBC(key, iv, ct []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrKeySize
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", ErrPlaintext
	}
	return string(plain), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrPadding
		}
	}
	return b[:len(b)-n], nil
}
