package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the derived key size for both algorithms.
const KeySize = 32

// MinPassphraseLength is the shortest accepted passphrase.
const MinPassphraseLength = 16

const (
	tagAESGCM   byte = 0x01
	tagChaCha20 byte = 0x02
)

var (
	ErrPassphraseTooShort = errors.New("adaptive: passphrase too short")
	ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")
	ErrUnknownAlgorithm   = errors.New("adaptive: unknown algorithm tag")
	ErrDecryptionFailed   = errors.New("adaptive: decryption failed")
)

// Sealer encrypts and decrypts values with a fixed key.
// It is safe for concurrent use.
type Sealer struct {
	preferred CipherType
	aesgcm    cipher.AEAD
	chacha    cipher.AEAD
}

// NewSealer derives a key from passphrase and info and builds a Sealer.
// info separates keys used for different purposes with the same passphrase.
func NewSealer(passphrase []byte, info string) (*Sealer, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooShort
	}

	key := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, passphrase, nil, []byte(info))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return newSealer(key, preferredCipher())
}

// NewSealerWithType builds a Sealer from a raw 32 byte key that seals with
// the given algorithm.
func NewSealerWithType(key []byte, t CipherType) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("adaptive: key must be %d bytes", KeySize)
	}
	switch t {
	case CipherAESGCM, CipherChaCha20:
	default:
		return nil, errors.New("adaptive: unknown cipher type: " + string(t))
	}
	return newSealer(key, t)
}

func newSealer(key []byte, t CipherType) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	cc, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{preferred: t, aesgcm: gcm, chacha: cc}, nil
}

// Type returns the algorithm used for new values.
func (s *Sealer) Type() CipherType {
	return s.preferred
}

// Seal encrypts plaintext bound to additionalData.
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	tag, aead := tagAESGCM, s.aesgcm
	if s.preferred == CipherChaCha20 {
		tag, aead = tagChaCha20, s.chacha
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = tag
	nonce := out[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(out, nonce, plaintext, additionalData), nil
}

// Open decrypts a value produced by Seal with either algorithm.
func (s *Sealer) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrCiphertextTooShort
	}

	var aead cipher.AEAD
	switch sealed[0] {
	case tagAESGCM:
		aead = s.aesgcm
	case tagChaCha20:
		aead = s.chacha
	default:
		return nil, ErrUnknownAlgorithm
	}

	body := sealed[1:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := aead.Open(nil, body[:aead.NonceSize()], body[aead.NonceSize():], additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// preferredCipher picks AES-GCM on architectures where Go uses hardware AES.
func preferredCipher() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x", "ppc64le":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}
