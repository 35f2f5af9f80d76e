// Package e2e encrypts and decrypts message bodies with a room-scoped
// key. The wire format is the OpenSSL salted container the service has
// always used: base64("Salted__" || salt[8] || AES-256-CBC ciphertext)
// with key and IV derived from the passphrase via EVP_BytesToKey (MD5).
//
// The helper is fail-open: encryption errors return the plaintext and
// decryption never blocks a message from rendering. Callers get a typed
// Result and choose how to display undecryptable bodies.
package e2e

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// CiphertextMarker is the base64 rendering of the "Salted__" magic. Any
// body without this prefix is treated as plaintext and passed through.
const CiphertextMarker = "U2FsdGVkX"

const (
	saltedMagic = "Salted__"
	saltLen     = 8
	keyLen      = 32
	ivLen       = aes.BlockSize
)

// State classifies a Decrypt result.
type State int

const (
	// StatePlaintext: the input carried no ciphertext marker and was
	// returned unchanged.
	StatePlaintext State = iota
	// StateDecrypted: the input was ciphertext and decrypted cleanly.
	StateDecrypted
	// StateUndecryptable: the input looked like ciphertext but could not
	// be decrypted with the given key. Text holds the raw input.
	StateUndecryptable
)

// Result is the outcome of a Decrypt call.
type Result struct {
	Text  string
	State State
}

// Encrypt returns the encrypted form of plaintext under key. Empty
// plaintext or key passes through unchanged. Internal failures are
// logged and return the plaintext — delivery is never blocked on
// crypto errors.
func Encrypt(plaintext, key string) string {
	if plaintext == "" || key == "" {
		return plaintext
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		log.Warn().Err(err).Msg("e2e: salt generation failed, sending plaintext")
		return plaintext
	}

	aesKey, iv := evpBytesToKey([]byte(key), salt)
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		log.Warn().Err(err).Msg("e2e: cipher init failed, sending plaintext")
		return plaintext
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(saltedMagic)+saltLen+len(padded))
	copy(out, saltedMagic)
	copy(out[len(saltedMagic):], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(saltedMagic)+saltLen:], padded)

	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt. Inputs without the ciphertext marker are
// returned as StatePlaintext. Marked inputs that fail to decrypt come
// back as StateUndecryptable with the raw ciphertext in Text, so the
// caller decides the display treatment.
func Decrypt(ciphertext, key string) Result {
	if ciphertext == "" || key == "" || !strings.HasPrefix(ciphertext, CiphertextMarker) {
		return Result{Text: ciphertext, State: StatePlaintext}
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return undecryptable(ciphertext, err)
	}
	if len(raw) < len(saltedMagic)+saltLen || string(raw[:len(saltedMagic)]) != saltedMagic {
		return undecryptable(ciphertext, fmt.Errorf("malformed salted container"))
	}
	body := raw[len(saltedMagic)+saltLen:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return undecryptable(ciphertext, fmt.Errorf("ciphertext length %d not block-aligned", len(body)))
	}

	aesKey, iv := evpBytesToKey([]byte(key), raw[len(saltedMagic):len(saltedMagic)+saltLen])
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return undecryptable(ciphertext, err)
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return undecryptable(ciphertext, err)
	}
	if len(plain) == 0 || !utf8.Valid(plain) {
		return undecryptable(ciphertext, fmt.Errorf("decrypted body is not valid text"))
	}
	return Result{Text: string(plain), State: StateDecrypted}
}

func undecryptable(ciphertext string, err error) Result {
	log.Debug().Err(err).Msg("e2e: decrypt failed, returning ciphertext")
	return Result{Text: ciphertext, State: StateUndecryptable}
}

// GenerateKey returns a fresh room key: 32 random bytes, hex encoded.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("e2e.GenerateKey: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// evpBytesToKey derives an AES-256 key and IV from a passphrase and salt
// using the OpenSSL EVP_BytesToKey scheme with MD5 and one iteration.
func evpBytesToKey(passphrase, salt []byte) (key, iv []byte) {
	var derived []byte
	var prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return b[:len(b)-n], nil
}
