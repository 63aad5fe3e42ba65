// Package securestore seals small secrets, such as a wallet mnemonic, with a
// passphrase-derived key before they are written to the data directory.
package securestore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	sealedPrefix    = "WALLETD-SEALED1\n"

	kdfName     = "argon2id"
	kdfTime     = 2
	kdfMemoryKB = 64 * 1024
	kdfThreads  = 1
)

var (
	ErrAuthFailed = errors.New("securestore: wrong passphrase or tampered data")
	ErrInvalid    = errors.New("securestore: envelope is invalid")
	ErrNotSealed  = errors.New("securestore: data is not sealed")
	ErrPassphrase = errors.New("securestore: passphrase is required")
)

type envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Seal encrypts plaintext under passphrase. label is bound as associated data,
// so a sealed blob only opens under the label it was sealed with.
func Seal(passphrase, label string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphrase
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt, kdfTime, kdfMemoryKB, kdfThreads)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(envelope{
		Version:     envelopeVersion,
		KDF:         kdfName,
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, []byte(label)),
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(sealedPrefix), raw...), nil
}

func Open(passphrase, label string, sealed []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphrase
	}
	if !bytes.HasPrefix(sealed, []byte(sealedPrefix)) {
		return nil, ErrNotSealed
	}
	var env envelope
	if err := json.Unmarshal(sealed[len(sealedPrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	if !env.valid() {
		return nil, ErrInvalid
	}
	key := deriveKey(passphrase, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrInvalid
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(label))
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// valid only accepts the parameters Seal writes. The KDF cost comes from the
// file, so anything else could make argon2 panic or allocate without bound.
func (e envelope) valid() bool {
	return e.Version == envelopeVersion &&
		e.KDF == kdfName &&
		e.KDFTime == kdfTime &&
		e.KDFMemoryKB == kdfMemoryKB &&
		e.KDFThreads == kdfThreads &&
		len(e.Salt) == saltSize
}

func deriveKey(passphrase string, salt []byte, time, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, time, memoryKB, threads, chacha20poly1305.KeySize)
}
