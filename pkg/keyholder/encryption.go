package keyholder

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltSize = 16
	// salt | memory(4) | iterations(4) | parallelism(1) | nonce | ciphertext
	headerSize = saltSize + 4 + 4 + 1
)

var ErrWrongPasscode = errors.New("wrong passcode")

// KDFParams are Argon2id parameters.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

func DefaultKDFParams() KDFParams {
	return KDFParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

func deriveKey(passcode, salt []byte, params KDFParams) []byte {
	return argon2.IDKey(passcode, salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func encrypt(data, passcode []byte, params KDFParams) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "generate salt")
	}
	key := deriveKey(passcode, salt, params)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	out := make([]byte, 0, headerSize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, nil), nil
}

func decrypt(encrypted, passcode []byte) ([]byte, error) {
	if len(encrypted) < headerSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, errors.Errorf("encrypted data too short: %d bytes", len(encrypted))
	}
	params := KDFParams{
		Memory:      binary.LittleEndian.Uint32(encrypted[saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(encrypted[saltSize+4:]),
		Parallelism: encrypted[saltSize+8],
	}
	key := deriveKey(passcode, encrypted[:saltSize], params)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}
	nonce := encrypted[headerSize : headerSize+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, encrypted[headerSize+chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, ErrWrongPasscode
	}
	return plaintext, nil
}
