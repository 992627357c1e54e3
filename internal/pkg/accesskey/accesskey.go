package accesskey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	keccak "github.com/wealdtech/go-merkletree/keccak256"
)

const Size = 32

// Hash is the keccak256 commitment a private game publishes. The zero value
// marks a public game.
type Hash [Size]byte

var ErrMalformedHash = errors.New("access key hash must be 32 bytes of hex")

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Matches compares in constant time so a joiner learns nothing about the commitment from timing.
func (h Hash) Matches(key []byte) bool {
	computed := Commit(key)
	return subtle.ConstantTimeCompare(computed[:], h[:]) == 1
}

func Commit(key []byte) Hash {
	var h Hash
	copy(h[:], keccak.New().Hash(key))
	return h
}

// ParseHash accepts an optionally 0x-prefixed hex string. An empty string is
// the zero hash.
func ParseHash(value string) (Hash, error) {
	var h Hash
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return h, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != Size {
		return h, ErrMalformedHash
	}
	copy(h[:], decoded)
	return h, nil
}

// ParseKey turns the key a joiner supplies into the bytes that were
// committed to. A 0x-prefixed hex string is decoded, anything else is taken
// as its UTF-8 bytes.
func ParseKey(value string) []byte {
	if strings.HasPrefix(value, "0x") {
		if decoded, err := hex.DecodeString(value[2:]); err == nil {
			return decoded
		}
	}
	return []byte(value)
}

// Generate returns a fresh random key in 0x-hex form with its commitment.
func Generate() (string, Hash, error) {
	key := make([]byte, Size)
	if _, err := rand.Read(key); err != nil {
		return "", Hash{}, err
	}
	return "0x" + hex.EncodeToString(key), Commit(key), nil
}
