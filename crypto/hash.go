package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ProtocolIdentity returns the identity of an account held by the chain
// itself, such as marketplace escrow. It has the shape of a public key but
// nobody holds a private key for it, so no transaction can be signed from it.
func ProtocolIdentity(label string) string {
	return Hash([]byte("tolmarket/" + label))
}
