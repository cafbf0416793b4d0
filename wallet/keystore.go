package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/tolmarket/crypto"
)

const (
	keystoreVersion = 1
	kdfIterations   = 210_000
	kdfKeyLen       = 32
	saltLen         = 16
)

// ErrWrongPassword is returned when a keystore cannot be decrypted.
var ErrWrongPassword = errors.New("wrong password or corrupted keystore")

// keystoreFile is the on-disk form: an AES-256-GCM sealed private key
// under a PBKDF2-SHA256 derived key. Identity is kept in clear so the
// file can be matched to an account without the password.
type keystoreFile struct {
	Version    int    `json:"version"`
	Identity   string `json:"identity"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// SaveKey encrypts priv with password and writes it to path, readable by
// the owner only.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	gcm, err := newGCM(password, salt, kdfIterations)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	data, err := json.MarshalIndent(keystoreFile{
		Version:    keystoreVersion,
		Identity:   priv.Public().Hex(),
		Iterations: kdfIterations,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(gcm.Seal(nil, nonce, priv, nil)),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("keystore %s: %w", path, err)
	}
	if ks.Version != keystoreVersion {
		return nil, fmt.Errorf("keystore %s: unsupported version %d", path, ks.Version)
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, fmt.Errorf("keystore salt: %w", err)
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, fmt.Errorf("keystore nonce: %w", err)
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, fmt.Errorf("keystore cipher text: %w", err)
	}

	gcm, err := newGCM(password, salt, ks.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassword
	}
	plain, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	priv := crypto.PrivateKey(plain)
	if priv.Public().Hex() != ks.Identity {
		return nil, fmt.Errorf("keystore %s: key does not match identity %s", path, ks.Identity)
	}
	return priv, nil
}

// KeyIdentity returns the identity recorded in a keystore without
// decrypting it.
func KeyIdentity(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return "", fmt.Errorf("keystore %s: %w", path, err)
	}
	return ks.Identity, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	if iterations <= 0 {
		return nil, errors.New("keystore: missing kdf iterations")
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
