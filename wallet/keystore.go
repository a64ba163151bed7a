// Package wallet stores signing keys on disk and builds signed
// transactions for them.
package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
)

// ErrWrongPassword is returned when a keystore does not decrypt.
var ErrWrongPassword = errors.New("wrong password or corrupted keystore")

type keystoreFile struct {
	Pubkey     core.Pubkey `json:"pubkey"`
	Salt       string      `json:"salt"`
	Nonce      string      `json:"nonce"`
	CipherText string      `json:"cipher_text"`
}

// SaveKey encrypts priv with password and writes it to path.
// Key derivation: PBKDF2-SHA256, 210k iterations.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	cipherText := gcm.Seal(nil, nonce, priv, nil)

	ks := keystoreFile{
		Pubkey:     core.PubkeyOf(priv),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
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
	return decryptKeystore(data, password)
}

func decryptKeystore(data []byte, password string) (crypto.PrivateKey, error) {
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, errors.Wrap(err, "parse keystore")
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, errors.Wrap(err, "keystore salt")
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, errors.Wrap(err, "keystore nonce")
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, errors.Wrap(err, "keystore cipher text")
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	secret, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	priv, err := crypto.KeyFromSecret(secret)
	if err != nil {
		return nil, err
	}
	if core.PubkeyOf(priv) != ks.Pubkey {
		return nil, errors.Errorf("keystore holds %s, header says %s", core.PubkeyOf(priv), ks.Pubkey)
	}
	return priv, nil
}

// SaveKeypair writes priv unencrypted as a JSON array of its 64 secret key
// bytes, the format command-line wallets exchange.
func SaveKeypair(path string, priv crypto.PrivateKey) error {
	ints := make([]int, len(priv))
	for i, b := range priv {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeypair reads a file written by SaveKeypair.
func LoadKeypair(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseKeypair(data)
}

func parseKeypair(data []byte) (crypto.PrivateKey, error) {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, errors.Wrap(err, "parse keypair")
	}
	secret := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, errors.Errorf("keypair byte %d out of range: %d", i, v)
		}
		secret[i] = byte(v)
	}
	return crypto.KeyFromSecret(secret)
}

// Load reads either format: a JSON byte array is a plain keypair,
// anything else is treated as an encrypted keystore.
func Load(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return parseKeypair(trimmed)
	}
	return decryptKeystore(data, password)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, 210_000, 32, sha256.New)
}
