// Package security implements the signing and key-management primitives used
// by identifier clients: RSA key pairs, SHA256-with-RSA signatures, and
// passphrase-encrypted private key files.
package security // import "github.com/teleinfo-cn/idpointer/security"

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/teleinfo-cn/idpointer/pkg/atomicfile"
)

const (
	// KeySize is the modulus size of generated RSA key pairs.
	KeySize = 2048

	// kdfIterations is the PBKDF2 iteration count for encrypted key files.
	kdfIterations = 65536

	keyBlockType          = "RSA PRIVATE KEY"
	encryptedKeyBlockType = "IDPOINTER ENCRYPTED PRIVATE KEY"
	publicKeyBlockType    = "PUBLIC KEY"
)

// ErrPassphraseRequired is returned when loading an encrypted private key
// without a passphrase.
var ErrPassphraseRequired = errors.New("private key is encrypted: passphrase required")

// GenerateKeyPair returns a new RSA key pair for identifier administration.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, KeySize)
}

// Sign signs data with the private key using SHA256-with-RSA.
func Sign(data []byte, key *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

// Verify reports whether sig is a valid SHA256-with-RSA signature of data.
func Verify(data []byte, pub *rsa.PublicKey, sig []byte) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}

// MarshalPublicKey encodes pub as a PEM block.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyBlockType, Bytes: der}), nil
}

// ParsePublicKey decodes a PEM encoded public key.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != publicKeyBlockType {
		return nil, errors.New("no public key block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
	return rsaPub, nil
}

// SavePrivateKey writes key to path. With a non-empty passphrase the key
// material is encrypted with AES-256-GCM under a PBKDF2 derived key. The
// write is atomic so a crash cannot corrupt an existing key file.
func SavePrivateKey(path string, key *rsa.PrivateKey, passphrase []byte) error {
	der := x509.MarshalPKCS1PrivateKey(key)

	var block *pem.Block
	if len(passphrase) == 0 {
		block = &pem.Block{Type: keyBlockType, Bytes: der}
	} else {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		sealed, err := seal(der, passphrase, salt)
		if err != nil {
			return err
		}
		block = &pem.Block{
			Type:    encryptedKeyBlockType,
			Headers: map[string]string{"Salt": fmt.Sprintf("%x", salt)},
			Bytes:   sealed,
		}
	}

	return atomicfile.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// LoadPrivateKey reads a private key written by SavePrivateKey, decrypting
// it with passphrase when the file is encrypted.
func LoadPrivateKey(path string, passphrase []byte) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no key block found in %s", path)
	}

	switch block.Type {
	case keyBlockType:
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case encryptedKeyBlockType:
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		salt, err := hex.DecodeString(block.Headers["Salt"])
		if err != nil {
			return nil, fmt.Errorf("malformed key file salt: %s", err)
		}
		der, err := open(block.Bytes, passphrase, salt)
		if err != nil {
			return nil, err
		}
		return x509.ParsePKCS1PrivateKey(der)
	default:
		return nil, fmt.Errorf("unsupported key block type %q", block.Type)
	}
}

func gcm(passphrase, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key(passphrase, salt, kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(plaintext, passphrase, salt []byte) ([]byte, error) {
	aead, err := gcm(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(sealed, passphrase, salt []byte) ([]byte, error) {
	aead, err := gcm(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("malformed encrypted key")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("cannot decrypt private key: bad passphrase or corrupt file")
	}
	return plaintext, nil
}
