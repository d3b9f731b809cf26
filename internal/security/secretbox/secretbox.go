// Package secretbox cifra secretos de configuración (DSNs) con AES-256-GCM.
// La clave maestra viene de SECRETBOX_MASTER_KEY (base64 de 32 bytes) y se
// carga una sola vez por proceso.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	envVar    = "SECRETBOX_MASTER_KEY"
	nonceSize = 12 // AES-GCM nonce recomendado (96 bits)
	keySize   = 32 // AES-256
	sep       = "|" // base64(nonce)|base64(ciphertext)
)

var (
	mu      sync.Mutex
	key     []byte
	keyOnce sync.Once
	loadErr error
)

func ensureLoaded() error {
	keyOnce.Do(func() {
		b64 := strings.TrimSpace(os.Getenv(envVar))
		if b64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una con: openssl rand -base64 32", envVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", envVar, err)
			return
		}
		if len(k) != keySize {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", envVar, keySize, len(k))
			return
		}
		mu.Lock()
		key = k
		mu.Unlock()
	})
	return loadErr
}

// Ready indica si la clave maestra está cargada.
func Ready() bool {
	mu.Lock()
	defer mu.Unlock()
	return len(key) == keySize
}

func gcm() (cipher.AEAD, error) {
	mu.Lock()
	k := make([]byte, len(key))
	copy(k, key)
	mu.Unlock()

	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt devuelve base64(nonce)|base64(ciphertext).
func Encrypt(plaintext string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
func Decrypt(ciphertext string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	parts := strings.Split(ciphertext, sep)
	if len(parts) != 2 {
		return "", errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSize, len(nonce))
	}
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// IsEncrypted detecta el formato nonce|ciphertext producido por Encrypt.
func IsEncrypted(s string) bool {
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return false
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	return err == nil && len(nonce) == nonceSize
}

// ResetForTests borra el estado interno. Sólo para tests.
func ResetForTests(k []byte) error {
	if k != nil && len(k) != keySize {
		return fmt.Errorf("clave de test inválida: se requieren %d bytes", keySize)
	}
	mu.Lock()
	key = k
	mu.Unlock()
	keyOnce = sync.Once{}
	loadErr = nil
	if k != nil {
		keyOnce.Do(func() {})
	}
	return nil
}
