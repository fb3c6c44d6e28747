// Package cryptfilter is a file filter that keeps configuration files
// encrypted at rest with AES-256-GCM.
//
// On fetch it decrypts the stored file into a temporary plaintext file
// for the format plugin to parse; on persist it lets the format write a
// temporary plaintext file and then seals it into place. All plaintext
// temp files are tracked in the filter state and securely erased on both
// success and failure.
package cryptfilter

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dshills/contour/internal/plugin"
)

// header identifies an encrypted contour file and its format version.
var header = []byte("contour-crypt\x01")

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// Errors returned by the crypt filter.
var (
	// ErrBadKeySize indicates a key of the wrong length.
	ErrBadKeySize = errors.New("crypt: key must be 32 bytes")

	// ErrNotEncrypted indicates a stored file without the crypt header.
	ErrNotEncrypted = errors.New("crypt: file is not encrypted")

	// ErrDecrypt indicates an authentication or decryption failure.
	ErrDecrypt = errors.New("crypt: decryption failed")
)

// State keys used by the filter.
const (
	stateFetchTemp   = "crypt/fetch-temp"
	statePersistTemp = "crypt/persist-temp"
)

// Filter implements plugin.FileFilter with AES-256-GCM.
type Filter struct {
	aead   cipher.AEAD
	tmpDir string
}

// Option configures a Filter.
type Option func(*Filter)

// WithTempDir sets the directory for plaintext temp files.
// Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(f *Filter) {
		f.tmpDir = dir
	}
}

// New creates a crypt filter from a raw 32-byte key.
func New(key []byte, opts ...Option) (*Filter, error) {
	if len(key) != KeySize {
		return nil, ErrBadKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	f := &Filter{aead: aead, tmpDir: os.TempDir()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// NewFromPassphrase creates a crypt filter with a key derived from a
// passphrase.
func NewFromPassphrase(passphrase string, opts ...Option) (*Filter, error) {
	key := sha256.Sum256([]byte(passphrase))
	return New(key[:], opts...)
}

// PreFetch decrypts path into a plaintext temp file and redirects the
// fetch there. A missing stored file passes through untouched so the
// backend can treat it as empty.
func (f *Filter) PreFetch(st *plugin.State, path string) (string, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", err
	}

	plain, err := f.open(sealed)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	temp := f.tempPath()
	if err := os.WriteFile(temp, plain, 0o600); err != nil {
		return "", err
	}
	st.TrackTemp(temp)
	st.Put(stateFetchTemp, temp)
	return temp, nil
}

// PostFetch erases the plaintext temp file as soon as parsing is done.
func (f *Filter) PostFetch(st *plugin.State) error {
	temp, ok := st.GetString(stateFetchTemp)
	if !ok {
		return nil
	}
	return st.ShredTemp(temp)
}

// PrePersist redirects the format's write to a plaintext temp file.
func (f *Filter) PrePersist(st *plugin.State, path string) (string, error) {
	temp := f.tempPath()
	st.TrackTemp(temp)
	st.Put(statePersistTemp, temp)
	return temp, nil
}

// PostPersist seals the plaintext temp file into path and erases it.
// The sealed file is written next to path and renamed into place.
func (f *Filter) PostPersist(st *plugin.State, path string) error {
	temp, ok := st.GetString(statePersistTemp)
	if !ok {
		return errors.New("crypt: persist temp missing from state")
	}

	plain, err := os.ReadFile(temp)
	if err != nil {
		return err
	}

	sealed, err := f.seal(plain)
	if err != nil {
		return err
	}

	staging := path + "." + uuid.NewString()
	if err := os.WriteFile(staging, sealed, 0o600); err != nil {
		return err
	}
	if err := os.Rename(staging, path); err != nil {
		os.Remove(staging)
		return err
	}
	return st.ShredTemp(temp)
}

// seal encrypts plaintext under a fresh random nonce.
func (f *Filter) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, f.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(header)+len(nonce)+len(plain)+f.aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	return f.aead.Seal(out, nonce, plain, header), nil
}

// open authenticates and decrypts a sealed payload.
func (f *Filter) open(sealed []byte) ([]byte, error) {
	if len(sealed) < len(header)+f.aead.NonceSize() {
		return nil, ErrNotEncrypted
	}
	if string(sealed[:len(header)]) != string(header) {
		return nil, ErrNotEncrypted
	}

	nonce := sealed[len(header) : len(header)+f.aead.NonceSize()]
	ciphertext := sealed[len(header)+f.aead.NonceSize():]

	plain, err := f.aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (f *Filter) tempPath() string {
	return filepath.Join(f.tmpDir, "contour-"+uuid.NewString())
}

var _ plugin.FileFilter = (*Filter)(nil)
