package signer

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/polkagate/poolkit/pkg/chain"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var (
	ErrAuth     = errors.New("signer: wrong password")
	ErrNotFound = errors.New("signer: unknown account")
	ErrExists   = errors.New("signer: account already exists")
)

const (
	defaultScryptN = 1 << 15
	scryptR        = 8
	scryptP        = 1
	saltSize       = 16
)

type keyFile struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Salt    []byte `json:"salt"`
	N       int    `json:"n"`
	R       int    `json:"r"`
	P       int    `json:"p"`
	Nonce   []byte `json:"nonce"`
	Sealed  []byte `json:"sealed"`
}

// Keyring keeps one encrypted key file per address in a directory. Seeds are
// sealed with secretbox under a scrypt-derived key.
type Keyring struct {
	mu      sync.Mutex
	dir     string
	scryptN int
}

func NewKeyring(dir string) (*Keyring, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("signer: keyring dir: %w", err)
	}
	return &Keyring{dir: dir, scryptN: defaultScryptN}, nil
}

// WithScryptN overrides the scrypt cost for new keys. Tests use a low cost.
func (k *Keyring) WithScryptN(n int) *Keyring {
	k.scryptN = n
	return k
}

func (k *Keyring) path(address string) string {
	return filepath.Join(k.dir, hex.EncodeToString([]byte(address))+".json")
}

func deriveKey(password string, salt []byte, n, r, p int) (*[32]byte, error) {
	raw, err := scrypt.Key([]byte(password), salt, n, r, p, 32)
	if err != nil {
		return nil, fmt.Errorf("signer: derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Add seals seed under password and writes the key file.
func (k *Keyring) Add(address, name string, seed []byte, password string) error {
	if _, err := NewEd25519Signer(address, seed); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.path(address)
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, address)
	}

	kf := keyFile{Address: address, Name: name, N: k.scryptN, R: scryptR, P: scryptP}
	kf.Salt = make([]byte, saltSize)
	if _, err := rand.Read(kf.Salt); err != nil {
		return err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	key, err := deriveKey(password, kf.Salt, kf.N, kf.R, kf.P)
	if err != nil {
		return err
	}
	kf.Nonce = nonce[:]
	kf.Sealed = secretbox.Seal(nil, seed, &nonce, key)

	raw, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, raw, 0o600); err != nil {
		return fmt.Errorf("signer: write key file: %w", err)
	}
	return nil
}

func (k *Keyring) load(address string) (*keyFile, error) {
	raw, err := os.ReadFile(k.path(address))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("signer: read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("signer: decode key file: %w", err)
	}
	return &kf, nil
}

// Unlock opens the key for address. A wrong password returns ErrAuth.
func (k *Keyring) Unlock(address, password string) (chain.Signer, error) {
	kf, err := k.load(address)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(password, kf.Salt, kf.N, kf.R, kf.P)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if len(kf.Nonce) != len(nonce) {
		return nil, fmt.Errorf("signer: corrupt key file for %s", address)
	}
	copy(nonce[:], kf.Nonce)
	seed, ok := secretbox.Open(nil, kf.Sealed, &nonce, key)
	if !ok {
		return nil, ErrAuth
	}
	return NewEd25519Signer(address, seed)
}

// Name returns the display name stored with address.
func (k *Keyring) Name(address string) (string, error) {
	kf, err := k.load(address)
	if err != nil {
		return "", err
	}
	return kf.Name, nil
}

// Accounts lists every stored account, sorted by address.
func (k *Keyring) Accounts() ([]chain.Account, error) {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil, err
	}
	var out []chain.Account
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		addr, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		kf, err := k.load(string(addr))
		if err != nil {
			return nil, err
		}
		out = append(out, chain.Account{Address: kf.Address, Name: kf.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
