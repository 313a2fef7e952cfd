// Package signer holds account keys at rest and hands out unlocked signers.
package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Ed25519Signer signs payloads for one address.
type Ed25519Signer struct {
	address string
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

// NewEd25519Signer derives the key pair from a 32-byte seed.
func NewEd25519Signer(address string, seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{
		address: address,
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

func (s *Ed25519Signer) Address() string {
	return s.address
}

func (s *Ed25519Signer) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.privKey, payload), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// Verify checks sig over payload against a hex public key.
func Verify(pubKeyHex string, payload, sig []byte) (bool, error) {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("signer: invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("signer: invalid public key size")
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig), nil
}
