package executor

import (
	"github.com/gagliardetto/solana-go"
)

// PrivateKeySigner signs with a solana-go private key held in memory.
// Key loading itself (from file, env var, or a remote signer) is out of
// scope (spec.md §1); this type only implements the Signer contract over
// whatever key the caller already loaded.
type PrivateKeySigner struct {
	key solana.PrivateKey
}

func NewPrivateKeySigner(key solana.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{key: key}
}

func (s *PrivateKeySigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *PrivateKeySigner) SignTransaction(raw []byte) ([]byte, error) {
	sig, err := s.key.Sign(raw)
	if err != nil {
		return nil, err
	}
	return append(sig[:], raw...), nil
}
