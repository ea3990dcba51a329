// Package fleet holds the process-wide set of signing identities: one primary
// signer plus any number of auxiliary signers.
package fleet

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer is an address plus the key that authorizes its transactions.
type Signer struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{Address: gethcrypto.PubkeyToAddress(key.PublicKey), key: key}
}

// SignerFromHex parses a hex ECDSA private key (with / without 0x).
func SignerFromHex(s string) (*Signer, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(h) == 0 {
		return nil, errors.New("empty private key")
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		return nil, err
	}
	return NewSigner(prv), nil
}

// SignTx signs with the latest signer for the given chain ID.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func (s *Signer) privateKeyHex() string {
	return "0x" + common.Bytes2Hex(gethcrypto.FromECDSA(s.key))
}

func (s *Signer) String() string { return s.Address.Hex() }

// Fleet is read-mostly; only the generation path appends to it.
type Fleet struct {
	mu      sync.RWMutex
	primary *Signer
	aux     []*Signer
}

func New(primary *Signer, aux []*Signer) *Fleet {
	return &Fleet{primary: primary, aux: append([]*Signer(nil), aux...)}
}

func (f *Fleet) Primary() *Signer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.primary
}

// Auxiliary returns a snapshot of the auxiliary signers in load order.
func (f *Fleet) Auxiliary() []*Signer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*Signer(nil), f.aux...)
}

// All returns the primary signer first, then the auxiliary signers.
func (f *Fleet) All() []*Signer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Signer, 0, len(f.aux)+1)
	if f.primary != nil {
		out = append(out, f.primary)
	}
	return append(out, f.aux...)
}

func (f *Fleet) AuxCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.aux)
}

// Append adds auxiliary signers, skipping addresses already present.
func (f *Fleet) Append(signers ...*Signer) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[common.Address]bool, len(f.aux)+1)
	if f.primary != nil {
		seen[f.primary.Address] = true
	}
	for _, s := range f.aux {
		seen[s.Address] = true
	}
	added := 0
	for _, s := range signers {
		if s == nil || seen[s.Address] {
			continue
		}
		seen[s.Address] = true
		f.aux = append(f.aux, s)
		added++
	}
	return added
}

// Select resolves a CLI selection: "main", "multi", "all".
func (f *Fleet) Select(which string) ([]*Signer, error) {
	switch strings.ToLower(strings.TrimSpace(which)) {
	case "main", "primary":
		if p := f.Primary(); p != nil {
			return []*Signer{p}, nil
		}
		return nil, errors.New("no primary signer loaded")
	case "multi", "aux", "":
		return f.Auxiliary(), nil
	case "all":
		return f.All(), nil
	}
	return nil, errors.New("unknown signer selection: " + which)
}
