package fleet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type walletRecord struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

// LoadFile reads auxiliary signers from a JSON wallet store. A missing file
// yields no signers.
func LoadFile(path string) ([]*Signer, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var recs []walletRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]*Signer, 0, len(recs))
	for i, r := range recs {
		s, err := SignerFromHex(r.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%s: wallet %d: %w", path, i, err)
		}
		if r.Address != "" && common.IsHexAddress(r.Address) && common.HexToAddress(r.Address) != s.Address {
			return nil, fmt.Errorf("%s: wallet %d: address %s does not match key", path, i, r.Address)
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveFile writes signers atomically (temp file + rename).
func SaveFile(path string, signers []*Signer) error {
	recs := make([]walletRecord, 0, len(signers))
	for _, s := range signers {
		recs = append(recs, walletRecord{Address: s.Address.Hex(), PrivateKey: s.privateKeyHex()})
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wallets-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Generate creates n fresh signers.
func Generate(n int) ([]*Signer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be > 0, got %d", n)
	}
	out := make([]*Signer, 0, n)
	for i := 0; i < n; i++ {
		prv, err := gethcrypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		out = append(out, NewSigner(prv))
	}
	return out, nil
}
