package tradecore

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Build a legacy (gasPrice) transaction.
func buildLegacyTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) *types.Transaction {
	if value == nil {
		value = big.NewInt(0)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(value),
		Gas:      gasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
		Data:     data,
	})
}

// Hex-encode transaction.
func txAsHex(tx *types.Transaction) string {
	b, _ := tx.MarshalBinary()
	return "0x" + hex.EncodeToString(b)
}

// NonceTracker hands out sequential nonces per signer so several legs from
// one signer can be in flight without asking the node each time.
type NonceTracker struct {
	mu    sync.Mutex
	chain Chain
	next  map[common.Address]uint64
}

func NewNonceTracker(chain Chain) *NonceTracker {
	return &NonceTracker{chain: chain, next: make(map[common.Address]uint64)}
}

// Next returns the nonce to use and reserves it.
func (n *NonceTracker) Next(ctx context.Context, addr common.Address) (uint64, error) {
	if nonce, ok := n.reserve(addr); ok {
		return nonce, nil
	}
	pending, err := n.chain.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	// another leg for the same signer may have fetched it meanwhile
	if nonce, ok := n.next[addr]; ok {
		n.next[addr] = nonce + 1
		return nonce, nil
	}
	n.next[addr] = pending + 1
	return pending, nil
}

func (n *NonceTracker) reserve(addr common.Address) (uint64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	nonce, ok := n.next[addr]
	if ok {
		n.next[addr] = nonce + 1
	}
	return nonce, ok
}

// Reset drops the cached nonce; the next call asks the node again.
func (n *NonceTracker) Reset(addr common.Address) {
	n.mu.Lock()
	delete(n.next, addr)
	n.mu.Unlock()
}
