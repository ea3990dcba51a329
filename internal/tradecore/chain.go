package tradecore

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ligun0805/launch-bundler/internal/metrics"
)

// Chain is the subset of *ethclient.Client the engine needs.
type Chain interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var funcBalanceOf = w3.MustNewFunc("balanceOf(address)", "uint256")

// Reader performs uncached read calls. Reads pass through an optional rate
// limiter and retry with small backoff.
type Reader struct {
	chain   Chain
	batch   *w3.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	attempts int
	backoff  time.Duration
}

type ReaderOption func(*Reader)

// WithBatchClient routes fleet-wide balance reads through one JSON-RPC batch.
func WithBatchClient(c *w3.Client) ReaderOption { return func(r *Reader) { r.batch = c } }

// WithRateLimit caps read calls per second; <= 0 leaves reads unlimited.
func WithRateLimit(perSecond float64) ReaderOption {
	return func(r *Reader) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithReadMetrics(m *metrics.Metrics) ReaderOption { return func(r *Reader) { r.metrics = m } }

func WithRetry(attempts int, backoff time.Duration) ReaderOption {
	return func(r *Reader) { r.attempts, r.backoff = attempts, backoff }
}

func NewReader(chain Chain, log logrus.FieldLogger, opts ...ReaderOption) *Reader {
	r := &Reader{chain: chain, log: log, limiter: rate.NewLimiter(rate.Inf, 1), attempts: 3, backoff: 200 * time.Millisecond}
	for _, o := range opts {
		o(r)
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	return r
}

func (r *Reader) wait(ctx context.Context) error {
	r.metrics.RPCRead()
	return r.limiter.Wait(ctx)
}

func (r *Reader) callOnce(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.chain.CallContract(ctx, msg, nil)
}

// callWithRetry performs eth_call with small exponential backoff.
func (r *Reader) callWithRetry(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	backoff := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		ret, err := r.callOnce(ctx, msg)
		if err == nil {
			return ret, nil
		}
		lastErr = err
		if attempt < r.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

func (r *Reader) callERC20(ctx context.Context, token common.Address, method string, args ...any) ([]any, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := r.callWithRetry(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, err
	}
	return erc20ABI.Unpack(method, ret)
}

func (r *Reader) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := r.callERC20(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("%w: balanceOf %s: %v", ErrLookupFailed, owner.Hex(), err)
	}
	return abiBigInt(out), nil
}

func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := r.callERC20(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("%w: allowance %s: %v", ErrLookupFailed, owner.Hex(), err)
	}
	return abiBigInt(out), nil
}

// Decimals falls back to 18 with a warning when the read fails.
func (r *Reader) Decimals(ctx context.Context, token common.Address) uint8 {
	out, err := r.callERC20(ctx, token, "decimals")
	if err == nil && len(out) == 1 {
		if d, ok := out[0].(uint8); ok {
			return d
		}
	}
	r.log.WithField("token", token.Hex()).WithError(err).Warnf("decimals() unavailable, assuming %d", DefaultDecimals)
	return DefaultDecimals
}

func (r *Reader) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := r.callERC20(ctx, token, "symbol")
	if err != nil {
		return "", fmt.Errorf("%w: symbol: %v", ErrLookupFailed, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("%w: symbol: empty result", ErrLookupFailed)
	}
	s, _ := out[0].(string)
	return s, nil
}

func (r *Reader) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	bal, err := r.chain.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balance %s: %v", ErrLookupFailed, owner.Hex(), err)
	}
	return bal, nil
}

// TokenBalances reads balanceOf for every owner, in order. With a batch
// client the reads share one round trip; on batch failure it falls back to
// one call per owner.
func (r *Reader) TokenBalances(ctx context.Context, token common.Address, owners []common.Address) ([]*big.Int, error) {
	if r.batch != nil && len(owners) > 1 {
		out, err := r.batchBalances(ctx, token, owners)
		if err == nil {
			return out, nil
		}
		r.log.WithError(err).Warn("batched balanceOf failed, falling back to single calls")
	}
	out := make([]*big.Int, len(owners))
	for i, o := range owners {
		bal, err := r.TokenBalance(ctx, token, o)
		if err != nil {
			return nil, err
		}
		out[i] = bal
	}
	return out, nil
}

func (r *Reader) batchBalances(ctx context.Context, token common.Address, owners []common.Address) ([]*big.Int, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	vals := make([]big.Int, len(owners))
	calls := make([]w3types.RPCCaller, len(owners))
	for i, o := range owners {
		calls[i] = eth.CallFunc(token, funcBalanceOf, o).Returns(&vals[i])
	}
	if err := r.batch.CallCtx(ctx, calls...); err != nil {
		return nil, err
	}
	return pointers(vals), nil
}

func pointers(vals []big.Int) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i := range vals {
		out[i] = &vals[i]
	}
	return out
}

// NativeBalances reads native balances for every owner, in order.
func (r *Reader) NativeBalances(ctx context.Context, owners []common.Address) ([]*big.Int, error) {
	if r.batch != nil && len(owners) > 1 {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		vals := make([]*big.Int, len(owners))
		calls := make([]w3types.RPCCaller, len(owners))
		for i, o := range owners {
			calls[i] = eth.Balance(o, nil).Returns(&vals[i])
		}
		err := r.batch.CallCtx(ctx, calls...)
		if err == nil {
			return vals, nil
		}
		r.log.WithError(err).Warn("batched eth_getBalance failed, falling back to single calls")
	}
	out := make([]*big.Int, len(owners))
	for i, o := range owners {
		bal, err := r.NativeBalance(ctx, o)
		if err != nil {
			return nil, err
		}
		out[i] = bal
	}
	return out, nil
}

func abiBigInt(out []any) *big.Int {
	if len(out) == 1 {
		if v, ok := out[0].(*big.Int); ok && v != nil {
			return v
		}
	}
	return big.NewInt(0)
}
