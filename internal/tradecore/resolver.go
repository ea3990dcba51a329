package tradecore

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// NativeQuote is the settlement-asset sentinel for the chain's native coin.
var NativeQuote = common.Address{}

// Resolver maps a token to the manager contract that governs it.
type Resolver struct {
	reader *Reader
	helper common.Address
}

func NewResolver(reader *Reader, helper common.Address) *Resolver {
	return &Resolver{reader: reader, helper: helper}
}

// Resolve makes a single getTokenInfo read. It does not retry.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) (TokenManagerInfo, error) {
	data, err := helperABI.Pack("getTokenInfo", token)
	if err != nil {
		return TokenManagerInfo{}, err
	}
	ret, err := r.reader.callOnce(ctx, ethereum.CallMsg{To: &r.helper, Data: data})
	if err != nil {
		return TokenManagerInfo{}, fmt.Errorf("%w: getTokenInfo(%s): %s", ErrLookupFailed, token.Hex(), revertReason(err))
	}
	out, err := helperABI.Unpack("getTokenInfo", ret)
	if err != nil || len(out) < 3 {
		return TokenManagerInfo{}, fmt.Errorf("%w: getTokenInfo(%s): undecodable result", ErrLookupFailed, token.Hex())
	}
	ver, _ := out[0].(*big.Int)
	manager, _ := out[1].(common.Address)
	quote, _ := out[2].(common.Address)

	if manager == (common.Address{}) {
		return TokenManagerInfo{}, fmt.Errorf("%w: token %s unknown to helper", ErrLookupFailed, token.Hex())
	}
	var v Version
	switch {
	case ver != nil && ver.IsInt64() && ver.Int64() == 1:
		v = V1
	case ver != nil && ver.IsInt64() && ver.Int64() == 2:
		v = V2
	default:
		return TokenManagerInfo{}, fmt.Errorf("%w: unknown token manager version %v", ErrLookupFailed, ver)
	}
	info := TokenManagerInfo{Version: v, Manager: manager, Quote: quote}
	if quote != NativeQuote {
		return info, fmt.Errorf("%w: %s settles in %s, only the native coin is supported", ErrUnsupportedToken, token.Hex(), quote.Hex())
	}
	return info, nil
}
