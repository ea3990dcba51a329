package main

import (
	"context"
	"encoding/csv"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/launch-bundler/internal/fleet"
	core "github.com/ligun0805/launch-bundler/internal/tradecore"
)

type balanceRow struct {
	Address  common.Address
	Native   *big.Int
	Token    *big.Int // nil when no token was requested
	Decimals uint8
	Symbol   string
}

type balanceReader interface {
	NativeBalances(ctx context.Context, owners []common.Address) ([]*big.Int, error)
	TokenBalances(ctx context.Context, token common.Address, owners []common.Address) ([]*big.Int, error)
	Decimals(ctx context.Context, token common.Address) uint8
	Symbol(ctx context.Context, token common.Address) (string, error)
}

func collect(ctx context.Context, r balanceReader, signers []*fleet.Signer, token *common.Address) ([]balanceRow, error) {
	owners := make([]common.Address, len(signers))
	for i, s := range signers {
		owners[i] = s.Address
	}
	native, err := r.NativeBalances(ctx, owners)
	if err != nil {
		return nil, err
	}
	rows := make([]balanceRow, len(owners))
	for i, o := range owners {
		rows[i] = balanceRow{Address: o, Native: native[i]}
	}
	if token == nil {
		return rows, nil
	}
	toks, err := r.TokenBalances(ctx, *token, owners)
	if err != nil {
		return nil, err
	}
	dec := r.Decimals(ctx, *token)
	sym, _ := r.Symbol(ctx, *token)
	for i := range rows {
		rows[i].Token, rows[i].Decimals, rows[i].Symbol = toks[i], dec, sym
	}
	return rows, nil
}

// writeReport emits one CSV row per wallet plus a trailing total row.
func writeReport(w io.Writer, rows []balanceRow) error {
	cw := csv.NewWriter(w)
	withToken := len(rows) > 0 && rows[0].Token != nil
	header := []string{"address", "native"}
	if withToken {
		header = append(header, "token", "symbol")
	}
	_ = cw.Write(header)

	totalNative, totalToken := new(big.Int), new(big.Int)
	for _, r := range rows {
		rec := []string{r.Address.Hex(), core.FormatEther(r.Native)}
		totalNative.Add(totalNative, r.Native)
		if withToken {
			rec = append(rec, core.FormatUnits(r.Token, r.Decimals), r.Symbol)
			totalToken.Add(totalToken, r.Token)
		}
		_ = cw.Write(rec)
	}
	total := []string{"total", core.FormatEther(totalNative)}
	if withToken {
		total = append(total, core.FormatUnits(totalToken, rows[0].Decimals), rows[0].Symbol)
	}
	_ = cw.Write(total)
	cw.Flush()
	return cw.Error()
}
