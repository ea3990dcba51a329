package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	core "github.com/ligun0805/launch-bundler/internal/tradecore"
)

// netcheckCmd prints the node's suggested gas price next to the configured
// policies and what one leg per wallet would cost at each.
func netcheckCmd(fs *flag.FlagSet) runFunc {
	wallets := fs.String("wallets", "multi", "wallet selection used for the cost estimate")
	return func(ctx context.Context, a *app) error {
		signers, err := a.fleet.Select(*wallets)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrValidation, err)
		}
		h, err := a.ec.HeaderByNumber(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: head: %v", core.ErrLookupFailed, err)
		}
		fmt.Printf("[net] head: %s\n", h.Number)
		if suggested, err := a.ec.SuggestGasPrice(ctx); err == nil {
			fmt.Printf("[net] suggested gas price: %s gwei\n", core.FormatGwei(suggested))
		} else {
			fmt.Println("[net] gasPrice error:", err)
		}

		n := big.NewInt(int64(len(signers)))
		limit := new(big.Int).SetUint64(a.policies.GasLimit)
		for _, p := range []struct {
			name  string
			price *big.Int
		}{
			{"automated", a.policies.AutomatedGasPrice},
			{"aggressive", a.policies.AggressiveGasPrice},
			{"max", a.policies.MaxGasPrice},
		} {
			cost := new(big.Int).Mul(new(big.Int).Mul(p.price, limit), n)
			fmt.Printf("[net] %-10s %s gwei: worst case %s native for %d legs\n", p.name, core.FormatGwei(p.price), core.FormatEther(cost), len(signers))
		}

		owners := make([]common.Address, len(signers))
		for i, s := range signers {
			owners[i] = s.Address
		}
		bals, err := a.engine.NativeBalances(ctx, owners)
		if err != nil {
			return err
		}
		low := 0
		floor := new(big.Int).Mul(a.policies.AggressiveGasPrice, limit)
		for i, b := range bals {
			if b.Cmp(floor) < 0 {
				low++
				fmt.Printf("  [LOW] %s holds %s native\n", owners[i].Hex(), core.FormatEther(b))
			}
		}
		fmt.Printf("[net] %d of %d wallets cannot pay one aggressive leg\n", low, len(signers))
		return nil
	}
}
