package tradecore

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/launch-bundler/internal/fleet"
)

// AllocateBuy builds one buy leg per signer. Funds is a total that is floor
// divided across signers, the remainder is dropped. TokenAmount is bought
// in full by every signer.
func AllocateBuy(signers []*fleet.Signer, token common.Address, info TokenManagerInfo, spec AmountSpec, policy Policy) ([]Leg, error) {
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: no signers selected", ErrNoLegs)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	n := big.NewInt(int64(len(signers)))
	legs := make([]Leg, 0, len(signers))
	switch spec.Kind {
	case AmountFunds:
		per := new(big.Int).Div(spec.Value, n)
		if per.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s wei cannot be split across %d signers", ErrValidation, spec.Value, len(signers))
		}
		for _, s := range signers {
			legs = append(legs, Leg{Action: ActionBuy, Signer: s, Token: token, Info: info, Policy: policy, Funds: new(big.Int).Set(per)})
		}
	case AmountTokens:
		for _, s := range signers {
			legs = append(legs, Leg{Action: ActionBuy, Signer: s, Token: token, Info: info, Policy: policy, Amount: new(big.Int).Set(spec.Value)})
		}
	default:
		return nil, fmt.Errorf("%w: buy takes a spend or a token amount", ErrValidation)
	}
	return legs, nil
}

// SellPlan is the per-signer split of a sell order computed from one balance
// read. Balances can move before submission; the submitter clamps again.
type SellPlan struct {
	Total     *big.Int
	Requested *big.Int   // nil when SellAll
	Shares    []*big.Int // clamped per signer; nil when SellAll
	SellAll   bool
}

// PlanSell validates a sell request against the read balances and splits it.
func PlanSell(balances []*big.Int, spec AmountSpec) (SellPlan, error) {
	if len(balances) == 0 {
		return SellPlan{}, fmt.Errorf("%w: no signers selected", ErrNoLegs)
	}
	if err := spec.validate(); err != nil {
		return SellPlan{}, err
	}
	total := new(big.Int)
	for _, b := range balances {
		if b != nil {
			total.Add(total, b)
		}
	}
	plan := SellPlan{Total: total}
	if total.Sign() == 0 {
		return plan, fmt.Errorf("%w: selected signers hold no tokens", ErrInsufficientBalance)
	}
	if spec.isFull() {
		plan.SellAll = true
		return plan, nil
	}

	n := big.NewInt(int64(len(balances)))
	var share *big.Int
	switch spec.Kind {
	case AmountPercent:
		plan.Requested = decimal.NewFromBigInt(total, 0).Mul(spec.Percent).Shift(-2).Truncate(0).BigInt()
		share = new(big.Int).Div(plan.Requested, n)
	case AmountCustom:
		plan.Requested = new(big.Int).Set(spec.Value)
		share = new(big.Int).Div(plan.Requested, n)
	case AmountTokens:
		plan.Requested = new(big.Int).Mul(spec.Value, n)
		share = new(big.Int).Set(spec.Value)
	default:
		return plan, fmt.Errorf("%w: sell takes a percentage or a token amount", ErrValidation)
	}
	if plan.Requested.Cmp(total) > 0 {
		return plan, fmt.Errorf("%w: requested %s, held %s", ErrInsufficientBalance, plan.Requested, total)
	}
	if share.Sign() == 0 {
		return plan, fmt.Errorf("%w: %s base units cannot be split across %d signers", ErrValidation, plan.Requested, len(balances))
	}
	plan.Shares = make([]*big.Int, len(balances))
	for i, b := range balances {
		s := new(big.Int).Set(share)
		if b == nil || b.Sign() <= 0 {
			s.SetInt64(0)
		} else if s.Cmp(b) > 0 {
			s.Set(b)
		}
		plan.Shares[i] = s
	}
	return plan, nil
}

// SellLegs turns a plan into legs. Signers whose share clamps to zero get a
// skipped leg.
func SellLegs(signers []*fleet.Signer, plan SellPlan, token common.Address, info TokenManagerInfo, policy Policy) []Leg {
	legs := make([]Leg, 0, len(signers))
	for i, s := range signers {
		leg := Leg{Action: ActionSell, Signer: s, Token: token, Info: info, Policy: policy}
		switch {
		case plan.SellAll:
			leg.SellAll = true
		case i < len(plan.Shares) && plan.Shares[i].Sign() > 0:
			leg.Amount = new(big.Int).Set(plan.Shares[i])
		default:
			leg.Skip = "zero balance"
		}
		legs = append(legs, leg)
	}
	return legs
}
