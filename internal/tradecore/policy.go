package tradecore

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

type Mode int

const (
	// ModeInteractive uses caller-supplied gas price and slippage.
	ModeInteractive Mode = iota + 1
	// ModeAutomated uses the fixed low gas price for batch work.
	ModeAutomated
)

func (m Mode) String() string {
	switch m {
	case ModeInteractive:
		return "interactive"
	case ModeAutomated:
		return "automated"
	}
	return "unknown"
}

const (
	DefaultGasLimit   uint64 = 400_000
	TransferGasLimit  uint64 = 21_000
	MaxSlippagePct           = 50
)

// Policy is the gas and slippage used for one submission.
type Policy struct {
	GasPrice    *big.Int
	GasLimit    uint64
	SlippagePct decimal.Decimal
	Mode        Mode
}

func (p Policy) validate() error {
	if p.GasPrice == nil || p.GasPrice.Sign() <= 0 {
		return fmt.Errorf("%w: gas price must be > 0", ErrValidation)
	}
	if p.SlippagePct.IsNegative() || p.SlippagePct.GreaterThan(decimal.NewFromInt(MaxSlippagePct)) {
		return fmt.Errorf("%w: slippage %s%% outside [0,%d]", ErrValidation, p.SlippagePct, MaxSlippagePct)
	}
	return nil
}

// PolicyTable holds the gas constants policies are selected from.
type PolicyTable struct {
	AutomatedGasPrice  *big.Int
	AggressiveGasPrice *big.Int
	MinGasPrice        *big.Int
	MaxGasPrice        *big.Int
	GasLimit           uint64
	DefaultSlippage    decimal.Decimal
	SniperSlippage     decimal.Decimal
}

// DefaultPolicyTable: 0.11 gwei automated, 1.5 gwei aggressive, [0.05,100] gwei bounds.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		AutomatedGasPrice:  big.NewInt(110_000_000),
		AggressiveGasPrice: big.NewInt(1_500_000_000),
		MinGasPrice:        big.NewInt(50_000_000),
		MaxGasPrice:        big.NewInt(100_000_000_000),
		GasLimit:           DefaultGasLimit,
		DefaultSlippage:    decimal.NewFromInt(1),
		SniperSlippage:     decimal.NewFromInt(1),
	}
}

// Select computes the policy for a submission. In automated mode caller
// values are ignored. In interactive mode they are validated and missing
// ones fall back to the aggressive gas price and default slippage.
func (t PolicyTable) Select(mode Mode, gwei, slippage *decimal.Decimal) (Policy, error) {
	limit := t.GasLimit
	if limit == 0 {
		limit = DefaultGasLimit
	}
	switch mode {
	case ModeAutomated:
		return Policy{GasPrice: new(big.Int).Set(t.AutomatedGasPrice), GasLimit: limit, SlippagePct: t.DefaultSlippage, Mode: mode}, nil
	case ModeInteractive:
	default:
		return Policy{}, fmt.Errorf("%w: unknown mode %d", ErrValidation, int(mode))
	}

	price := new(big.Int).Set(t.AggressiveGasPrice)
	if gwei != nil {
		price = GweiToWei(*gwei)
		if price.Cmp(t.MinGasPrice) < 0 || price.Cmp(t.MaxGasPrice) > 0 {
			return Policy{}, fmt.Errorf("%w: gas price %s gwei outside [%s,%s]", ErrValidation,
				gwei.String(), FormatGwei(t.MinGasPrice), FormatGwei(t.MaxGasPrice))
		}
	}
	slip := t.DefaultSlippage
	if slippage != nil {
		slip = *slippage
	}
	p := Policy{GasPrice: price, GasLimit: limit, SlippagePct: slip, Mode: mode}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Aggressive is the immediate, low-slippage policy used by the sniper.
func (t PolicyTable) Aggressive() Policy {
	limit := t.GasLimit
	if limit == 0 {
		limit = DefaultGasLimit
	}
	return Policy{GasPrice: new(big.Int).Set(t.AggressiveGasPrice), GasLimit: limit, SlippagePct: t.SniperSlippage, Mode: ModeInteractive}
}

// maxFundsFor inflates the buy-by-amount spend ceiling by slippage.
func maxFundsFor(ceiling *big.Int, slippage decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(ceiling, 0).Mul(hundred.Add(slippage)).Div(hundred).Truncate(0).BigInt()
}
