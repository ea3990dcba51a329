package tradecore

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/launch-bundler/internal/fleet"
)

type Action int

const (
	ActionBuy Action = iota + 1
	ActionSell
	ActionCreate
	ActionTransfer
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	case ActionCreate:
		return "create"
	case ActionTransfer:
		return "transfer"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Version of the token manager contract that governs a token.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
)

func (v Version) String() string { return fmt.Sprintf("V%d", uint8(v)) }

// TokenManagerInfo is resolved per call and never cached.
type TokenManagerInfo struct {
	Version Version
	Manager common.Address
	Quote   common.Address
}

type AmountKind int

const (
	AmountFunds AmountKind = iota + 1
	AmountTokens
	AmountPercent
	AmountCustom
)

// AmountSpec is a user-level amount. Build with Funds, TokenAmount, Percentage
// or Custom.
type AmountSpec struct {
	Kind    AmountKind
	Value   *big.Int        // wei for Funds, base units otherwise
	Percent decimal.Decimal // AmountPercent only
}

// Funds is a total native spend, split evenly across signers.
func Funds(wei *big.Int) AmountSpec { return AmountSpec{Kind: AmountFunds, Value: wei} }

// TokenAmount is a per-signer base-unit amount.
func TokenAmount(units *big.Int) AmountSpec { return AmountSpec{Kind: AmountTokens, Value: units} }

// Percentage of the signers' combined live balance.
func Percentage(pct decimal.Decimal) AmountSpec { return AmountSpec{Kind: AmountPercent, Percent: pct} }

// Custom is a total base-unit amount, split evenly across signers.
func Custom(units *big.Int) AmountSpec { return AmountSpec{Kind: AmountCustom, Value: units} }

var hundred = decimal.NewFromInt(100)

func (a AmountSpec) isFull() bool {
	return a.Kind == AmountPercent && a.Percent.Equal(hundred)
}

func (a AmountSpec) validate() error {
	switch a.Kind {
	case AmountFunds, AmountTokens, AmountCustom:
		if a.Value == nil || a.Value.Sign() <= 0 {
			return fmt.Errorf("%w: amount must be > 0", ErrValidation)
		}
	case AmountPercent:
		if !a.Percent.IsPositive() || a.Percent.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage must be in (0,100], got %s", ErrValidation, a.Percent)
		}
	default:
		return fmt.Errorf("%w: amount not set", ErrValidation)
	}
	return nil
}

// Order is one user action over a set of signers.
type Order struct {
	Action  Action
	Token   common.Address
	Signers []*fleet.Signer
	Amount  AmountSpec
	Policy  Policy
}

// Payload is the signed creation parameters issued by the off-chain metadata
// service. It is passed to createToken verbatim.
type Payload struct {
	CreateArg []byte
	Signature []byte
}

// Leg is one signer's part of a dispatch.
type Leg struct {
	Action Action
	Signer *fleet.Signer
	Token  common.Address
	Info   TokenManagerInfo
	Policy Policy

	Funds   *big.Int // buy by spend
	Amount  *big.Int // buy target / sell amount
	SellAll bool     // sell live balance read at submission
	Skip    string   // non-empty: skipped before submission, with reason

	To      common.Address // transfer recipient / create manager
	Value   *big.Int       // transfer value / create fee
	Sweep   bool           // transfer balance minus gas
	Payload *Payload
}

// Outcome of one leg. Outcomes[i] of a Summary belongs to legs[i].
type Outcome struct {
	Signer  common.Address
	Action  Action
	TxHash  common.Hash
	Receipt *types.Receipt
	Skipped bool
	Err     error
}

func (o Outcome) OK() bool { return o.Err == nil && !o.Skipped }

type Summary struct {
	ID        string
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Skipped   int
}

// Err reports nil when no leg failed, ErrPartialBatch when some failed and
// some succeeded, and ErrSubmission when every attempted leg failed.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	if s.Succeeded > 0 {
		return fmt.Errorf("%w: %d of %d legs failed", ErrPartialBatch, s.Failed, len(s.Outcomes))
	}
	return fmt.Errorf("%w: all %d attempted legs failed", ErrSubmission, s.Failed)
}

func (s Summary) String() string {
	return fmt.Sprintf("ok=%d failed=%d skipped=%d", s.Succeeded, s.Failed, s.Skipped)
}
