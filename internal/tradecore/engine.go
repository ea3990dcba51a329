package tradecore

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/launch-bundler/internal/fleet"
)

// Engine ties resolution, allocation and dispatch together for every user
// level action.
type Engine struct {
	fleet      *fleet.Fleet
	reader     *Reader
	resolver   *Resolver
	dispatcher *Dispatcher
	managerV2  common.Address
	log        logrus.FieldLogger
}

func NewEngine(f *fleet.Fleet, reader *Reader, resolver *Resolver, dispatcher *Dispatcher, managerV2 common.Address, log logrus.FieldLogger) *Engine {
	return &Engine{fleet: f, reader: reader, resolver: resolver, dispatcher: dispatcher, managerV2: managerV2, log: log}
}

func (e *Engine) Fleet() *fleet.Fleet { return e.fleet }

// Execute runs a buy or sell order. Pre-flight failures (validation,
// unsupported token, insufficient aggregate balance) return before any leg.
func (e *Engine) Execute(ctx context.Context, o Order) (Summary, error) {
	if err := o.Policy.validate(); err != nil {
		return Summary{}, err
	}
	if len(o.Signers) == 0 {
		return Summary{}, fmt.Errorf("%w: no signers selected", ErrNoLegs)
	}
	if o.Action != ActionBuy && o.Action != ActionSell {
		return Summary{}, fmt.Errorf("%w: Execute handles buy and sell, got %v", ErrValidation, o.Action)
	}
	if err := o.Amount.validate(); err != nil {
		return Summary{}, err
	}
	log := e.log.WithFields(logrus.Fields{"token": o.Token.Hex(), "action": o.Action.String()})
	info, err := e.resolver.Resolve(ctx, o.Token)
	if err != nil {
		return Summary{}, err
	}
	log.Infof("token manager %s at %s", info.Version, info.Manager.Hex())

	var legs []Leg
	switch o.Action {
	case ActionBuy:
		legs, err = AllocateBuy(o.Signers, o.Token, info, o.Amount, o.Policy)
	case ActionSell:
		legs, err = e.sellLegs(ctx, log, o, info)
	}
	if err != nil {
		return Summary{}, err
	}
	return e.dispatcher.Dispatch(ctx, legs)
}

func (e *Engine) sellLegs(ctx context.Context, log logrus.FieldLogger, o Order, info TokenManagerInfo) ([]Leg, error) {
	owners := make([]common.Address, len(o.Signers))
	for i, s := range o.Signers {
		owners[i] = s.Address
	}
	balances, err := e.reader.TokenBalances(ctx, o.Token, owners)
	if err != nil {
		return nil, err
	}
	plan, err := PlanSell(balances, o.Amount)
	if err != nil {
		return nil, err
	}
	decimals := e.reader.Decimals(ctx, o.Token)
	if plan.SellAll {
		log.Infof("selling entire balance, %s held across %d signers", FormatUnits(plan.Total, decimals), len(owners))
	} else {
		log.Infof("selling %s of %s held across %d signers", FormatUnits(plan.Requested, decimals), FormatUnits(plan.Total, decimals), len(owners))
	}
	return SellLegs(o.Signers, plan, o.Token, info, o.Policy), nil
}

// BuyEach has every signer spend fundsEach on token.
func (e *Engine) BuyEach(ctx context.Context, token common.Address, signers []*fleet.Signer, fundsEach *big.Int, policy Policy) (Summary, error) {
	if len(signers) == 0 {
		return Summary{}, fmt.Errorf("%w: no signers selected", ErrNoLegs)
	}
	if fundsEach == nil || fundsEach.Sign() <= 0 {
		return Summary{}, fmt.Errorf("%w: funds per signer must be > 0", ErrValidation)
	}
	if err := policy.validate(); err != nil {
		return Summary{}, err
	}
	info, err := e.resolver.Resolve(ctx, token)
	if err != nil {
		return Summary{}, err
	}
	legs := make([]Leg, 0, len(signers))
	for _, s := range signers {
		legs = append(legs, Leg{Action: ActionBuy, Signer: s, Token: token, Info: info, Policy: policy, Funds: new(big.Int).Set(fundsEach)})
	}
	return e.dispatcher.Dispatch(ctx, legs)
}

// Cycle dispatches one sell from seller and one buy from buyer together.
func (e *Engine) Cycle(ctx context.Context, token common.Address, seller, buyer *fleet.Signer, sellAmount, buyFunds *big.Int, policy Policy) (Summary, error) {
	if err := policy.validate(); err != nil {
		return Summary{}, err
	}
	info, err := e.resolver.Resolve(ctx, token)
	if err != nil {
		return Summary{}, err
	}
	legs := []Leg{
		{Action: ActionSell, Signer: seller, Token: token, Info: info, Policy: policy, Amount: new(big.Int).Set(sellAmount)},
		{Action: ActionBuy, Signer: buyer, Token: token, Info: info, Policy: policy, Funds: new(big.Int).Set(buyFunds)},
	}
	return e.dispatcher.Dispatch(ctx, legs)
}

func (e *Engine) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return e.reader.TokenBalance(ctx, token, owner)
}

func (e *Engine) NativeBalances(ctx context.Context, owners []common.Address) ([]*big.Int, error) {
	return e.reader.NativeBalances(ctx, owners)
}

// TokenUnits converts a human amount using the token's on-chain decimals.
func (e *Engine) TokenUnits(ctx context.Context, token common.Address, human string) (*big.Int, uint8, error) {
	d := e.reader.Decimals(ctx, token)
	v, err := ParseUnits(human, d)
	return v, d, err
}

// Create sends createToken from signer and returns the new token.
func (e *Engine) Create(ctx context.Context, signer *fleet.Signer, payload Payload, value *big.Int, policy Policy) (TokenCreated, *types.Receipt, error) {
	if signer == nil {
		return TokenCreated{}, nil, fmt.Errorf("%w: no creator signer", ErrValidation)
	}
	leg := Leg{Action: ActionCreate, Signer: signer, Policy: policy, To: e.managerV2, Value: value, Payload: &payload}
	sum, err := e.dispatcher.Dispatch(ctx, []Leg{leg})
	if err != nil {
		return TokenCreated{}, nil, err
	}
	out := sum.Outcomes[0]
	if out.Err != nil {
		return TokenCreated{}, out.Receipt, out.Err
	}
	ev, ok := CreatedToken(out.Receipt, e.managerV2)
	if !ok {
		return TokenCreated{}, out.Receipt, fmt.Errorf("%w: no TokenCreate event in receipt %s", ErrLookupFailed, out.TxHash.Hex())
	}
	e.log.WithFields(logrus.Fields{"token": ev.Token.Hex(), "symbol": ev.Symbol}).Info("token created")
	return ev, out.Receipt, nil
}

// Fund sends amountEach from the primary signer to every auxiliary signer.
func (e *Engine) Fund(ctx context.Context, amountEach *big.Int, policy Policy) (Summary, error) {
	primary := e.fleet.Primary()
	aux := e.fleet.Auxiliary()
	if primary == nil || len(aux) == 0 {
		return Summary{}, fmt.Errorf("%w: funding needs a primary and at least one auxiliary signer", ErrNoLegs)
	}
	if amountEach == nil || amountEach.Sign() <= 0 {
		return Summary{}, fmt.Errorf("%w: amount per signer must be > 0", ErrValidation)
	}
	if err := policy.validate(); err != nil {
		return Summary{}, err
	}
	n := big.NewInt(int64(len(aux)))
	need := new(big.Int).Mul(amountEach, n)
	need.Add(need, new(big.Int).Mul(n, new(big.Int).Mul(policy.GasPrice, new(big.Int).SetUint64(TransferGasLimit))))
	have, err := e.reader.NativeBalance(ctx, primary.Address)
	if err != nil {
		return Summary{}, err
	}
	if have.Cmp(need) < 0 {
		return Summary{}, fmt.Errorf("%w: primary holds %s, funding needs %s", ErrInsufficientBalance, FormatEther(have), FormatEther(need))
	}
	legs := make([]Leg, 0, len(aux))
	for _, s := range aux {
		legs = append(legs, Leg{Action: ActionTransfer, Signer: primary, To: s.Address, Value: new(big.Int).Set(amountEach), Policy: policy})
	}
	return e.dispatcher.Dispatch(ctx, legs)
}

// Refund sweeps every auxiliary signer's native balance, less gas, back to
// the primary signer.
func (e *Engine) Refund(ctx context.Context, policy Policy) (Summary, error) {
	primary := e.fleet.Primary()
	aux := e.fleet.Auxiliary()
	if primary == nil || len(aux) == 0 {
		return Summary{}, fmt.Errorf("%w: refund needs a primary and at least one auxiliary signer", ErrNoLegs)
	}
	if err := policy.validate(); err != nil {
		return Summary{}, err
	}
	legs := make([]Leg, 0, len(aux))
	for _, s := range aux {
		legs = append(legs, Leg{Action: ActionTransfer, Signer: s, To: primary.Address, Sweep: true, Policy: policy})
	}
	return e.dispatcher.Dispatch(ctx, legs)
}

// IsPreflight reports whether err aborted an order before any leg ran.
func IsPreflight(err error) bool {
	for _, k := range []error{ErrValidation, ErrUnsupportedToken, ErrLookupFailed, ErrInsufficientBalance, ErrNoLegs} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
