package tradecore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/launch-bundler/internal/fleet"
)

// TxError carries the hash of a broadcast transaction that did not succeed.
type TxError struct {
	Hash common.Hash
	Err  error
}

func (e *TxError) Error() string { return fmt.Sprintf("tx %s: %v", e.Hash.Hex(), e.Err) }
func (e *TxError) Unwrap() error { return e.Err }

type SubmitterConfig struct {
	ChainID         *big.Int
	MaxFundsCeiling *big.Int // buy-by-amount spend cap before slippage
	ReceiptPoll     time.Duration
	ReceiptTimeout  time.Duration
}

// Submitter sends one leg and waits for its inclusion. Gas price and limit
// are always explicit; nothing is estimated and nothing is retried.
type Submitter struct {
	chain  Chain
	reader *Reader
	nonces *NonceTracker
	cfg    SubmitterConfig
	log    logrus.FieldLogger
}

func NewSubmitter(chain Chain, reader *Reader, nonces *NonceTracker, cfg SubmitterConfig, log logrus.FieldLogger) *Submitter {
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = 1500 * time.Millisecond
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 3 * time.Minute
	}
	if cfg.MaxFundsCeiling == nil {
		cfg.MaxFundsCeiling = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1_000_000_000_000_000_000))
	}
	return &Submitter{chain: chain, reader: reader, nonces: nonces, cfg: cfg, log: log}
}

// Submit runs one leg to inclusion. A sell may broadcast an approval first.
func (s *Submitter) Submit(ctx context.Context, leg Leg) (*types.Receipt, error) {
	if leg.Skip != "" {
		return nil, fmt.Errorf("%w: %s", errSkipLeg, leg.Skip)
	}
	if leg.Signer == nil {
		return nil, fmt.Errorf("%w: leg without signer", ErrValidation)
	}
	if err := leg.Policy.validate(); err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"signer": leg.Signer.Address.Hex(), "action": leg.Action.String()})
	switch leg.Action {
	case ActionBuy:
		return s.buy(ctx, log, leg)
	case ActionSell:
		return s.sell(ctx, log, leg)
	case ActionCreate:
		return s.create(ctx, log, leg)
	case ActionTransfer:
		return s.transfer(ctx, log, leg)
	}
	return nil, fmt.Errorf("%w: unknown action %v", ErrValidation, leg.Action)
}

func (s *Submitter) calls(v Version) (managerCalls, error) {
	c, ok := callTable[v]
	if !ok {
		return managerCalls{}, fmt.Errorf("%w: no entry points for manager %v", ErrLookupFailed, v)
	}
	return c, nil
}

func (s *Submitter) buy(ctx context.Context, log logrus.FieldLogger, leg Leg) (*types.Receipt, error) {
	calls, err := s.calls(leg.Info.Version)
	if err != nil {
		return nil, err
	}
	var (
		data  []byte
		value *big.Int
	)
	switch {
	case leg.Funds != nil && leg.Funds.Sign() > 0:
		log.Infof("buying with %s native", FormatEther(leg.Funds))
		data, err = calls.buyFunds(leg.Token, leg.Funds)
		value = leg.Funds
	case leg.Amount != nil && leg.Amount.Sign() > 0:
		value = maxFundsFor(s.cfg.MaxFundsCeiling, leg.Policy.SlippagePct)
		log.Infof("buying %s base units, maxFunds %s", leg.Amount, FormatEther(value))
		data, err = calls.buyAmount(leg.Token, leg.Amount, value)
	default:
		return nil, fmt.Errorf("%w: buy leg needs funds or amount", ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	return s.send(ctx, log, leg.Signer, leg.Info.Manager, value, leg.Policy.GasLimit, leg.Policy.GasPrice, data)
}

func (s *Submitter) sell(ctx context.Context, log logrus.FieldLogger, leg Leg) (*types.Receipt, error) {
	calls, err := s.calls(leg.Info.Version)
	if err != nil {
		return nil, err
	}
	owner := leg.Signer.Address
	live, err := s.reader.TokenBalance(ctx, leg.Token, owner)
	if err != nil {
		return nil, err
	}
	amount := live
	if !leg.SellAll {
		if leg.Amount == nil || leg.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: sell leg needs an amount", ErrValidation)
		}
		amount = leg.Amount
		if amount.Cmp(live) > 0 {
			log.Warnf("sell amount %s above live balance, clamping to %s", amount, live)
			amount = live
		}
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero token balance", errSkipLeg)
	}

	allowance, err := s.reader.Allowance(ctx, leg.Token, owner, leg.Info.Manager)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) < 0 {
		log.Info("approving manager")
		data, err := erc20ABI.Pack("approve", leg.Info.Manager, maxUint256)
		if err != nil {
			return nil, err
		}
		if _, err := s.send(ctx, log, leg.Signer, leg.Token, nil, leg.Policy.GasLimit, leg.Policy.GasPrice, data); err != nil {
			return nil, fmt.Errorf("approve: %w", err)
		}
	}

	log.Infof("selling %s base units", amount)
	data, err := calls.sell(leg.Token, amount)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, log, leg.Signer, leg.Info.Manager, nil, leg.Policy.GasLimit, leg.Policy.GasPrice, data)
}

func (s *Submitter) create(ctx context.Context, log logrus.FieldLogger, leg Leg) (*types.Receipt, error) {
	if leg.Payload == nil || len(leg.Payload.CreateArg) == 0 || len(leg.Payload.Signature) == 0 {
		return nil, fmt.Errorf("%w: create needs signed creation parameters", ErrValidation)
	}
	data, err := managerV2ABI.Pack("createToken", leg.Payload.CreateArg, leg.Payload.Signature)
	if err != nil {
		return nil, err
	}
	log.Info("sending createToken")
	return s.send(ctx, log, leg.Signer, leg.To, leg.Value, leg.Policy.GasLimit, leg.Policy.GasPrice, data)
}

func (s *Submitter) transfer(ctx context.Context, log logrus.FieldLogger, leg Leg) (*types.Receipt, error) {
	value := leg.Value
	if leg.Sweep {
		bal, err := s.reader.NativeBalance(ctx, leg.Signer.Address)
		if err != nil {
			return nil, err
		}
		fee := new(big.Int).Mul(leg.Policy.GasPrice, new(big.Int).SetUint64(TransferGasLimit))
		value = new(big.Int).Sub(bal, fee)
		if value.Sign() <= 0 {
			return nil, fmt.Errorf("%w: balance %s does not cover gas", errSkipLeg, FormatEther(bal))
		}
	}
	if value == nil || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: transfer value must be > 0", ErrValidation)
	}
	log.Infof("sending %s native to %s", FormatEther(value), leg.To.Hex())
	return s.send(ctx, log, leg.Signer, leg.To, value, TransferGasLimit, leg.Policy.GasPrice, nil)
}

func (s *Submitter) send(ctx context.Context, log logrus.FieldLogger, signer *fleet.Signer, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) (*types.Receipt, error) {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	nonce, err := s.nonces.Next(ctx, signer.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrSubmission, err)
	}
	signed, err := signer.SignTx(buildLegacyTx(nonce, to, value, gasLimit, gasPrice, data), s.cfg.ChainID)
	if err != nil {
		s.nonces.Reset(signer.Address)
		return nil, fmt.Errorf("%w: sign: %v", ErrSubmission, err)
	}
	log.WithField("nonce", nonce).Debugf("raw %s", txAsHex(signed))
	if err := s.chain.SendTransaction(ctx, signed); err != nil {
		s.nonces.Reset(signer.Address)
		return nil, fmt.Errorf("%w: broadcast: %s", ErrSubmission, revertReason(err))
	}
	hash := signed.Hash()
	log.WithField("tx", hash.Hex()).Info("sent, waiting for inclusion")

	rcpt, err := s.waitReceipt(ctx, hash)
	if err != nil {
		// a tx that never lands leaves a gap; later nonces would queue behind it
		s.nonces.Reset(signer.Address)
		return nil, &TxError{Hash: hash, Err: fmt.Errorf("%w: waiting for receipt: %v", ErrSubmission, err)}
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return rcpt, &TxError{Hash: hash, Err: fmt.Errorf("%w: reverted in block %v", ErrSubmission, rcpt.BlockNumber)}
	}
	log.WithField("tx", hash.Hex()).Infof("included in block %v", rcpt.BlockNumber)
	return rcpt, nil
}

func (s *Submitter) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()
	t := time.NewTicker(s.cfg.ReceiptPoll)
	defer t.Stop()
	for {
		rcpt, err := s.chain.TransactionReceipt(ctx, hash)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.log.WithError(err).WithField("tx", hash.Hex()).Debug("receipt poll")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// CreatedToken extracts the new token address from a createToken receipt.
func CreatedToken(rcpt *types.Receipt, manager common.Address) (TokenCreated, bool) {
	if rcpt == nil {
		return TokenCreated{}, false
	}
	for _, l := range rcpt.Logs {
		if l == nil || l.Address != manager || len(l.Topics) == 0 || l.Topics[0] != TokenCreateTopic {
			continue
		}
		if ev, err := DecodeTokenCreate(l.Data); err == nil {
			return ev, true
		}
	}
	return TokenCreated{}, false
}
