// Package sniper watches token creations on the V2 manager and buys the first
// token whose symbol matches the armed target, once.
package sniper

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/launch-bundler/internal/fleet"
	"github.com/ligun0805/launch-bundler/internal/metrics"
	"github.com/ligun0805/launch-bundler/internal/notify"
	"github.com/ligun0805/launch-bundler/internal/tradecore"
)

// LogSubscriber is implemented by *ethclient.Client over a websocket endpoint.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

type Buyer interface {
	BuyEach(ctx context.Context, token common.Address, signers []*fleet.Signer, fundsEach *big.Int, policy tradecore.Policy) (tradecore.Summary, error)
}

type Signers interface {
	Auxiliary() []*fleet.Signer
}

type Config struct {
	Manager          common.Address
	Policy           tradecore.Policy
	ResubscribeAfter time.Duration
}

// Watcher is a single-instance state machine: Disarmed -> Armed -> Disarmed,
// leaving Armed either on a match (which buys) or on Stop (which does not).
type Watcher struct {
	logs    LogSubscriber
	buyer   Buyer
	signers Signers
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	notify  notify.Notifier

	mu     sync.Mutex
	armed  bool
	target string
	funds  *big.Int
	cancel context.CancelFunc
	done   chan struct{}

	buys sync.WaitGroup
}

func New(logs LogSubscriber, buyer Buyer, signers Signers, cfg Config, log logrus.FieldLogger, m *metrics.Metrics, n notify.Notifier) *Watcher {
	if cfg.ResubscribeAfter <= 0 {
		cfg.ResubscribeAfter = 3 * time.Second
	}
	if n == nil {
		n = notify.Nop{}
	}
	return &Watcher{logs: logs, buyer: buyer, signers: signers, cfg: cfg, log: log.WithField("component", "sniper"), metrics: m, notify: n}
}

func (w *Watcher) query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{w.cfg.Manager},
		Topics:    [][]common.Hash{{tradecore.TokenCreateTopic}},
	}
}

// Arm subscribes and waits for symbol. It returns false without error when a
// watcher is already armed. The subscription lives until a match, Stop, or
// ctx is done.
func (w *Watcher) Arm(ctx context.Context, symbol string, fundsPerSigner *big.Int) (bool, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return false, fmt.Errorf("%w: empty target symbol", tradecore.ErrValidation)
	}
	if fundsPerSigner == nil || fundsPerSigner.Sign() <= 0 {
		return false, fmt.Errorf("%w: funds per signer must be > 0", tradecore.ErrValidation)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		return false, nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch := make(chan types.Log, 64)
	sub, err := w.logs.SubscribeFilterLogs(runCtx, w.query(), ch)
	if err != nil {
		cancel()
		return false, fmt.Errorf("subscribe TokenCreate: %w", err)
	}
	w.armed = true
	w.target = symbol
	w.funds = new(big.Int).Set(fundsPerSigner)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(runCtx, sub, ch, w.done)

	w.log.WithField("symbol", symbol).Infof("armed, %s native per signer", tradecore.FormatEther(fundsPerSigner))
	return true, nil
}

// Stop disarms without buying. It reports whether a watcher was armed.
func (w *Watcher) Stop() bool {
	w.mu.Lock()
	if !w.armed {
		w.mu.Unlock()
		return false
	}
	w.armed = false
	w.cancel()
	done := w.done
	w.mu.Unlock()
	<-done
	w.log.Info("stopped")
	return true
}

func (w *Watcher) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *Watcher) Target() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// Done is closed when the current arming ends, by a match, Stop or the
// parent context. Before the first Arm it is already closed.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return w.done
}

// Wait blocks until buys started by matches have finished.
func (w *Watcher) Wait() { w.buys.Wait() }

func (w *Watcher) loop(ctx context.Context, sub ethereum.Subscription, ch chan types.Log, done chan struct{}) {
	defer close(done)
	defer w.disarmIf(done)
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			w.log.WithError(err).Warn("subscription dropped, resubscribing")
			sub.Unsubscribe()
			if sub = w.resubscribe(ctx, ch); sub == nil {
				return
			}
		case lg := <-ch:
			ev, funds, ok := w.match(lg)
			if !ok {
				continue
			}
			sub.Unsubscribe()
			sub = nil
			w.buys.Add(1)
			go w.buy(context.WithoutCancel(ctx), ev, funds)
			return
		}
	}
}

func (w *Watcher) resubscribe(ctx context.Context, ch chan types.Log) ethereum.Subscription {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.ResubscribeAfter):
		}
		sub, err := w.logs.SubscribeFilterLogs(ctx, w.query(), ch)
		if err == nil {
			return sub
		}
		w.log.WithError(err).Warn("resubscribe failed")
	}
}

// disarmIf clears the armed state when the loop that owns done exits on its
// own (parent context cancelled).
func (w *Watcher) disarmIf(done chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == done && w.armed {
		w.armed = false
		w.cancel()
	}
}

// match disarms on the first event whose symbol equals the target.
func (w *Watcher) match(lg types.Log) (tradecore.TokenCreated, *big.Int, bool) {
	if lg.Removed {
		return tradecore.TokenCreated{}, nil, false
	}
	ev, err := tradecore.DecodeTokenCreate(lg.Data)
	if err != nil {
		w.metrics.SniperEvent("decode_error")
		w.log.WithError(err).WithField("tx", lg.TxHash.Hex()).Debug("undecodable TokenCreate")
		return ev, nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || ev.Symbol != w.target {
		w.metrics.SniperEvent("ignored")
		w.log.WithFields(logrus.Fields{"symbol": ev.Symbol, "token": ev.Token.Hex()}).Debug("token created, not our target")
		return ev, nil, false
	}
	w.armed = false
	w.cancel()
	w.metrics.SniperEvent("matched")
	return ev, w.funds, true
}

func (w *Watcher) buy(ctx context.Context, ev tradecore.TokenCreated, funds *big.Int) {
	defer w.buys.Done()
	log := w.log.WithFields(logrus.Fields{"symbol": ev.Symbol, "token": ev.Token.Hex()})
	log.Info("target created, buying")
	w.notify.Notify(ctx, fmt.Sprintf("sniper: %s created at %s, buying", ev.Symbol, ev.Token.Hex()))

	sum, err := w.buyer.BuyEach(ctx, ev.Token, w.signers.Auxiliary(), funds, w.cfg.Policy)
	if err != nil {
		log.WithError(err).Error("sniper buy aborted")
		w.notify.Notify(ctx, fmt.Sprintf("sniper: buy of %s aborted: %v", ev.Symbol, err))
		return
	}
	log.Infof("sniper buy done: %s", sum)
	w.notify.Notify(ctx, fmt.Sprintf("sniper: %s bought, %s", ev.Symbol, sum))
}
