// Package volume runs the periodic sell/buy cycle between random pairs of
// auxiliary signers.
package volume

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/launch-bundler/internal/fleet"
	"github.com/ligun0805/launch-bundler/internal/metrics"
	"github.com/ligun0805/launch-bundler/internal/notify"
	"github.com/ligun0805/launch-bundler/internal/tradecore"
)

// Trader is the slice of *tradecore.Engine the scheduler drives.
type Trader interface {
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	BuyEach(ctx context.Context, token common.Address, signers []*fleet.Signer, fundsEach *big.Int, policy tradecore.Policy) (tradecore.Summary, error)
	Cycle(ctx context.Context, token common.Address, seller, buyer *fleet.Signer, sellAmount, buyFunds *big.Int, policy tradecore.Policy) (tradecore.Summary, error)
}

type Signers interface {
	Auxiliary() []*fleet.Signer
}

type Job struct {
	Token      common.Address
	BuyFunds   *big.Int
	SellAmount *big.Int
	Interval   time.Duration
}

func (j Job) validate() error {
	switch {
	case j.Token == (common.Address{}):
		return fmt.Errorf("%w: token address required", tradecore.ErrValidation)
	case j.BuyFunds == nil || j.BuyFunds.Sign() <= 0:
		return fmt.Errorf("%w: buy funds must be > 0", tradecore.ErrValidation)
	case j.SellAmount == nil || j.SellAmount.Sign() <= 0:
		return fmt.Errorf("%w: sell amount must be > 0", tradecore.ErrValidation)
	case j.Interval <= 0:
		return fmt.Errorf("%w: interval must be > 0", tradecore.ErrValidation)
	}
	return nil
}

const notifyTimeout = 5 * time.Second

// Scheduler owns at most one running job.
type Scheduler struct {
	trader  Trader
	signers Signers
	policy  tradecore.Policy
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	notify  notify.Notifier

	// pick returns the indices of seller and buyer among n signers.
	pick func(n int) (int, int)

	// lifecycle serializes Start and Stop; mu guards the fields below it.
	lifecycle sync.Mutex
	mu        sync.Mutex
	job       *Job
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(trader Trader, signers Signers, policy tradecore.Policy, log logrus.FieldLogger, m *metrics.Metrics, n notify.Notifier) *Scheduler {
	if n == nil {
		n = notify.Nop{}
	}
	return &Scheduler{
		trader:  trader,
		signers: signers,
		policy:  policy,
		log:     log.WithField("component", "volume"),
		metrics: m,
		notify:  n,
		pick:    randomPair,
	}
}

// randomPair draws two distinct indices uniformly.
func randomPair(n int) (int, int) {
	p := rand.Perm(n)
	return p[0], p[1]
}

// Start replaces any running job with j. The first tick fires after one
// interval.
func (s *Scheduler) Start(ctx context.Context, j Job) error {
	if err := j.validate(); err != nil {
		return err
	}
	if n := len(s.signers.Auxiliary()); n < 2 {
		return fmt.Errorf("%w: volume needs at least 2 auxiliary signers, have %d", tradecore.ErrValidation, n)
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stop()

	runCtx, cancel := context.WithCancel(ctx)
	job := j
	done := make(chan struct{})
	s.mu.Lock()
	s.job, s.cancel, s.done = &job, cancel, done
	s.mu.Unlock()
	go s.loop(runCtx, job, done)

	s.log.WithFields(logrus.Fields{
		"token":    j.Token.Hex(),
		"interval": j.Interval,
	}).Infof("volume started: sell %s, buy %s native", j.SellAmount, tradecore.FormatEther(j.BuyFunds))
	s.notify.Notify(ctx, fmt.Sprintf("volume: started on %s every %s", j.Token.Hex(), j.Interval))
	return nil
}

// Stop cancels the running job and waits for an in-progress tick to finish.
// It reports whether a job was running.
func (s *Scheduler) Stop() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.stop()
}

func (s *Scheduler) stop() bool {
	s.mu.Lock()
	if s.job == nil {
		s.mu.Unlock()
		return false
	}
	tok := s.job.Token
	s.job = nil
	s.cancel()
	done := s.done
	s.mu.Unlock()
	<-done
	s.log.WithField("token", tok.Hex()).Info("volume stopped")

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	s.notify.Notify(ctx, "volume: stopped on "+tok.Hex())
	return true
}

func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job != nil
}

func (s *Scheduler) loop(ctx context.Context, j Job, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(j.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.tick(ctx, j); err != nil {
				s.metrics.VolumeTick("error")
				s.log.WithError(err).Warn("volume tick failed")
			}
		}
	}
}

// tick runs one round. Ticks execute one at a time on the loop goroutine.
func (s *Scheduler) tick(ctx context.Context, j Job) error {
	aux := s.signers.Auxiliary()
	if len(aux) < 2 {
		return fmt.Errorf("%w: need 2 auxiliary signers, have %d", tradecore.ErrValidation, len(aux))
	}
	si, bi := s.pick(len(aux))
	seller, buyer := aux[si], aux[bi]
	log := s.log.WithFields(logrus.Fields{"seller": seller.Address.Hex(), "buyer": buyer.Address.Hex()})

	bal, err := s.trader.TokenBalance(ctx, j.Token, seller.Address)
	if err != nil {
		return fmt.Errorf("seller balance: %w", err)
	}

	if bal.Cmp(j.SellAmount) < 0 {
		log.Infof("seller holds %s < %s, topping up", bal, j.SellAmount)
		sum, err := s.trader.BuyEach(ctx, j.Token, []*fleet.Signer{seller}, j.BuyFunds, s.policy)
		if err != nil {
			return err
		}
		s.metrics.VolumeTick("topup")
		log.Infof("top-up: %s", sum)
		return sum.Err()
	}

	sum, err := s.trader.Cycle(ctx, j.Token, seller, buyer, j.SellAmount, j.BuyFunds, s.policy)
	if err != nil {
		return err
	}
	s.metrics.VolumeTick("cycle")
	log.Infof("cycle: %s", sum)
	return sum.Err()
}
