package tradecore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/launch-bundler/internal/metrics"
)

// LegSubmitter runs a single leg to completion.
type LegSubmitter interface {
	Submit(ctx context.Context, leg Leg) (*types.Receipt, error)
}

// Dispatcher fans legs out concurrently and collects one outcome per leg.
type Dispatcher struct {
	submitter LegSubmitter
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

func NewDispatcher(s LegSubmitter, log logrus.FieldLogger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{submitter: s, log: log, metrics: m}
}

// Dispatch submits every leg at once with no concurrency cap. Leg failures
// are returned as data; the error is non-nil only for an empty batch.
// Legs keep running if ctx is cancelled after they start.
func (d *Dispatcher) Dispatch(ctx context.Context, legs []Leg) (Summary, error) {
	if len(legs) == 0 {
		return Summary{}, fmt.Errorf("%w: nothing eligible to submit", ErrNoLegs)
	}
	sum := Summary{ID: uuid.NewString(), Outcomes: make([]Outcome, len(legs))}
	log := d.log.WithField("dispatch", sum.ID)
	legCtx := context.WithoutCancel(ctx)
	start := time.Now()

	var wg sync.WaitGroup
	for i := range legs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sum.Outcomes[i] = d.run(legCtx, log, legs[i])
		}(i)
	}
	wg.Wait()
	d.metrics.Dispatch(time.Since(start))

	for _, o := range sum.Outcomes {
		switch {
		case o.Skipped:
			sum.Skipped++
		case o.Err != nil:
			sum.Failed++
		default:
			sum.Succeeded++
		}
	}
	entry := log.WithFields(logrus.Fields{"ok": sum.Succeeded, "failed": sum.Failed, "skipped": sum.Skipped})
	if sum.Failed > 0 {
		entry.Warnf("dispatch finished with failures (%d legs)", len(legs))
	} else {
		entry.Infof("dispatch finished (%d legs)", len(legs))
	}
	return sum, nil
}

func (d *Dispatcher) run(ctx context.Context, log logrus.FieldLogger, leg Leg) Outcome {
	out := Outcome{Action: leg.Action}
	if leg.Signer != nil {
		out.Signer = leg.Signer.Address
	}
	rcpt, err := d.submitter.Submit(ctx, leg)
	out.Receipt = rcpt
	if rcpt != nil {
		out.TxHash = rcpt.TxHash
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		out.TxHash = txErr.Hash
	}
	entry := log.WithFields(logrus.Fields{"signer": hexOrEmpty(out.Signer), "action": leg.Action.String()})
	switch {
	case errors.Is(err, errSkipLeg):
		out.Skipped = true
		entry.Warnf("skipped: %v", err)
		d.metrics.Leg(leg.Action.String(), "skipped")
	case err != nil:
		out.Err = err
		entry.Errorf("failed: %v", err)
		d.metrics.Leg(leg.Action.String(), "failed")
	default:
		entry.WithField("tx", out.TxHash.Hex()).Info("confirmed")
		d.metrics.Leg(leg.Action.String(), "ok")
	}
	return out
}

func hexOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
