package tradecore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/launch-bundler/internal/metrics"
)

type stubSubmitter struct {
	fail    map[common.Address]bool
	skip    map[common.Address]bool
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (s *stubSubmitter) Submit(ctx context.Context, leg Leg) (*types.Receipt, error) {
	s.calls.Add(1)
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case s.skip[leg.Signer.Address]:
		return nil, fmt.Errorf("%w: zero token balance", errSkipLeg)
	case s.fail[leg.Signer.Address]:
		return nil, &TxError{Hash: common.HexToHash("0xbad"), Err: fmt.Errorf("%w: reverted", ErrSubmission)}
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.BytesToHash(leg.Signer.Address.Bytes())}, nil
}

func TestDispatchEmptyIsPreflightFailure(t *testing.T) {
	d := NewDispatcher(&stubSubmitter{}, quietLog(), nil)
	_, err := d.Dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoLegs)
	assert.True(t, IsPreflight(err))
}

func TestDispatchCollectsEveryOutcome(t *testing.T) {
	signers := newSigners(t, 5)
	stub := &stubSubmitter{fail: map[common.Address]bool{signers[1].Address: true, signers[3].Address: true}, delay: 20 * time.Millisecond}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := NewDispatcher(stub, quietLog(), m)

	legs := make([]Leg, len(signers))
	for i, s := range signers {
		legs[i] = Leg{Action: ActionBuy, Signer: s}
	}
	sum, err := d.Dispatch(context.Background(), legs)
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 5)
	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.NotEmpty(t, sum.ID)

	for i, o := range sum.Outcomes {
		assert.Equal(t, signers[i].Address, o.Signer)
		if i == 1 || i == 3 {
			assert.ErrorIs(t, o.Err, ErrSubmission)
			assert.Equal(t, common.HexToHash("0xbad"), o.TxHash)
			assert.False(t, o.OK())
		} else {
			assert.True(t, o.OK())
		}
	}
	assert.ErrorIs(t, sum.Err(), ErrPartialBatch)
	assert.EqualValues(t, 5, stub.peak.Load(), "legs run concurrently")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LegsTotal.WithLabelValues("buy", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LegsTotal.WithLabelValues("buy", "failed")))
}

func TestDispatchAllFailed(t *testing.T) {
	signers := newSigners(t, 2)
	stub := &stubSubmitter{fail: map[common.Address]bool{signers[0].Address: true, signers[1].Address: true}}
	d := NewDispatcher(stub, quietLog(), nil)
	sum, err := d.Dispatch(context.Background(), []Leg{{Action: ActionSell, Signer: signers[0]}, {Action: ActionSell, Signer: signers[1]}})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.ErrorIs(t, sum.Err(), ErrSubmission)
	assert.False(t, errors.Is(sum.Err(), ErrPartialBatch))
}

func TestDispatchSkippedLegsAreNotFailures(t *testing.T) {
	signers := newSigners(t, 2)
	stub := &stubSubmitter{skip: map[common.Address]bool{signers[0].Address: true}}
	d := NewDispatcher(stub, quietLog(), nil)
	sum, err := d.Dispatch(context.Background(), []Leg{{Action: ActionSell, Signer: signers[0]}, {Action: ActionSell, Signer: signers[1]}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Succeeded)
	assert.True(t, sum.Outcomes[0].Skipped)
	assert.NoError(t, sum.Outcomes[0].Err)
	assert.NoError(t, sum.Err())
}

func TestDispatchInFlightSurvivesCancellation(t *testing.T) {
	signers := newSigners(t, 3)
	stub := &stubSubmitter{delay: 50 * time.Millisecond}
	d := NewDispatcher(stub, quietLog(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	var (
		wg  sync.WaitGroup
		sum Summary
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		legs := []Leg{{Action: ActionBuy, Signer: signers[0]}, {Action: ActionBuy, Signer: signers[1]}, {Action: ActionBuy, Signer: signers[2]}}
		sum, _ = d.Dispatch(ctx, legs)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.Equal(t, 3, sum.Succeeded)
}
