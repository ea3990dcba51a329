package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/launch-bundler/internal/notify"
	core "github.com/ligun0805/launch-bundler/internal/tradecore"
)

func TestCreateUsesLowGasPolicy(t *testing.T) {
	table := core.DefaultPolicyTable()
	p, err := createPolicy(table)
	require.NoError(t, err)
	assert.Equal(t, table.AutomatedGasPrice, p.GasPrice)
	assert.NotEqual(t, table.AggressiveGasPrice, p.GasPrice)
	assert.Equal(t, core.ModeAutomated, p.Mode)
}

func TestReportForwardsSummary(t *testing.T) {
	rec := &notify.Recorder{}
	a := &app{notify: rec}
	report(context.Background(), a, "fund", core.Summary{ID: "d1", Succeeded: 2, Failed: 1})

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "fund d1: ok=2 failed=1 skipped=0", msgs[0])
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitPartial, exitCode(fmt.Errorf("x: %w", core.ErrPartialBatch)))
	assert.Equal(t, exitFailed, exitCode(errors.New("boom")))
}
