package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	core "github.com/ligun0805/launch-bundler/internal/tradecore"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitPreflight = 2 // nothing was sent
	exitPartial   = 3
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case core.IsPreflight(err):
		return exitPreflight
	case errors.Is(err, core.ErrPartialBatch):
		return exitPartial
	}
	return exitFailed
}

func printSummary(w io.Writer, sum core.Summary) {
	fmt.Fprintf(w, "dispatch %s: %s\n", sum.ID, sum)
	for _, o := range sum.Outcomes {
		state := "OK"
		switch {
		case o.Skipped:
			state = "SKIP"
		case o.Err != nil:
			state = "FAIL"
		}
		line := fmt.Sprintf("  [%s] %-5s %s", state, o.Action, o.Signer.Hex())
		if o.TxHash != (common.Hash{}) {
			line += " tx=" + o.TxHash.Hex()
		}
		if o.Err != nil {
			line += " err=" + truncate(o.Err.Error(), 160)
		}
		fmt.Fprintln(w, line)
	}
}

// report prints the summary and forwards a one-line version to the notifier.
func report(ctx context.Context, a *app, what string, sum core.Summary) {
	printSummary(os.Stdout, sum)
	a.notify.Notify(ctx, summaryText(what, sum))
}

func summaryText(what string, sum core.Summary) string {
	return fmt.Sprintf("%s %s: %s", what, sum.ID, sum)
}

func truncate(s string, n int) string { if len(s) <= n { return s }; return s[:n] + "…(truncated)" }

// optDecimal parses an optional flag value; empty means unset.
func optDecimal(name, s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" { return nil, nil }
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: --%s=%q", core.ErrValidation, name, s)
	}
	return &d, nil
}
