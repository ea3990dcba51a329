package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/launch-bundler/internal/config"
	"github.com/ligun0805/launch-bundler/internal/fleet"
	"github.com/ligun0805/launch-bundler/internal/metrics"
	"github.com/ligun0805/launch-bundler/internal/notify"
	core "github.com/ligun0805/launch-bundler/internal/tradecore"
)

// app holds everything a subcommand needs.
type app struct {
	st       config.Settings
	log      *logrus.Logger
	rc       *rpc.Client
	ec       *ethclient.Client
	chainID  *big.Int
	fleet    *fleet.Fleet
	engine   *core.Engine
	policies core.PolicyTable
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	notify   notify.Notifier
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, using info", level)
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// policyTable turns the configured gwei and percent strings into a table.
func policyTable(st config.Settings) (core.PolicyTable, error) {
	t := core.DefaultPolicyTable()
	gwei := func(name, s string) (*big.Int, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil || d.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s=%q", core.ErrValidation, name, s)
		}
		return core.GweiToWei(d), nil
	}
	pct := func(name, s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(core.MaxSlippagePct)) {
			return decimal.Zero, fmt.Errorf("%w: %s=%q", core.ErrValidation, name, s)
		}
		return d, nil
	}
	var err error
	if t.AutomatedGasPrice, err = gwei("AUTOMATED_GAS_GWEI", st.AutomatedGasGwei); err != nil { return t, err }
	if t.AggressiveGasPrice, err = gwei("AGGRESSIVE_GAS_GWEI", st.AggressiveGasGwei); err != nil { return t, err }
	if t.MinGasPrice, err = gwei("MIN_GAS_GWEI", st.MinGasGwei); err != nil { return t, err }
	if t.MaxGasPrice, err = gwei("MAX_GAS_GWEI", st.MaxGasGwei); err != nil { return t, err }
	if t.DefaultSlippage, err = pct("SLIPPAGE_PCT", st.DefaultSlippage); err != nil { return t, err }
	if t.SniperSlippage, err = pct("SNIPER_SLIPPAGE_PCT", st.SniperSlippage); err != nil { return t, err }
	if st.GasLimit > 0 { t.GasLimit = st.GasLimit }
	return t, nil
}

func parseAddr(name, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s is not an address: %q", core.ErrValidation, name, s)
	}
	return common.HexToAddress(s), nil
}

// loadFleet builds the fleet from the main key (env or prompt) and the
// wallet store.
func loadFleet(st config.Settings, log logrus.FieldLogger) (*fleet.Fleet, error) {
	pk := st.MainPrivateKey
	if pk == "" {
		pk = readPassword("Main wallet private key: ")
	}
	primary, err := fleet.SignerFromHex(pk)
	if err != nil {
		return nil, fmt.Errorf("main wallet key: %w", err)
	}
	aux, err := fleet.LoadFile(st.WalletsFile)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"primary": primary.Address.Hex(), "auxiliary": len(aux), "file": st.WalletsFile}).Info("fleet loaded")
	return fleet.New(primary, aux), nil
}

func newApp(ctx context.Context, st config.Settings) (*app, error) {
	a := &app{st: st, log: newLogger(st.LogLevel), notify: notify.Nop{}}

	var err error
	if a.policies, err = policyTable(st); err != nil {
		return nil, err
	}
	helper, err := parseAddr("TOKEN_MANAGER_HELPER", st.Helper)
	if err != nil {
		return nil, err
	}
	managerV2, err := parseAddr("TOKEN_MANAGER_V2", st.ManagerV2)
	if err != nil {
		return nil, err
	}
	ceiling, err := core.ParseEther(st.MaxFundsCeiling)
	if err != nil {
		return nil, fmt.Errorf("MAX_FUNDS_CEILING: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, st.RPCTimeout)
	defer cancel()
	if a.rc, err = rpc.DialContext(dialCtx, st.RPCURL); err != nil {
		return nil, fmt.Errorf("dial %s: %w", st.RPCURL, err)
	}
	a.ec = ethclient.NewClient(a.rc)
	if st.ChainID != "" {
		var ok bool
		if a.chainID, ok = new(big.Int).SetString(st.ChainID, 10); !ok {
			return nil, fmt.Errorf("%w: CHAIN_ID=%q", core.ErrValidation, st.ChainID)
		}
	} else if a.chainID, err = a.ec.ChainID(dialCtx); err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	if a.fleet, err = loadFleet(st, a.log); err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	if st.TelegramToken != "" {
		tg, err := notify.NewTelegram(st.TelegramToken, st.TelegramChatID, a.log)
		if err != nil {
			return nil, err
		}
		a.notify = tg
	}

	reader := core.NewReader(a.ec, a.log,
		core.WithBatchClient(w3.NewClient(a.rc)),
		core.WithRateLimit(st.RPCRateLimit),
		core.WithReadMetrics(a.metrics))
	submitter := core.NewSubmitter(a.ec, reader, core.NewNonceTracker(a.ec), core.SubmitterConfig{
		ChainID:         a.chainID,
		MaxFundsCeiling: ceiling,
		ReceiptPoll:     st.ReceiptPoll,
		ReceiptTimeout:  st.ReceiptTimeout,
	}, a.log)
	dispatcher := core.NewDispatcher(submitter, a.log, a.metrics)
	a.engine = core.NewEngine(a.fleet, reader, core.NewResolver(reader, helper), dispatcher, managerV2, a.log)
	return a, nil
}

// serveMetrics runs the /metrics endpoint when METRICS_ADDR is set.
func (a *app) serveMetrics(ctx context.Context) {
	if a.st.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.st.MetricsAddr, a.registry); err != nil {
			a.log.WithError(err).Error("metrics server stopped")
		}
	}()
	a.log.Infof("metrics on http://%s/metrics", a.st.MetricsAddr)
}

// logSubscriber dials BSC_WS_URL for the sniper, falling back to the main
// client (which must then be a websocket endpoint).
func (a *app) logSubscriber(ctx context.Context) (*ethclient.Client, error) {
	if a.st.WSURL == "" {
		return a.ec, nil
	}
	rc, err := rpc.DialContext(ctx, a.st.WSURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", a.st.WSURL, err)
	}
	return ethclient.NewClient(rc), nil
}

func (a *app) printConfig() {
	fmt.Fprintln(os.Stderr, "=== CONFIG (.env) ===")
	fmt.Fprintln(os.Stderr, "NETWORK           :", a.st.Network)
	fmt.Fprintln(os.Stderr, "RPC_URL           :", a.st.RPCURL)
	fmt.Fprintln(os.Stderr, "CHAIN_ID          :", a.chainID.String())
	fmt.Fprintln(os.Stderr, "MAIN_WALLET       :", a.fleet.Primary().Address.Hex(), maskHex(a.st.MainPrivateKey))
	fmt.Fprintln(os.Stderr, "AUX WALLETS       :", a.fleet.AuxCount())
	fmt.Fprintln(os.Stderr, "MANAGER V1/V2     :", a.st.ManagerV1, a.st.ManagerV2)
	fmt.Fprintln(os.Stderr, "GAS auto/aggr     :", core.FormatGwei(a.policies.AutomatedGasPrice), "/", core.FormatGwei(a.policies.AggressiveGasPrice), "gwei")
	fmt.Fprintln(os.Stderr, "=====================")
}
