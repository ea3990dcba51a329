// Command fleetcli manages the auxiliary wallet store: generating wallets and
// reporting native and token balances as CSV.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joho/godotenv"
	"github.com/lmittmann/w3"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/launch-bundler/internal/config"
	"github.com/ligun0805/launch-bundler/internal/fleet"
	core "github.com/ligun0805/launch-bundler/internal/tradecore"
)

type appConfig struct {
	walletsFile string
	rpcURL      string
	rateLimit   float64
	rpcTimeout  time.Duration
	count       int
	token       string
	out         string
	logLevel    string
}

func mustLoadConfig() (string, appConfig) {
	st := config.Load()
	cfg := appConfig{}
	flag.StringVar(&cfg.walletsFile, "wallets", st.WalletsFile, "Path to the wallet store (JSON)")
	flag.StringVar(&cfg.rpcURL, "rpc", st.RPCURL, "RPC endpoint URL")
	flag.Float64Var(&cfg.rateLimit, "rpc-rate", st.RPCRateLimit, "Max RPC reads per second (0 = unlimited)")
	flag.DurationVar(&cfg.rpcTimeout, "rpc-timeout", st.RPCTimeout, "HTTP timeout per RPC request")
	flag.IntVar(&cfg.count, "n", 10, "generate: number of wallets to add")
	flag.StringVar(&cfg.token, "token", "", "balances: token address (native only when empty)")
	flag.StringVar(&cfg.out, "out", "balances.csv", "balances: output CSV ('-' for stdout)")
	flag.StringVar(&cfg.logLevel, "log-level", st.LogLevel, "Log level")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: fleetcli [flags] generate|balances")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	return flag.Arg(0), cfg
}

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
	cmd, cfg := mustLoadConfig()

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.logLevel); err == nil {
		log.SetLevel(lvl)
	}

	var err error
	switch cmd {
	case "generate":
		err = generate(cfg, log)
	case "balances":
		err = balances(context.Background(), cfg, log)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// generate appends cfg.count fresh wallets to the store.
func generate(cfg appConfig, log logrus.FieldLogger) error {
	existing, err := fleet.LoadFile(cfg.walletsFile)
	if err != nil {
		return err
	}
	fresh, err := fleet.Generate(cfg.count)
	if err != nil {
		return err
	}
	// The fleet dedups; the primary slot is unused here.
	f := fleet.New(nil, existing)
	added := f.Append(fresh...)
	if err := fleet.SaveFile(cfg.walletsFile, f.Auxiliary()); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"file": cfg.walletsFile, "added": added, "total": f.AuxCount()}).Info("wallets generated")
	return nil
}

// newEthClientWithTimeout dials RPC with keep-alives and sane timeouts.
func newEthClientWithTimeout(rpcURL string, timeout time.Duration) (*rpc.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	httpClient := &http.Client{Timeout: timeout, Transport: transport}
	return rpc.DialHTTPWithClient(rpcURL, httpClient)
}

func balances(ctx context.Context, cfg appConfig, log logrus.FieldLogger) error {
	signers, err := fleet.LoadFile(cfg.walletsFile)
	if err != nil {
		return err
	}
	if len(signers) == 0 {
		return fmt.Errorf("no wallets in %s", cfg.walletsFile)
	}
	var token *common.Address
	if t := strings.TrimSpace(cfg.token); t != "" {
		if !common.IsHexAddress(t) {
			return fmt.Errorf("bad token address %q", t)
		}
		a := common.HexToAddress(t)
		token = &a
	}

	rc, err := newEthClientWithTimeout(cfg.rpcURL, cfg.rpcTimeout)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer rc.Close()
	reader := core.NewReader(ethclient.NewClient(rc), log,
		core.WithBatchClient(w3.NewClient(rc)),
		core.WithRateLimit(cfg.rateLimit))

	rows, err := collect(ctx, reader, signers, token)
	if err != nil {
		return err
	}

	out := os.Stdout
	if cfg.out != "-" {
		f, err := os.Create(cfg.out)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	if err := writeReport(w, rows); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.WithField("rows", len(rows)).Info("balance report written")
	return nil
}
