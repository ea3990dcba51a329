// Command launchcli drives the four.meme trade engine: bundle buys and sells
// across the wallet fleet, token creation, the sniper and the volume job.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/launch-bundler/internal/config"
	"github.com/ligun0805/launch-bundler/internal/sniper"
	core "github.com/ligun0805/launch-bundler/internal/tradecore"
	"github.com/ligun0805/launch-bundler/internal/volume"
)

type runFunc func(ctx context.Context, a *app) error

type command struct {
	usage string
	setup func(fs *flag.FlagSet) runFunc
}

var commands = map[string]command{
	"buy":      {"bundle buy from the selected wallets", buyCmd},
	"sell":     {"bundle sell from the selected wallets", sellCmd},
	"create":   {"create a token on the V2 manager, optionally bundle buy", createCmd},
	"snipe":    {"wait for a token symbol to be created and buy it", snipeCmd},
	"volume":   {"run the periodic sell/buy cycle until interrupted", volumeCmd},
	"fund":     {"send native from the main wallet to every auxiliary wallet", fundCmd},
	"refund":   {"sweep native from auxiliary wallets back to the main wallet", refundCmd},
	"netcheck": {"show gas prices and which wallets are short of gas", netcheckCmd},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: launchcli <command> [flags]")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", n, commands[n].usage)
	}
}

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFailed)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(exitFailed)
	}
	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	run := cmd.setup(fs)
	_ = fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, run)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func execute(ctx context.Context, run runFunc) error {
	a, err := newApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.rc.Close()
	a.printConfig()
	a.serveMetrics(ctx)
	return run(ctx, a)
}

// tradeFlags are shared by buy and sell.
type tradeFlags struct {
	token    *string
	wallets  *string
	gasGwei  *string
	slippage *string
	yes      *bool
}

func addTradeFlags(fs *flag.FlagSet) tradeFlags {
	return tradeFlags{
		token:    fs.String("token", "", "token address"),
		wallets:  fs.String("wallets", "multi", "wallet selection: main, multi or all"),
		gasGwei:  fs.String("gas-gwei", "", "gas price in gwei (default: aggressive)"),
		slippage: fs.String("slippage", "", "slippage percent, 0-50"),
		yes:      fs.Bool("yes", false, "do not ask for confirmation"),
	}
}

func (f tradeFlags) policy(a *app) (core.Policy, error) {
	gwei, err := optDecimal("gas-gwei", *f.gasGwei)
	if err != nil {
		return core.Policy{}, err
	}
	slip, err := optDecimal("slippage", *f.slippage)
	if err != nil {
		return core.Policy{}, err
	}
	return a.policies.Select(core.ModeInteractive, gwei, slip)
}

func (f tradeFlags) order(a *app, action core.Action) (core.Order, error) {
	token, err := parseAddr("--token", *f.token)
	if err != nil {
		return core.Order{}, err
	}
	signers, err := a.fleet.Select(*f.wallets)
	if err != nil {
		return core.Order{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	policy, err := f.policy(a)
	if err != nil {
		return core.Order{}, err
	}
	return core.Order{Action: action, Token: token, Signers: signers, Policy: policy}, nil
}

// oneOf returns the name of the single non-empty flag.
func oneOf(vals map[string]string) (string, string, error) {
	var name, val string
	for k, v := range vals {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if name != "" {
			return "", "", fmt.Errorf("%w: --%s and --%s are exclusive", core.ErrValidation, name, k)
		}
		name, val = k, strings.TrimSpace(v)
	}
	if name == "" {
		keys := make([]string, 0, len(vals))
		for k := range vals {
			keys = append(keys, "--"+k)
		}
		sort.Strings(keys)
		return "", "", fmt.Errorf("%w: one of %s is required", core.ErrValidation, strings.Join(keys, ", "))
	}
	return name, val, nil
}

func dispatchOrder(ctx context.Context, a *app, o core.Order, assumeYes bool, what string) error {
	if !confirm(assumeYes, fmt.Sprintf("%s with %d wallets at %s gwei, slippage %s%%.", what, len(o.Signers), core.FormatGwei(o.Policy.GasPrice), o.Policy.SlippagePct)) {
		return fmt.Errorf("%w: cancelled", core.ErrValidation)
	}
	sum, err := a.engine.Execute(ctx, o)
	if err != nil {
		return err
	}
	report(ctx, a, o.Action.String(), sum)
	return sum.Err()
}

func buyCmd(fs *flag.FlagSet) runFunc {
	tf := addTradeFlags(fs)
	funds := fs.String("funds", "", "total native to spend, split evenly across wallets")
	amount := fs.String("amount", "", "token amount each wallet buys")
	return func(ctx context.Context, a *app) error {
		o, err := tf.order(a, core.ActionBuy)
		if err != nil {
			return err
		}
		kind, val, err := oneOf(map[string]string{"funds": *funds, "amount": *amount})
		if err != nil {
			return err
		}
		if kind == "funds" {
			wei, err := core.ParseEther(val)
			if err != nil {
				return err
			}
			o.Amount = core.Funds(wei)
			return dispatchOrder(ctx, a, o, *tf.yes, "Buy "+core.FormatEther(wei)+" native total")
		}
		units, _, err := a.engine.TokenUnits(ctx, o.Token, val)
		if err != nil {
			return err
		}
		o.Amount = core.TokenAmount(units)
		return dispatchOrder(ctx, a, o, *tf.yes, "Buy "+val+" tokens each")
	}
}

func sellCmd(fs *flag.FlagSet) runFunc {
	tf := addTradeFlags(fs)
	percent := fs.String("percent", "", "percent of the wallets' total balance, 100 sells everything")
	amount := fs.String("amount", "", "token amount each wallet sells")
	custom := fs.String("custom", "", "total token amount, split across wallets")
	return func(ctx context.Context, a *app) error {
		o, err := tf.order(a, core.ActionSell)
		if err != nil {
			return err
		}
		kind, val, err := oneOf(map[string]string{"percent": *percent, "amount": *amount, "custom": *custom})
		if err != nil {
			return err
		}
		switch kind {
		case "percent":
			pct, err := decimal.NewFromString(val)
			if err != nil {
				return fmt.Errorf("%w: --percent=%q", core.ErrValidation, val)
			}
			o.Amount = core.Percentage(pct)
		default:
			units, _, err := a.engine.TokenUnits(ctx, o.Token, val)
			if err != nil {
				return err
			}
			o.Amount = core.TokenAmount(units)
			if kind == "custom" {
				o.Amount = core.Custom(units)
			}
		}
		return dispatchOrder(ctx, a, o, *tf.yes, "Sell "+val+" ("+kind+")")
	}
}

func createCmd(fs *flag.FlagSet) runFunc {
	createArg := fs.String("create-arg", "", "hex createArg from the launch API")
	signature := fs.String("signature", "", "hex signature from the launch API")
	value := fs.String("value", "0", "native sent with createToken (launch fee and initial buy)")
	buyEach := fs.String("buy-each", "", "after creation, each auxiliary wallet buys with this much native")
	assumeYes := fs.Bool("yes", false, "do not ask for confirmation")
	return func(ctx context.Context, a *app) error {
		p := core.Payload{CreateArg: common.FromHex(strings.TrimSpace(*createArg)), Signature: common.FromHex(strings.TrimSpace(*signature))}
		if len(p.CreateArg) == 0 || len(p.Signature) == 0 {
			return fmt.Errorf("%w: --create-arg and --signature are required", core.ErrValidation)
		}
		fee, err := core.ParseEther(*value)
		if err != nil {
			return err
		}
		policy, err := createPolicy(a.policies)
		if err != nil {
			return err
		}
		var each *big.Int
		if strings.TrimSpace(*buyEach) != "" {
			if each, err = core.ParseEther(*buyEach); err != nil {
				return err
			}
		}
		if !confirm(*assumeYes, fmt.Sprintf("Create token from %s with value %s.", a.fleet.Primary().Address.Hex(), core.FormatEther(fee))) {
			return fmt.Errorf("%w: cancelled", core.ErrValidation)
		}

		ev, rcpt, err := a.engine.Create(ctx, a.fleet.Primary(), p, fee, policy)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (%s) at %s, tx %s\n", ev.Name, ev.Symbol, ev.Token.Hex(), rcpt.TxHash.Hex())
		a.notify.Notify(ctx, fmt.Sprintf("created %s at %s", ev.Symbol, ev.Token.Hex()))
		if each == nil || each.Sign() == 0 {
			return nil
		}
		sum, err := a.engine.BuyEach(ctx, ev.Token, a.fleet.Auxiliary(), each, policy)
		if err != nil {
			return err
		}
		report(ctx, a, "create buy", sum)
		return sum.Err()
	}
}

// createPolicy is the fixed low-gas policy for the create leg and the bundle
// buy that follows it.
func createPolicy(t core.PolicyTable) (core.Policy, error) {
	return t.Select(core.ModeAutomated, nil, nil)
}

func snipeCmd(fs *flag.FlagSet) runFunc {
	symbol := fs.String("symbol", "", "token symbol to wait for (exact match)")
	funds := fs.String("funds", "", "native each auxiliary wallet spends on the match")
	return func(ctx context.Context, a *app) error {
		each, err := core.ParseEther(*funds)
		if err != nil {
			return err
		}
		managerV2, err := parseAddr("TOKEN_MANAGER_V2", a.st.ManagerV2)
		if err != nil {
			return err
		}
		logs, err := a.logSubscriber(ctx)
		if err != nil {
			return err
		}
		w := sniper.New(logs, a.engine, a.fleet, sniper.Config{
			Manager:          managerV2,
			Policy:           a.policies.Aggressive(),
			ResubscribeAfter: a.st.ResubscribeAfter,
		}, a.log, a.metrics, a.notify)
		if _, err := w.Arm(ctx, *symbol, each); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.Done():
		}
		w.Wait()
		return nil
	}
}

func volumeCmd(fs *flag.FlagSet) runFunc {
	token := fs.String("token", "", "token address")
	buy := fs.String("buy", "", "native the buyer spends per tick")
	sell := fs.String("sell", "", "token amount the seller sells per tick")
	interval := fs.Duration("interval", 30*time.Second, "time between ticks")
	return func(ctx context.Context, a *app) error {
		tok, err := parseAddr("--token", *token)
		if err != nil {
			return err
		}
		buyFunds, err := core.ParseEther(*buy)
		if err != nil {
			return err
		}
		sellAmount, _, err := a.engine.TokenUnits(ctx, tok, *sell)
		if err != nil {
			return err
		}
		policy, err := a.policies.Select(core.ModeAutomated, nil, nil)
		if err != nil {
			return err
		}
		s := volume.New(a.engine, a.fleet, policy, a.log, a.metrics, a.notify)
		if err := s.Start(ctx, volume.Job{Token: tok, BuyFunds: buyFunds, SellAmount: sellAmount, Interval: *interval}); err != nil {
			return err
		}
		<-ctx.Done()
		s.Stop()
		return nil
	}
}

func fundCmd(fs *flag.FlagSet) runFunc {
	amount := fs.String("amount", "", "native sent to each auxiliary wallet")
	assumeYes := fs.Bool("yes", false, "do not ask for confirmation")
	return func(ctx context.Context, a *app) error {
		each, err := core.ParseEther(*amount)
		if err != nil {
			return err
		}
		policy, err := a.policies.Select(core.ModeAutomated, nil, nil)
		if err != nil {
			return err
		}
		if !confirm(*assumeYes, fmt.Sprintf("Send %s native to each of %d wallets.", core.FormatEther(each), a.fleet.AuxCount())) {
			return fmt.Errorf("%w: cancelled", core.ErrValidation)
		}
		sum, err := a.engine.Fund(ctx, each, policy)
		if err != nil {
			return err
		}
		report(ctx, a, "fund", sum)
		return sum.Err()
	}
}

func refundCmd(fs *flag.FlagSet) runFunc {
	assumeYes := fs.Bool("yes", false, "do not ask for confirmation")
	return func(ctx context.Context, a *app) error {
		policy, err := a.policies.Select(core.ModeAutomated, nil, nil)
		if err != nil {
			return err
		}
		if !confirm(*assumeYes, fmt.Sprintf("Sweep %d wallets to %s.", a.fleet.AuxCount(), a.fleet.Primary().Address.Hex())) {
			return fmt.Errorf("%w: cancelled", core.ErrValidation)
		}
		sum, err := a.engine.Refund(ctx, policy)
		if errors.Is(err, core.ErrNoLegs) {
			fmt.Println("no auxiliary wallets")
			return nil
		}
		if err != nil {
			return err
		}
		report(ctx, a, "refund", sum)
		return sum.Err()
	}
}
