package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Default contract addresses on BSC mainnet.
const (
	DefaultManagerV1 = "0xEC4549caDcE5DA21Df6E6422d448034B5233bFbC"
	DefaultManagerV2 = "0x5c952063c7fc8610FFDB798152D69F0B9550762b"
	DefaultHelper    = "0xF251F83e40a78868FcfA3FA4599Dad6494E46034"
)

// Settings keeps all configuration options.
// Keys are accepted in UPPER_CASE and lower_case.
type Settings struct {
	Network        string // "mainnet" or "testnet"
	RPCURL         string // resolved for Network
	MainnetRPCURL  string
	TestnetRPCURL  string
	WSURL          string // log subscriptions for the sniper; RPCURL when empty
	ChainID        string // optional; queried from the node when empty
	MainPrivateKey string
	WalletsFile    string

	ManagerV1 string
	ManagerV2 string
	Helper    string

	AutomatedGasGwei  string
	AggressiveGasGwei string
	MinGasGwei        string
	MaxGasGwei        string
	GasLimit          uint64
	DefaultSlippage   string
	SniperSlippage    string
	MaxFundsCeiling   string // native units, buy-by-amount spend cap

	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
	RPCRateLimit   float64 // reads per second; 0 = unlimited
	RPCTimeout     time.Duration
	ResubscribeAfter time.Duration

	LogLevel       string
	MetricsAddr    string
	TelegramToken  string
	TelegramChatID int64
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" { return v }
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil { return n }
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil { return n }
		return def
	}
	getFloat := func(keys []string, def float64) float64 {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil { return n }
		return def
	}
	getMillis := func(keys []string, def time.Duration) time.Duration {
		ms := getInt64(keys, -1)
		if ms < 0 { return def }
		return time.Duration(ms) * time.Millisecond
	}

	st := Settings{}
	st.Network       = strings.ToLower(get([]string{"network", "NETWORK"}, "mainnet"))
	st.MainnetRPCURL = get([]string{"bsc_rpc_url", "BSC_RPC_URL", "rpc_url", "RPC_URL"}, "https://bsc-dataseed.binance.org")
	st.TestnetRPCURL = get([]string{"bsc_testnet_rpc_url", "BSC_TESTNET_RPC_URL"}, "https://data-seed-prebsc-1-s1.binance.org:8545")
	st.RPCURL        = st.MainnetRPCURL
	if st.Network == "testnet" { st.RPCURL = st.TestnetRPCURL }
	st.WSURL          = get([]string{"bsc_ws_url", "BSC_WS_URL", "ws_url", "WS_URL"}, "")
	st.ChainID        = get([]string{"chain_id", "CHAIN_ID"}, "")
	st.MainPrivateKey = get([]string{"main_wallet_private_key", "MAIN_WALLET_PRIVATE_KEY"}, "")
	st.WalletsFile    = get([]string{"wallets_file", "WALLETS_FILE"}, "wallets.json")

	st.ManagerV1 = get([]string{"token_manager_v1", "TOKEN_MANAGER_V1"}, DefaultManagerV1)
	st.ManagerV2 = get([]string{"token_manager_v2", "TOKEN_MANAGER_V2"}, DefaultManagerV2)
	st.Helper    = get([]string{"token_manager_helper", "TOKEN_MANAGER_HELPER"}, DefaultHelper)

	st.AutomatedGasGwei  = get([]string{"automated_gas_gwei", "AUTOMATED_GAS_GWEI"}, "0.11")
	st.AggressiveGasGwei = get([]string{"aggressive_gas_gwei", "AGGRESSIVE_GAS_GWEI"}, "1.5")
	st.MinGasGwei        = get([]string{"min_gas_gwei", "MIN_GAS_GWEI"}, "0.05")
	st.MaxGasGwei        = get([]string{"max_gas_gwei", "MAX_GAS_GWEI"}, "100")
	st.GasLimit          = uint64(getInt64([]string{"gas_limit", "GAS_LIMIT"}, 400_000))
	st.DefaultSlippage   = get([]string{"slippage_pct", "SLIPPAGE_PCT"}, "1")
	st.SniperSlippage    = get([]string{"sniper_slippage_pct", "SNIPER_SLIPPAGE_PCT"}, "1")
	st.MaxFundsCeiling   = get([]string{"max_funds_ceiling", "MAX_FUNDS_CEILING"}, "1000")

	st.ReceiptPoll      = getMillis([]string{"receipt_poll_ms", "RECEIPT_POLL_MS"}, 1500*time.Millisecond)
	st.ReceiptTimeout   = time.Duration(getInt([]string{"receipt_timeout_sec", "RECEIPT_TIMEOUT_SEC"}, 180)) * time.Second
	st.RPCRateLimit     = getFloat([]string{"rpc_rate_limit", "RPC_RATE_LIMIT"}, 0)
	st.RPCTimeout       = time.Duration(getInt([]string{"rpc_timeout_sec", "RPC_TIMEOUT_SEC"}, 20)) * time.Second
	st.ResubscribeAfter = getMillis([]string{"resubscribe_ms", "RESUBSCRIBE_MS"}, 3*time.Second)

	st.LogLevel       = get([]string{"log_level", "LOG_LEVEL"}, "info")
	st.MetricsAddr    = get([]string{"metrics_addr", "METRICS_ADDR"}, "")
	st.TelegramToken  = get([]string{"telegram_bot_token", "TELEGRAM_BOT_TOKEN"}, "")
	st.TelegramChatID = getInt64([]string{"telegram_chat_id", "TELEGRAM_CHAT_ID"}, 0)

	return st
}
