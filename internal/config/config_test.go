package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NETWORK", "")
	t.Setenv("GAS_LIMIT", "")
	st := Load()
	assert.Equal(t, "mainnet", st.Network)
	assert.Equal(t, st.MainnetRPCURL, st.RPCURL)
	assert.Equal(t, DefaultManagerV2, st.ManagerV2)
	assert.Equal(t, uint64(400_000), st.GasLimit)
	assert.Equal(t, "0.11", st.AutomatedGasGwei)
	assert.Equal(t, "1.5", st.AggressiveGasGwei)
	assert.Equal(t, "wallets.json", st.WalletsFile)
}

func TestLoadTestnetAndLowerCaseKeys(t *testing.T) {
	t.Setenv("network", "testnet")
	t.Setenv("bsc_testnet_rpc_url", "http://127.0.0.1:8545")
	t.Setenv("receipt_poll_ms", "250")
	t.Setenv("RPC_RATE_LIMIT", "12.5")
	t.Setenv("bsc_ws_url", "ws://127.0.0.1:8546")
	st := Load()
	assert.Equal(t, "testnet", st.Network)
	assert.Equal(t, "http://127.0.0.1:8545", st.RPCURL)
	assert.Equal(t, 250*time.Millisecond, st.ReceiptPoll)
	assert.Equal(t, 12.5, st.RPCRateLimit)
	assert.Equal(t, "ws://127.0.0.1:8546", st.WSURL)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("GAS_LIMIT", "lots")
	t.Setenv("TELEGRAM_CHAT_ID", "x")
	st := Load()
	assert.Equal(t, uint64(400_000), st.GasLimit)
	assert.Zero(t, st.TelegramChatID)
}
