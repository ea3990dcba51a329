package tradecore

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// batchNode serves eth_getBalance and balanceOf eth_call from maps and counts
// how many HTTP requests carried a JSON-RPC batch.
type batchNode struct {
	mu      sync.Mutex
	native  map[common.Address]*big.Int
	tokens  map[common.Address]*big.Int
	batches int
}

func (n *batchNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.batches++
		n.mu.Unlock()
		out := make([]rpcResponse, len(reqs))
		for i, req := range reqs {
			out[i] = n.answer(req)
		}
		_ = json.NewEncoder(w).Encode(out)
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(n.answer(req))
}

func (n *batchNode) answer(req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	n.mu.Lock()
	defer n.mu.Unlock()
	switch req.Method {
	case "eth_getBalance":
		var owner common.Address
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &owner) != nil {
			resp.Error = &rpcErrorBody{Code: -32602, Message: "bad owner"}
			return resp
		}
		resp.Result = (*hexutil.Big)(orZero(n.native[owner]))
	case "eth_call":
		var msg struct {
			Data  hexutil.Bytes `json:"data"`
			Input hexutil.Bytes `json:"input"`
		}
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &msg) != nil {
			resp.Error = &rpcErrorBody{Code: -32602, Message: "bad call"}
			return resp
		}
		data := msg.Input
		if len(data) == 0 {
			data = msg.Data
		}
		if len(data) < 4 {
			resp.Error = &rpcErrorBody{Code: 3, Message: "execution reverted"}
			return resp
		}
		args, err := erc20ABI.Methods["balanceOf"].Inputs.Unpack(data[4:])
		if err != nil {
			resp.Error = &rpcErrorBody{Code: 3, Message: "execution reverted"}
			return resp
		}
		ret, _ := erc20ABI.Methods["balanceOf"].Outputs.Pack(orZero(n.tokens[args[0].(common.Address)]))
		resp.Result = hexutil.Bytes(ret)
	default:
		resp.Error = &rpcErrorBody{Code: -32601, Message: "method not found"}
	}
	return resp
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func newBatchReader(t *testing.T, node *batchNode) *Reader {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	rc, err := rpc.DialHTTP(srv.URL)
	require.NoError(t, err)
	t.Cleanup(rc.Close)
	// the fallback chain must never be reached while the batch succeeds
	return NewReader(newFakeChain(), quietLog(), WithBatchClient(w3.NewClient(rc)), WithRetry(1, time.Millisecond))
}

func TestBatchedNativeBalancesKeepOwnerOrder(t *testing.T) {
	owners := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToAddress("0x03")}
	node := &batchNode{native: map[common.Address]*big.Int{
		owners[0]: big.NewInt(1e18),
		owners[2]: big.NewInt(42),
	}}
	r := newBatchReader(t, node)

	bals, err := r.NativeBalances(context.Background(), owners)
	require.NoError(t, err)
	require.Len(t, bals, 3)
	assert.Equal(t, "1000000000000000000", bals[0].String())
	assert.Equal(t, "0", bals[1].String())
	assert.Equal(t, "42", bals[2].String())
	assert.Equal(t, 1, node.batches)
}

func TestBatchedTokenBalancesKeepOwnerOrder(t *testing.T) {
	owners := []common.Address{common.HexToAddress("0x0a"), common.HexToAddress("0x0b")}
	node := &batchNode{tokens: map[common.Address]*big.Int{
		owners[0]: big.NewInt(7),
		owners[1]: big.NewInt(1_500_000),
	}}
	r := newBatchReader(t, node)

	bals, err := r.TokenBalances(context.Background(), testToken, owners)
	require.NoError(t, err)
	require.Len(t, bals, 2)
	assert.Equal(t, "7", bals[0].String())
	assert.Equal(t, "1500000", bals[1].String())
	assert.Equal(t, 1, node.batches)
}
