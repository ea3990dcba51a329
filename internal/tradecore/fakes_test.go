package tradecore

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/launch-bundler/internal/fleet"
)

var (
	testChainID  = big.NewInt(97)
	testHelper   = common.HexToAddress("0xF251F83e40a78868FcfA3FA4599Dad6494E46034")
	testManager1 = common.HexToAddress("0xEC4549caDcE5DA21Df6E6422d448034B5233bFbC")
	testManager2 = common.HexToAddress("0x5c952063c7fc8610FFDB798152D69F0B9550762b")
	testToken    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	createdToken = common.HexToAddress("0x00000000000000000000000000000000000000c7")
)

type helperInfo struct {
	version int64
	manager common.Address
	quote   common.Address
}

// fakeChain answers helper and ERC-20 reads from maps and records every
// transaction. Receipts are available immediately.
type fakeChain struct {
	mu sync.Mutex

	infos      map[common.Address]helperInfo
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	native     map[common.Address]*big.Int
	decimals   map[common.Address]uint8
	nonces     map[common.Address]uint64

	helperErr  error
	helperHits int
	sendErr    map[common.Address]error
	revertFrom map[common.Address]bool
	dropFrom   map[common.Address]bool

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		infos:      map[common.Address]helperInfo{},
		balances:   map[common.Address]map[common.Address]*big.Int{},
		allowances: map[common.Address]map[common.Address]*big.Int{},
		native:     map[common.Address]*big.Int{},
		decimals:   map[common.Address]uint8{},
		nonces:     map[common.Address]uint64{},
		sendErr:    map[common.Address]error{},
		revertFrom: map[common.Address]bool{},
		dropFrom:   map[common.Address]bool{},
		receipts:   map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeChain) setBalance(token, owner common.Address, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[token] == nil {
		f.balances[token] = map[common.Address]*big.Int{}
	}
	f.balances[token][owner] = big.NewInt(v)
}

func (f *fakeChain) setAllowance(token, owner common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowances[token] == nil {
		f.allowances[token] = map[common.Address]*big.Int{}
	}
	f.allowances[token][owner] = v
}

func lookup(m map[common.Address]map[common.Address]*big.Int, a, b common.Address) *big.Int {
	if v, ok := m[a][b]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	if *msg.To == testHelper {
		f.helperHits++
		if f.helperErr != nil {
			return nil, f.helperErr
		}
		m := helperABI.Methods["getTokenInfo"]
		args, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		info, ok := f.infos[args[0].(common.Address)]
		if !ok {
			info = helperInfo{}
		}
		z := big.NewInt(0)
		return m.Outputs.Pack(big.NewInt(info.version), info.manager, info.quote, z, z, z, z, z, z, z, z, false)
	}
	token := *msg.To
	m, err := erc20ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, errors.New("execution reverted")
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "balanceOf":
		return m.Outputs.Pack(lookup(f.balances, token, args[0].(common.Address)))
	case "allowance":
		return m.Outputs.Pack(lookup(f.allowances, token, args[0].(common.Address)))
	case "decimals":
		d, ok := f.decimals[token]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return m.Outputs.Pack(d)
	case "symbol":
		return m.Outputs.Pack("TKN")
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeChain) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.native[a]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) PendingNonceAt(_ context.Context, a common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[a], nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[from]; err != nil {
		return err
	}
	f.sent = append(f.sent, tx)
	if f.dropFrom[from] {
		// accepted by the node but never included
		return nil
	}
	if tx.Nonce() >= f.nonces[from] {
		f.nonces[from] = tx.Nonce() + 1
	}
	status := types.ReceiptStatusSuccessful
	if f.revertFrom[from] {
		status = types.ReceiptStatusFailed
	}
	rcpt := &types.Receipt{Status: status, TxHash: tx.Hash(), BlockNumber: big.NewInt(int64(len(f.sent)))}

	if name, args := decodeCall(tx.Data()); status == types.ReceiptStatusSuccessful {
		switch name {
		case "approve":
			if f.allowances[*tx.To()] == nil {
				f.allowances[*tx.To()] = map[common.Address]*big.Int{}
			}
			f.allowances[*tx.To()][from] = args[1].(*big.Int)
		case "createToken":
			data, _ := EncodeTokenCreate(TokenCreated{Creator: from, Token: createdToken, Name: "Test", Symbol: "TEST"})
			rcpt.Logs = []*types.Log{{Address: *tx.To(), Topics: []common.Hash{TokenCreateTopic}, Data: data}}
		}
	}
	f.receipts[tx.Hash()] = rcpt
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

type sentTx struct {
	from  common.Address
	to    common.Address
	value *big.Int
	nonce uint64
	gas   uint64
	price *big.Int
	name  string
	args  []any
}

func (f *fakeChain) sentTxs(t *testing.T) []sentTx {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentTx, 0, len(f.sent))
	for _, tx := range f.sent {
		from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
		require.NoError(t, err)
		name, args := decodeCall(tx.Data())
		out = append(out, sentTx{from: from, to: *tx.To(), value: tx.Value(), nonce: tx.Nonce(), gas: tx.Gas(), price: tx.GasPrice(), name: name, args: args})
	}
	return out
}

func decodeCall(data []byte) (string, []any) {
	if len(data) < 4 {
		return "", nil
	}
	for _, a := range []abi.ABI{managerV1ABI, managerV2ABI, erc20ABI} {
		m, err := a.MethodById(data[:4])
		if err != nil {
			continue
		}
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return m.Name, nil
		}
		return m.Name, args
	}
	return "unknown", nil
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSigners(t *testing.T, n int) []*fleet.Signer {
	t.Helper()
	s, err := fleet.Generate(n)
	require.NoError(t, err)
	return s
}

type harness struct {
	chain      *fakeChain
	reader     *Reader
	resolver   *Resolver
	submitter  *Submitter
	dispatcher *Dispatcher
	engine     *Engine
	fleet      *fleet.Fleet
	policy     Policy
}

func newHarness(t *testing.T, aux int) *harness {
	t.Helper()
	c := newFakeChain()
	c.infos[testToken] = helperInfo{version: 2, manager: testManager2}
	c.decimals[testToken] = 18
	log := quietLog()
	reader := NewReader(c, log, WithRetry(1, time.Millisecond))
	sub := NewSubmitter(c, reader, NewNonceTracker(c), SubmitterConfig{ChainID: testChainID, ReceiptPoll: time.Millisecond, ReceiptTimeout: time.Second}, log)
	disp := NewDispatcher(sub, log, nil)
	resolver := NewResolver(reader, testHelper)
	signers := newSigners(t, aux+1)
	fl := fleet.New(signers[0], signers[1:])
	pol, err := DefaultPolicyTable().Select(ModeAutomated, nil, nil)
	require.NoError(t, err)
	return &harness{
		chain: c, reader: reader, resolver: resolver, submitter: sub, dispatcher: disp,
		engine: NewEngine(fl, reader, resolver, disp, testManager2, log), fleet: fl, policy: pol,
	}
}
