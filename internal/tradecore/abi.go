package tradecore

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const erc20JSON = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const helperJSON = `[
 {"type":"function","name":"getTokenInfo","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[
  {"name":"version","type":"uint256"},{"name":"tokenManager","type":"address"},{"name":"quote","type":"address"},
  {"name":"lastPrice","type":"uint256"},{"name":"tradingFeeRate","type":"uint256"},{"name":"minTradingFee","type":"uint256"},
  {"name":"launchTime","type":"uint256"},{"name":"offers","type":"uint256"},{"name":"maxOffers","type":"uint256"},
  {"name":"funds","type":"uint256"},{"name":"maxFunds","type":"uint256"},{"name":"liquidityAdded","type":"bool"}]}
]`

const managerV1JSON = `[
 {"type":"function","name":"purchaseTokenAMAP","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"funds","type":"uint256"},{"name":"minAmount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"purchaseToken","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"maxFunds","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"saleToken","stateMutability":"nonpayable","inputs":[{"name":"tokenAddress","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const managerV2JSON = `[
 {"type":"function","name":"buyTokenAMAP","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"funds","type":"uint256"},{"name":"minAmount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"buyToken","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"maxFunds","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"sellToken","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"minFunds","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"createToken","stateMutability":"payable","inputs":[{"name":"args","type":"bytes"},{"name":"signature","type":"bytes"}],"outputs":[]},
 {"type":"event","name":"TokenCreate","anonymous":false,"inputs":[
  {"name":"creator","type":"address","indexed":false},{"name":"token","type":"address","indexed":false},
  {"name":"requestId","type":"uint256","indexed":false},{"name":"name","type":"string","indexed":false},
  {"name":"symbol","type":"string","indexed":false},{"name":"totalSupply","type":"uint256","indexed":false},
  {"name":"launchTime","type":"uint256","indexed":false},{"name":"launchFee","type":"uint256","indexed":false}]}
]`

var (
	erc20ABI     = mustABI(erc20JSON)
	helperABI    = mustABI(helperJSON)
	managerV1ABI = mustABI(managerV1JSON)
	managerV2ABI = mustABI(managerV2JSON)

	// TokenCreateTopic is topic0 of the V2 manager's creation event.
	TokenCreateTopic = gethcrypto.Keccak256Hash([]byte("TokenCreate(address,address,uint256,string,string,uint256,uint256,uint256)"))

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

// managerCalls encodes the version-specific trade entry points.
type managerCalls struct {
	buyFunds  func(token common.Address, funds *big.Int) ([]byte, error)
	buyAmount func(token common.Address, amount, maxFunds *big.Int) ([]byte, error)
	sell      func(token common.Address, amount *big.Int) ([]byte, error)
}

var callTable = map[Version]managerCalls{
	V1: {
		buyFunds: func(token common.Address, funds *big.Int) ([]byte, error) {
			return managerV1ABI.Pack("purchaseTokenAMAP", token, funds, big.NewInt(0))
		},
		buyAmount: func(token common.Address, amount, maxFunds *big.Int) ([]byte, error) {
			return managerV1ABI.Pack("purchaseToken", token, amount, maxFunds)
		},
		sell: func(token common.Address, amount *big.Int) ([]byte, error) {
			return managerV1ABI.Pack("saleToken", token, amount)
		},
	},
	V2: {
		buyFunds: func(token common.Address, funds *big.Int) ([]byte, error) {
			return managerV2ABI.Pack("buyTokenAMAP", token, funds, big.NewInt(0))
		},
		buyAmount: func(token common.Address, amount, maxFunds *big.Int) ([]byte, error) {
			return managerV2ABI.Pack("buyToken", token, amount, maxFunds)
		},
		sell: func(token common.Address, amount *big.Int) ([]byte, error) {
			return managerV2ABI.Pack("sellToken", token, amount, big.NewInt(0))
		},
	},
}

// TokenCreated is the decoded TokenCreate event.
type TokenCreated struct {
	Creator     common.Address
	Token       common.Address
	RequestId   *big.Int
	Name        string
	Symbol      string
	TotalSupply *big.Int
	LaunchTime  *big.Int
	LaunchFee   *big.Int
}

// DecodeTokenCreate decodes the non-indexed data of a TokenCreate log.
func DecodeTokenCreate(data []byte) (TokenCreated, error) {
	var ev TokenCreated
	err := managerV2ABI.UnpackIntoInterface(&ev, "TokenCreate", data)
	return ev, err
}

// EncodeTokenCreate is the inverse of DecodeTokenCreate; used by fakes and tooling.
func EncodeTokenCreate(ev TokenCreated) ([]byte, error) {
	zero := func(x *big.Int) *big.Int {
		if x == nil {
			return big.NewInt(0)
		}
		return x
	}
	return managerV2ABI.Events["TokenCreate"].Inputs.Pack(ev.Creator, ev.Token, zero(ev.RequestId), ev.Name, ev.Symbol,
		zero(ev.TotalSupply), zero(ev.LaunchTime), zero(ev.LaunchFee))
}
