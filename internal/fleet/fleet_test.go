package fleet

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignerFromHex(t *testing.T) {
	s, err := SignerFromHex(testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), s.Address)

	_, err = SignerFromHex("  ")
	assert.Error(t, err)
	_, err = SignerFromHex("0xzz")
	assert.Error(t, err)
}

func TestSignTxRecoversSender(t *testing.T) {
	s, err := SignerFromHex(testKey)
	require.NoError(t, err)
	chainID := big.NewInt(56)
	to := common.HexToAddress("0x01")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address, from)
}

func TestFleetAppendSkipsDuplicates(t *testing.T) {
	primary, err := SignerFromHex(testKey)
	require.NoError(t, err)
	gen, err := Generate(3)
	require.NoError(t, err)

	f := New(primary, gen[:1])
	assert.Equal(t, 2, f.Append(gen...))
	assert.Equal(t, 0, f.Append(primary))
	assert.Equal(t, 3, f.AuxCount())

	all := f.All()
	require.Len(t, all, 4)
	assert.Equal(t, primary.Address, all[0].Address)

	snap := f.Auxiliary()
	snap[0] = nil
	assert.NotNil(t, f.Auxiliary()[0])
}

func TestFleetSelect(t *testing.T) {
	gen, err := Generate(2)
	require.NoError(t, err)
	f := New(gen[0], gen[1:])

	main, err := f.Select("main")
	require.NoError(t, err)
	assert.Len(t, main, 1)
	multi, err := f.Select("multi")
	require.NoError(t, err)
	assert.Len(t, multi, 1)
	all, err := f.Select("ALL")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	_, err = f.Select("some")
	assert.Error(t, err)

	_, err = New(nil, nil).Select("main")
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	gen, err := Generate(3)
	require.NoError(t, err)
	require.NoError(t, SaveFile(path, gen))

	got, err = LoadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range gen {
		assert.Equal(t, gen[i].Address, got[i].Address)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadFileRejectsMismatchedAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	body := `[{"address":"0x0000000000000000000000000000000000000001","privateKey":"` + testKey + `"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "does not match key")
}

func TestGenerateRejectsNonPositive(t *testing.T) {
	_, err := Generate(0)
	assert.Error(t, err)
}
