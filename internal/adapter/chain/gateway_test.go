package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu sync.Mutex

	callOut      []byte
	callErr      error
	lastCall     ethereum.CallMsg
	estimateErr  error
	sendErr      error
	sent         []*types.Transaction
	receipt      *types.Receipt
	receiptErr   error
	pendingPolls int
	balance      *big.Int
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = msg
	return f.callOut, f.callErr
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 65000, f.estimateErr
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingPolls > 0 {
		f.pendingPolls--
		return nil, ethereum.NotFound
	}
	return f.receipt, f.receiptErr
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func newTestSession(t *testing.T, backend *fakeBackend) (*KeySession, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	dial := func(context.Context, string) (Backend, error) { return backend, nil }
	return NewKeySession(key, 11155111, map[int64]string{11155111: "http://sepolia"}, dial), key
}

func packUint(t *testing.T, v *big.Int) []byte {
	t.Helper()
	out, err := abi.Arguments{{Type: mustType(t, "uint256")}}.Pack(v)
	require.NoError(t, err)
	return out
}

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	require.NoError(t, err)
	return typ
}

func TestGateway_Read_UnpacksOutputs(t *testing.T) {
	backend := &fakeBackend{callOut: packUint(t, big.NewInt(42_000_000))}
	session, key := newTestSession(t, backend)
	require.NoError(t, session.Connect())
	gw := NewGateway(session, time.Millisecond, zerolog.Nop())

	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	owner := crypto.PubkeyToAddress(key.PublicKey)
	out, err := gw.Read(context.Background(), ports.ContractCall{
		Contract: token, ABI: contracts.ERC20, Method: "balanceOf", Args: []any{owner},
	})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, big.NewInt(42_000_000), out[0])
	assert.Equal(t, token, *backend.lastCall.To)
	assert.Equal(t, owner, backend.lastCall.From)
}

func TestGateway_Read_PropagatesCallError(t *testing.T) {
	backend := &fakeBackend{callErr: errors.New("execution reverted")}
	session, _ := newTestSession(t, backend)
	gw := NewGateway(session, time.Millisecond, zerolog.Nop())

	_, err := gw.Read(context.Background(), ports.ContractCall{
		Contract: common.Address{1}, ABI: contracts.ERC20, Method: "decimals",
	})
	assert.ErrorContains(t, err, "execution reverted")
}

func TestGateway_Write_SignsAndBroadcasts(t *testing.T) {
	backend := &fakeBackend{}
	session, key := newTestSession(t, backend)
	require.NoError(t, session.Connect())
	gw := NewGateway(session, time.Millisecond, zerolog.Nop())

	weth := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	value := big.NewInt(50_000_000_000_000)
	hash, err := gw.Write(context.Background(), ports.ContractCall{
		Contract: weth, ABI: contracts.WETH, Method: "deposit", Value: value,
	})

	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, value, tx.Value())
	assert.Equal(t, weth, *tx.To())
	assert.Equal(t, big.NewInt(21_000_000_000), tx.GasFeeCap())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
}

func TestGateway_Write_NotConnected(t *testing.T) {
	backend := &fakeBackend{}
	session, _ := newTestSession(t, backend)
	gw := NewGateway(session, time.Millisecond, zerolog.Nop())

	_, err := gw.Write(context.Background(), ports.ContractCall{
		Contract: common.Address{1}, ABI: contracts.WETH, Method: "deposit",
	})
	assert.True(t, errors.Is(err, apperror.ErrNotConnected()))
	assert.Empty(t, backend.sent)
}

func TestGateway_Write_FailureKinds(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
	}{
		{"estimate reverted", &fakeBackend{estimateErr: errors.New("execution reverted: insufficient allowance")}},
		{"send rejected", &fakeBackend{sendErr: errors.New("nonce too low")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, _ := newTestSession(t, tt.backend)
			require.NoError(t, session.Connect())
			gw := NewGateway(session, time.Millisecond, zerolog.Nop())

			_, err := gw.Write(context.Background(), ports.ContractCall{
				Contract: common.Address{1}, ABI: contracts.WETH, Method: "deposit",
			})
			assert.True(t, errors.Is(err, apperror.ErrWriteFailed(nil)))
			assert.Empty(t, tt.backend.sent)
		})
	}
}

func TestGateway_WaitForReceipt_PollsUntilMined(t *testing.T) {
	backend := &fakeBackend{
		pendingPolls: 2,
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(101),
		},
	}
	session, _ := newTestSession(t, backend)
	gw := NewGateway(session, time.Millisecond, zerolog.Nop())

	ref := common.HexToHash("0x01")
	r, err := gw.WaitForReceipt(context.Background(), ref)

	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(101), r.BlockNumber)
	assert.Equal(t, ref, r.TxRef)
	assert.Zero(t, backend.pendingPolls)
}

func TestGateway_WaitForReceipt_Reverted(t *testing.T) {
	backend := &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5)}}
	session, _ := newTestSession(t, backend)
	gw := NewGateway(session, time.Millisecond, zerolog.Nop())

	r, err := gw.WaitForReceipt(context.Background(), common.Hash{})
	require.NoError(t, err)
	assert.False(t, r.Success)
}

func TestGateway_WaitForReceipt_ContextDone(t *testing.T) {
	backend := &fakeBackend{pendingPolls: 1 << 30}
	session, _ := newTestSession(t, backend)
	gw := NewGateway(session, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gw.WaitForReceipt(ctx, common.Hash{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateway_NativeBalance(t *testing.T) {
	backend := &fakeBackend{balance: big.NewInt(99)}
	session, _ := newTestSession(t, backend)
	gw := NewGateway(session, 0, zerolog.Nop())

	bal, err := gw.NativeBalance(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(99), bal)
}
