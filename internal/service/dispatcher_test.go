package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/core/ports/mocks"
	"web3-orchestrator/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type dispatcherDeps struct {
	gateway *mocks.MockContractGateway
	session *mocks.MockWalletSession
	tracker *Tracker
	catalog *ActionCatalog
}

func setupDispatcher(t *testing.T, connected bool, receiptTimeout time.Duration) (*Dispatcher, dispatcherDeps) {
	ctrl := gomock.NewController(t)
	d := dispatcherDeps{
		gateway: mocks.NewMockContractGateway(ctrl),
		session: mocks.NewMockWalletSession(ctrl),
	}
	d.session.EXPECT().Account().Return(testWallet, connected).AnyTimes()
	d.tracker = NewTracker(d.gateway, receiptTimeout, nil, newTestLogger())
	d.catalog = NewActionCatalog(d.gateway, ContractSet{
		Engine:     testEngine,
		Collateral: testWETH,
		Stable:     testTSC,
		NFT:        testNFT,
	})
	return NewDispatcher(d.gateway, d.session, d.tracker, nil, newTestLogger()), d
}

var testTxRef = common.HexToHash("0x5e1d3a76fbf824220eafc8c2a8a3f1b0d4c6e8f90123456789abcdef01234567")

func TestDispatcher_Submit_NotConnectedNeverWrites(t *testing.T) {
	disp, d := setupDispatcher(t, false, time.Second)

	action, err := disp.Submit(context.Background(), d.catalog.Transfer(testUSDT, testWallet, "5"))

	assert.Nil(t, action)
	assertAppError(t, err, "VAL_001")
	assert.Equal(t, apperror.CategoryValidation, apperror.Kind(err))
	assert.Nil(t, disp.Current())
}

func TestDispatcher_Submit_NotConnectedWinsOverBadAmount(t *testing.T) {
	disp, d := setupDispatcher(t, false, time.Second)

	_, err := disp.Submit(context.Background(), d.catalog.Mint(""))
	assertAppError(t, err, "VAL_001")
}

func TestDispatcher_Submit_InvalidAmountNeverWrites(t *testing.T) {
	for _, raw := range []string{"", "0", "0.000", "abc", ".", "0.0000001"} {
		t.Run(raw, func(t *testing.T) {
			disp, d := setupDispatcher(t, true, time.Second)

			action, err := disp.Submit(context.Background(), d.catalog.Transfer(testUSDT, testWallet, raw))

			assert.Nil(t, action)
			assertAppError(t, err, "VAL_002")
			assert.Nil(t, disp.Current())
		})
	}
}

func TestDispatcher_Submit_ConfirmsAndRunsHooks(t *testing.T) {
	disp, d := setupDispatcher(t, true, time.Second)

	var hooked []domain.PendingAction
	var mu sync.Mutex
	d.tracker.OnConfirmed(func(_ context.Context, a domain.PendingAction) {
		mu.Lock()
		hooked = append(hooked, a)
		mu.Unlock()
	})

	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	d.gateway.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, call ports.ContractCall) (common.Hash, error) {
		assert.Equal(t, testUSDT.Address, call.Contract)
		assert.Equal(t, "transfer", call.Method)
		assert.Equal(t, []any{to, big.NewInt(1_234_500_000)}, call.Args)
		return testTxRef, nil
	})
	d.gateway.EXPECT().WaitForReceipt(gomock.Any(), testTxRef).Return(&ports.Receipt{TxRef: testTxRef, Success: true}, nil)

	action, err := disp.Submit(context.Background(), d.catalog.Transfer(testUSDT, to, "1,234.5"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAwaitingConfirmation, action.State)
	assert.Equal(t, testTxRef, *action.TxRef)
	assert.Equal(t, big.NewInt(1_234_500_000), action.Amounts[AmountPrimary])

	final, err := disp.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionConfirmed, final.State)
	assert.NotNil(t, final.SettledAt)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hooked, 1)
	assert.Equal(t, action.ID, hooked[0].ID)
}

func TestDispatcher_ReturnedActionsAreIsolated(t *testing.T) {
	disp, d := setupDispatcher(t, true, time.Second)

	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	d.gateway.EXPECT().Write(gomock.Any(), gomock.Any()).Return(testTxRef, nil)
	d.gateway.EXPECT().WaitForReceipt(gomock.Any(), testTxRef).Return(&ports.Receipt{TxRef: testTxRef, Success: true}, nil)

	action, err := disp.Submit(context.Background(), d.catalog.Transfer(testUSDT, to, "2"))
	require.NoError(t, err)

	action.Amounts[AmountPrimary].SetInt64(1)
	delete(action.Amounts, AmountPrimary)
	*action.TxRef = common.Hash{}
	*action.Counterparty = common.Address{}

	current := disp.Current()
	require.NotNil(t, current)
	assert.Equal(t, big.NewInt(2_000_000), current.Amounts[AmountPrimary])
	assert.Equal(t, testTxRef, *current.TxRef)
	assert.Equal(t, to, *current.Counterparty)

	current.Amounts[AmountPrimary].SetInt64(7)
	*current.TxRef = common.Hash{}

	final, err := disp.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionConfirmed, final.State)
	assert.Equal(t, big.NewInt(2_000_000), final.Amounts[AmountPrimary])
	assert.Equal(t, testTxRef, *final.TxRef)
}

func TestDispatcher_Submit_BusyWhileAwaiting(t *testing.T) {
	disp, d := setupDispatcher(t, true, time.Second)

	release := make(chan struct{})
	d.gateway.EXPECT().Write(gomock.Any(), gomock.Any()).Return(testTxRef, nil).Times(1)
	d.gateway.EXPECT().WaitForReceipt(gomock.Any(), testTxRef).DoAndReturn(func(context.Context, common.Hash) (*ports.Receipt, error) {
		<-release
		return &ports.Receipt{TxRef: testTxRef, Success: true}, nil
	})

	_, err := disp.Submit(context.Background(), d.catalog.Mint("10"))
	require.NoError(t, err)

	second, err := disp.Submit(context.Background(), d.catalog.Mint("10"))
	assert.Nil(t, second)
	assertAppError(t, err, "VAL_004")

	close(release)
	final, err := disp.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionConfirmed, final.State)
}

func TestDispatcher_Submit_WalletRejectionKeepsMessage(t *testing.T) {
	disp, d := setupDispatcher(t, true, time.Second)

	d.gateway.EXPECT().Write(gomock.Any(), gomock.Any()).
		Return(common.Hash{}, apperror.ErrWalletRejected(errors.New("User rejected the request.")))

	action, err := disp.Submit(context.Background(), d.catalog.Repay("1"))

	assertAppError(t, err, "WAL_001")
	require.NotNil(t, action)
	assert.Equal(t, domain.ActionFailed, action.State)
	assert.Equal(t, "User rejected the request.", action.FailureReason)
	assert.Nil(t, action.TxRef)

	final, err := disp.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFailed, final.State)

	// A failed action no longer blocks, and retry is a fresh submit.
	d.gateway.EXPECT().Write(gomock.Any(), gomock.Any()).Return(testTxRef, nil)
	d.gateway.EXPECT().WaitForReceipt(gomock.Any(), testTxRef).Return(&ports.Receipt{Success: true}, nil)
	retry, err := disp.Submit(context.Background(), d.catalog.Repay("1"))
	require.NoError(t, err)
	assert.NotEqual(t, action.ID, retry.ID)
	_, _ = disp.Await(context.Background())
}

func TestDispatcher_Track_Failures(t *testing.T) {
	tests := []struct {
		name     string
		wait     func(ctx context.Context, _ common.Hash) (*ports.Receipt, error)
		wantCode string
	}{
		{
			name: "reverted",
			wait: func(context.Context, common.Hash) (*ports.Receipt, error) {
				return &ports.Receipt{TxRef: testTxRef, Success: false}, nil
			},
			wantCode: "NET_003",
		},
		{
			name: "receipt timeout",
			wait: func(ctx context.Context, _ common.Hash) (*ports.Receipt, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantCode: "NET_004",
		},
		{
			name: "provider error",
			wait: func(context.Context, common.Hash) (*ports.Receipt, error) {
				return nil, errors.New("connection reset")
			},
			wantCode: "NET_002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp, d := setupDispatcher(t, true, 20*time.Millisecond)
			d.tracker.OnConfirmed(func(context.Context, domain.PendingAction) {
				t.Error("confirm hook must not run")
			})
			d.gateway.EXPECT().Write(gomock.Any(), gomock.Any()).Return(testTxRef, nil)
			d.gateway.EXPECT().WaitForReceipt(gomock.Any(), testTxRef).DoAndReturn(tt.wait)

			_, err := disp.Submit(context.Background(), d.catalog.Redeem("0.5"))
			require.NoError(t, err)

			final, err := disp.Await(context.Background())
			require.NoError(t, err)
			assert.Equal(t, domain.ActionFailed, final.State)
			assertAppError(t, final.Err, tt.wantCode)
			assert.NotEmpty(t, final.FailureReason)
			assert.Equal(t, testTxRef, *final.TxRef)
		})
	}
}

func TestDispatcher_Track_IgnoresCallerCancellation(t *testing.T) {
	disp, d := setupDispatcher(t, true, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.gateway.EXPECT().Write(gomock.Any(), gomock.Any()).Return(testTxRef, nil)
	d.gateway.EXPECT().WaitForReceipt(gomock.Any(), testTxRef).DoAndReturn(func(wctx context.Context, _ common.Hash) (*ports.Receipt, error) {
		cancel()
		time.Sleep(5 * time.Millisecond)
		assert.NoError(t, wctx.Err())
		return &ports.Receipt{Success: true}, nil
	})

	_, err := disp.Submit(ctx, d.catalog.Mint("1"))
	require.NoError(t, err)

	final, err := disp.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionConfirmed, final.State)
}

func TestDispatcher_Await_NothingSubmitted(t *testing.T) {
	disp, _ := setupDispatcher(t, true, time.Second)

	a, err := disp.Await(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, a)
}
