package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"web3-orchestrator/internal/core/ports/mocks"
	"web3-orchestrator/pkg/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupVerifier(t *testing.T, confirmations uint64) (*EVMSettlementVerifier, *mocks.MockEVMClient) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockEVMClient(ctrl)
	return NewEVMSettlementVerifier(client, sepolia, confirmations, time.Millisecond, 50*time.Millisecond, newTestLogger()), client
}

func transferLog(token, from, to common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			contracts.TransferEventID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(amount.Bytes(), 32),
	}
}

func minedReceipt(status uint64, block int64, logs ...*types.Log) *types.Receipt {
	return &types.Receipt{
		Status:      status,
		TxHash:      testTxRef,
		BlockNumber: big.NewInt(block),
		Logs:        logs,
	}
}

func TestEVMSettlementVerifier_Verify(t *testing.T) {
	inv := unpaidInvoice()
	receiver := inv.Receiver()
	other := common.HexToAddress("0x00000000000000000000000000000000000000c0")

	tests := []struct {
		name       string
		receipt    *types.Receipt
		wantOK     bool
		wantReason string
	}{
		{
			name:    "exact transfer",
			receipt: minedReceipt(types.ReceiptStatusSuccessful, 10, transferLog(testUSDT.Address, testWallet, receiver, big.NewInt(20_000_000))),
			wantOK:  true,
		},
		{
			name: "matching log among others",
			receipt: minedReceipt(types.ReceiptStatusSuccessful, 10,
				&types.Log{Address: testUSDT.Address},
				transferLog(testWETH.Address, testWallet, receiver, big.NewInt(20_000_000)),
				transferLog(testUSDT.Address, testWallet, receiver, big.NewInt(20_000_000)),
			),
			wantOK: true,
		},
		{
			name:       "short payment",
			receipt:    minedReceipt(types.ReceiptStatusSuccessful, 10, transferLog(testUSDT.Address, testWallet, receiver, big.NewInt(19_999_999))),
			wantReason: ReasonAmountMismatch,
		},
		{
			name:       "wrong receiver",
			receipt:    minedReceipt(types.ReceiptStatusSuccessful, 10, transferLog(testUSDT.Address, testWallet, other, big.NewInt(20_000_000))),
			wantReason: ReasonNoTransfer,
		},
		{
			name:       "wrong token",
			receipt:    minedReceipt(types.ReceiptStatusSuccessful, 10, transferLog(testWETH.Address, testWallet, receiver, big.NewInt(20_000_000))),
			wantReason: ReasonNoTransfer,
		},
		{
			name:       "reverted",
			receipt:    minedReceipt(types.ReceiptStatusFailed, 10),
			wantReason: ReasonReverted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, client := setupVerifier(t, 1)
			client.EXPECT().TransactionReceipt(gomock.Any(), testTxRef).Return(tt.receipt, nil)

			verdict, err := v.Verify(context.Background(), inv, testTxRef.Hex())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, verdict.OK)
			assert.Equal(t, tt.wantReason, verdict.Reason)
		})
	}
}

func TestEVMSettlementVerifier_Verify_RejectsBeforeRPC(t *testing.T) {
	v, _ := setupVerifier(t, 1)

	wrongChain := unpaidInvoice()
	wrongChain.ChainID = 1
	verdict, err := v.Verify(context.Background(), wrongChain, testTxRef.Hex())
	require.NoError(t, err)
	assert.Equal(t, ReasonWrongChain, verdict.Reason)

	broken := unpaidInvoice()
	broken.AmountUnits = "twenty"
	verdict, err = v.Verify(context.Background(), broken, testTxRef.Hex())
	require.NoError(t, err)
	assert.Equal(t, ReasonBadInvoice, verdict.Reason)
}

func TestEVMSettlementVerifier_Verify_WaitsForMining(t *testing.T) {
	v, client := setupVerifier(t, 1)
	inv := unpaidInvoice()

	gomock.InOrder(
		client.EXPECT().TransactionReceipt(gomock.Any(), testTxRef).Return(nil, ethereum.NotFound).Times(2),
		client.EXPECT().TransactionReceipt(gomock.Any(), testTxRef).
			Return(minedReceipt(types.ReceiptStatusSuccessful, 10, transferLog(testUSDT.Address, testWallet, inv.Receiver(), big.NewInt(20_000_000))), nil),
	)

	verdict, err := v.Verify(context.Background(), inv, testTxRef.Hex())
	require.NoError(t, err)
	assert.True(t, verdict.OK)
}

func TestEVMSettlementVerifier_Verify_WaitsForConfirmations(t *testing.T) {
	v, client := setupVerifier(t, 3)
	inv := unpaidInvoice()
	receipt := minedReceipt(types.ReceiptStatusSuccessful, 100, transferLog(testUSDT.Address, testWallet, inv.Receiver(), big.NewInt(20_000_000)))

	client.EXPECT().TransactionReceipt(gomock.Any(), testTxRef).Return(receipt, nil).Times(2)
	gomock.InOrder(
		client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&types.Header{Number: big.NewInt(101)}, nil),
		client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&types.Header{Number: big.NewInt(102)}, nil),
	)

	verdict, err := v.Verify(context.Background(), inv, testTxRef.Hex())
	require.NoError(t, err)
	assert.True(t, verdict.OK)
}

func TestEVMSettlementVerifier_Verify_PendingIsAnError(t *testing.T) {
	v, client := setupVerifier(t, 1)
	client.EXPECT().TransactionReceipt(gomock.Any(), testTxRef).Return(nil, ethereum.NotFound).AnyTimes()

	verdict, err := v.Verify(context.Background(), unpaidInvoice(), testTxRef.Hex())
	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, ErrTxPending)
}

func TestEVMSettlementVerifier_Verify_RPCError(t *testing.T) {
	v, client := setupVerifier(t, 1)
	client.EXPECT().TransactionReceipt(gomock.Any(), testTxRef).Return(nil, errors.New("503 service unavailable"))

	verdict, err := v.Verify(context.Background(), unpaidInvoice(), testTxRef.Hex())
	assert.Nil(t, verdict)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

