package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"provenance/internal/ledger/payment"
	"provenance/internal/ledger/payment/mocks"
	"provenance/internal/ledger/store"
	id "provenance/pkg/domain"
	dErrors "provenance/pkg/domain-errors"
	"provenance/pkg/requestcontext"
)

// seedListing lists lot 0 of batch 0 (size 4, price 3) on a service whose
// payments go to authority.
func seedListing(t *testing.T, st store.Store, authority payment.Authority) *Service {
	t.Helper()
	ctx := context.Background()
	svc, err := New(st, authority, escrow, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	b, err := svc.CreateBatch(ctx, manufacturer, CreateBatchCommand{Size: 4, ManufacturingDate: "2022-03-01"})
	require.NoError(t, err)
	lot, err := svc.CreateLot(ctx, manufacturer, b.ID, 4)
	require.NoError(t, err)
	_, err = svc.ApproveTransfer(ctx, manufacturer, id.LotAsset(lot.ID), escrow)
	require.NoError(t, err)
	_, err = svc.CreateLotListing(ctx, manufacturer, b.ID, lot.ID, 3)
	require.NoError(t, err)
	return svc
}

func TestPurchase_PaymentAuthority(t *testing.T) {
	t.Run("transfer carries payer payee amount and a stable reference", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		authority := mocks.NewMockAuthority(ctrl)
		svc := seedListing(t, store.NewInMemory(), authority)

		authority.EXPECT().
			Transfer(gomock.Any(), payment.Transfer{
				Reference: "lot-listing:0:0xbuyer",
				Payer:     buyer,
				Payee:     manufacturer,
				Amount:    15,
			}).
			Return(payment.Receipt{ID: "r-1"}, nil)

		listing, err := svc.PurchaseLot(context.Background(), buyer, 0, 15)
		require.NoError(t, err)
		assert.True(t, listing.Fulfilled)
	})

	t.Run("refused transfer aborts the purchase without a reversal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		authority := mocks.NewMockAuthority(ctrl)
		st := store.NewInMemory()
		svc := seedListing(t, st, authority)

		authority.EXPECT().
			Transfer(gomock.Any(), gomock.Any()).
			Return(payment.Receipt{}, dErrors.New(dErrors.CodeInsufficientPayment, "payer balance too low"))

		_, err := svc.PurchaseLot(context.Background(), buyer, 0, 12)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
		assert.Equal(t, escrow, st.Snapshot().Lots[0].Owner)
		assert.False(t, st.Snapshot().LotListings[0].Fulfilled)
	})

	t.Run("timed out transfer surfaces as operation failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		authority := mocks.NewMockAuthority(ctrl)
		svc := seedListing(t, store.NewInMemory(), authority)

		authority.EXPECT().
			Transfer(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ payment.Transfer) (payment.Receipt, error) {
				<-ctx.Done()
				return payment.Receipt{}, dErrors.Wrap(ctx.Err(), dErrors.CodeOperationFailed, "payment authority timed out")
			})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := svc.PurchaseLot(ctx, buyer, 0, 12)
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeOperationFailed, dErrors.CodeOf(err))
	})

	t.Run("commit failure reverses the settled transfer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		authority := mocks.NewMockAuthority(ctrl)
		inner := store.NewInMemory()
		seedListing(t, inner, authority)
		svc, err := New(failingCommitStore{inner}, authority, escrow, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		require.NoError(t, err)

		receipt := payment.Receipt{ID: "r-2"}
		gomock.InOrder(
			authority.EXPECT().Transfer(gomock.Any(), gomock.Any()).Return(receipt, nil),
			authority.EXPECT().Reverse(gomock.Any(), receipt).Return(nil),
		)

		ctx := requestcontext.WithRequestID(context.Background(), "req-7")
		_, err = svc.PurchaseLot(ctx, buyer, 0, 12)
		require.ErrorIs(t, err, errCommit)
	})
}
