package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/eegluit-cloud/neonplay-paygate/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func TestLedger_Initiate(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("creates pending deposit order", func(t *testing.T) {
		var created *models.Order
		ledger := NewLedger(&storage.MockTx{}, &storage.MockOrderStorage{
			CreateFunc: func(ctx context.Context, order *models.Order) error {
				created = order
				return nil
			},
		}, &storage.MockWalletStorage{})

		order, err := ledger.Initiate(ctx, userID, decimal.RequireFromString("100"), "usdt", "TRC20")
		if err != nil {
			t.Fatalf("Initiate() error = %v", err)
		}
		if created == nil {
			t.Fatal("order not created")
		}
		if order.Status != models.OrderStatusPending {
			t.Errorf("status = %v, want pending", order.Status)
		}
		if order.Currency != "USDT" {
			t.Errorf("currency = %v, want USDT", order.Currency)
		}
		want := models.MerchantOrderID(models.OrderDirectionDeposit, order.ID)
		if order.MerchantOrderID != want {
			t.Errorf("merchant order id = %v, want %v", order.MerchantOrderID, want)
		}
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		ledger := NewLedger(&storage.MockTx{}, &storage.MockOrderStorage{}, &storage.MockWalletStorage{})
		if _, err := ledger.Initiate(ctx, userID, decimal.Zero, "USDT", "TRC20"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("rejects empty currency", func(t *testing.T) {
		ledger := NewLedger(&storage.MockTx{}, &storage.MockOrderStorage{}, &storage.MockWalletStorage{})
		if _, err := ledger.Initiate(ctx, userID, decimal.NewFromInt(1), "  ", "TRC20"); !errors.Is(err, ErrInvalidCurrency) {
			t.Fatalf("expected ErrInvalidCurrency, got %v", err)
		}
	})
}

func TestLedger_Reserve(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	accountID := uuid.New()

	account := func(balance string, version int64) *models.WalletAccount {
		return &models.WalletAccount{
			ID:       accountID,
			UserID:   userID,
			Currency: "USDT",
			Balance:  decimal.RequireFromString(balance),
			Version:  version,
		}
	}

	t.Run("reserves funds and debits balance", func(t *testing.T) {
		tx := &storage.MockTx{}
		var txn *models.Transaction
		var casBalance decimal.Decimal
		var casVersion int64

		ledger := NewLedger(tx, &storage.MockOrderStorage{}, &storage.MockWalletStorage{
			GetAccountTxFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ string) (*models.WalletAccount, error) {
				return account("200", 7), nil
			},
			CreateTransactionTxFunc: func(ctx context.Context, _ pgx.Tx, t *models.Transaction) error {
				txn = t
				return nil
			},
			UpdateBalanceCASFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
				casBalance = newBalance
				casVersion = expectedVersion
				return nil
			},
		})

		order, err := ledger.Reserve(ctx, userID, decimal.RequireFromString("150"), "USDT", "BANK_TRANSFER", map[string]string{"account_number": "1"})
		if err != nil {
			t.Fatalf("Reserve() error = %v", err)
		}
		if order.Direction != models.OrderDirectionWithdrawal {
			t.Errorf("direction = %v", order.Direction)
		}
		if txn == nil || txn.Type != models.TransactionTypeWithdrawal {
			t.Fatalf("unexpected transaction %+v", txn)
		}
		if !txn.BalanceBefore.Equal(decimal.RequireFromString("200")) || !txn.BalanceAfter.Equal(decimal.RequireFromString("50")) {
			t.Errorf("snapshot = %s -> %s", txn.BalanceBefore, txn.BalanceAfter)
		}
		if !casBalance.Equal(decimal.RequireFromString("50")) || casVersion != 7 {
			t.Errorf("cas = %s @ %d", casBalance, casVersion)
		}
		if tx.CommitCalls != 1 {
			t.Errorf("commits = %d, want 1", tx.CommitCalls)
		}
	})

	t.Run("insufficient balance", func(t *testing.T) {
		tx := &storage.MockTx{}
		ledger := NewLedger(tx, &storage.MockOrderStorage{}, &storage.MockWalletStorage{
			GetAccountTxFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ string) (*models.WalletAccount, error) {
				return account("10", 0), nil
			},
		})

		_, err := ledger.Reserve(ctx, userID, decimal.RequireFromString("150"), "USDT", "BANK_TRANSFER", nil)
		if !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		if tx.CommitCalls != 0 {
			t.Error("reserve must not commit on failure")
		}
	})

	t.Run("version conflict aborts reserve", func(t *testing.T) {
		tx := &storage.MockTx{}
		ledger := NewLedger(tx, &storage.MockOrderStorage{}, &storage.MockWalletStorage{
			GetAccountTxFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ string) (*models.WalletAccount, error) {
				return account("200", 7), nil
			},
			UpdateBalanceCASFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ decimal.Decimal, _ int64) error {
				return storage.ErrVersionConflict
			},
		})

		_, err := ledger.Reserve(ctx, userID, decimal.RequireFromString("150"), "USDT", "BANK_TRANSFER", nil)
		if !errors.Is(err, storage.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
		if tx.CommitCalls != 0 {
			t.Error("reserve must not commit on conflict")
		}
	})
}

func TestLedger_Confirm(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	order := &models.Order{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: "USDT",
		Amount:   decimal.RequireFromString("100"),
	}

	var txn *models.Transaction
	var casBalance decimal.Decimal
	ledger := NewLedger(&storage.MockTx{}, &storage.MockOrderStorage{}, &storage.MockWalletStorage{
		GetAccountTxFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ string) (*models.WalletAccount, error) {
			return &models.WalletAccount{ID: uuid.New(), UserID: userID, Currency: "USDT", Balance: decimal.RequireFromString("5"), Version: 3}, nil
		},
		CreateTransactionTxFunc: func(ctx context.Context, _ pgx.Tx, t *models.Transaction) error {
			txn = t
			return nil
		},
		UpdateBalanceCASFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, newBalance decimal.Decimal, _ int64) error {
			casBalance = newBalance
			return nil
		},
	})

	if err := ledger.Confirm(ctx, &storage.MockTx{}, order, "EXT-777"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if txn.Type != models.TransactionTypeDeposit {
		t.Errorf("type = %v", txn.Type)
	}
	if txn.ExternalRef == nil || *txn.ExternalRef != "EXT-777" {
		t.Errorf("external ref = %v", txn.ExternalRef)
	}
	if !casBalance.Equal(decimal.RequireFromString("105")) {
		t.Errorf("new balance = %s, want 105", casBalance)
	}
}

func TestLedger_Refund(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	order := &models.Order{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: "USDT",
		Amount:   decimal.RequireFromString("150"),
	}

	t.Run("restores exact amount once", func(t *testing.T) {
		var txn *models.Transaction
		var casBalance decimal.Decimal
		var casVersion int64
		ledger := NewLedger(&storage.MockTx{}, &storage.MockOrderStorage{}, &storage.MockWalletStorage{
			GetAccountTxFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ string) (*models.WalletAccount, error) {
				return &models.WalletAccount{ID: uuid.New(), UserID: userID, Currency: "USDT", Balance: decimal.RequireFromString("50"), Version: 8}, nil
			},
			CreateTransactionTxFunc: func(ctx context.Context, _ pgx.Tx, t *models.Transaction) error {
				txn = t
				return nil
			},
			UpdateBalanceCASFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) error {
				casBalance = newBalance
				casVersion = expectedVersion
				return nil
			},
		})

		if err := ledger.Refund(ctx, &storage.MockTx{}, order); err != nil {
			t.Fatalf("Refund() error = %v", err)
		}
		if txn.Type != models.TransactionTypeRefund {
			t.Errorf("type = %v, want refund", txn.Type)
		}
		if !casBalance.Equal(decimal.RequireFromString("200")) || casVersion != 8 {
			t.Errorf("cas = %s @ %d, want 200 @ 8", casBalance, casVersion)
		}
	})

	t.Run("propagates version conflict", func(t *testing.T) {
		ledger := NewLedger(&storage.MockTx{}, &storage.MockOrderStorage{}, &storage.MockWalletStorage{
			GetAccountTxFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ string) (*models.WalletAccount, error) {
				return &models.WalletAccount{ID: uuid.New(), UserID: userID, Currency: "USDT", Balance: decimal.RequireFromString("50"), Version: 8}, nil
			},
			UpdateBalanceCASFunc: func(ctx context.Context, _ pgx.Tx, _ uuid.UUID, _ decimal.Decimal, _ int64) error {
				return storage.ErrVersionConflict
			},
		})

		if err := ledger.Refund(ctx, &storage.MockTx{}, order); !errors.Is(err, storage.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})
}
