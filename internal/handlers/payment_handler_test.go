package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eegluit-cloud/neonplay-paygate/internal/auth"
	"github.com/eegluit-cloud/neonplay-paygate/internal/gateway"
	"github.com/eegluit-cloud/neonplay-paygate/internal/models"
	"github.com/eegluit-cloud/neonplay-paygate/internal/storage"
	"github.com/eegluit-cloud/neonplay-paygate/internal/wallet"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type mockReconciliationService struct {
	CreateDepositFunc    func(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error)
	CreateWithdrawalFunc func(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string, accountDetails map[string]string) (*models.WithdrawalCreatedResponse, error)
	OrderStatusFunc      func(ctx context.Context, userID uuid.UUID, direction models.OrderDirection, merchantOrderID string) (*models.OrderStatusResponse, error)
	ListOrdersFunc       func(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.OrderListItem, error)
	GatewayBalancesFunc  func(ctx context.Context) ([]gateway.Balance, error)
	HandleWebhookFunc    func(ctx context.Context, direction models.OrderDirection, params map[string]any, raw []byte, sourceIP string) error
}

func (m *mockReconciliationService) CreateDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error) {
	if m.CreateDepositFunc != nil {
		return m.CreateDepositFunc(ctx, userID, amount, currency, method, returnURL, clientIP)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReconciliationService) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string, accountDetails map[string]string) (*models.WithdrawalCreatedResponse, error) {
	if m.CreateWithdrawalFunc != nil {
		return m.CreateWithdrawalFunc(ctx, userID, amount, currency, method, accountDetails)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReconciliationService) OrderStatus(ctx context.Context, userID uuid.UUID, direction models.OrderDirection, merchantOrderID string) (*models.OrderStatusResponse, error) {
	if m.OrderStatusFunc != nil {
		return m.OrderStatusFunc(ctx, userID, direction, merchantOrderID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReconciliationService) ListOrders(ctx context.Context, userID uuid.UUID, direction models.OrderDirection) ([]*models.OrderListItem, error) {
	if m.ListOrdersFunc != nil {
		return m.ListOrdersFunc(ctx, userID, direction)
	}
	return []*models.OrderListItem{}, nil
}

func (m *mockReconciliationService) GatewayBalances(ctx context.Context) ([]gateway.Balance, error) {
	if m.GatewayBalancesFunc != nil {
		return m.GatewayBalancesFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReconciliationService) HandleWebhook(ctx context.Context, direction models.OrderDirection, params map[string]any, raw []byte, sourceIP string) error {
	if m.HandleWebhookFunc != nil {
		return m.HandleWebhookFunc(ctx, direction, params, raw, sourceIP)
	}
	return nil
}

func TestPaymentHandler_CreateDeposit(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name           string
		body           string
		mockService    *mockReconciliationService
		expectedStatus int
	}{
		{
			name: "created",
			body: `{"amount":"100.50","currency":"USD","method":"BANK_TRANSFER"}`,
			mockService: &mockReconciliationService{
				CreateDepositFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error) {
					if !amount.Equal(decimal.RequireFromString("100.50")) {
						t.Errorf("unexpected amount %s", amount)
					}
					return &models.DepositCreatedResponse{
						OrderID:         uuid.New(),
						MerchantOrderID: "PAY247_DEP_x",
						ExternalOrderID: "EXT-1",
						PaymentURL:      "https://cashier.example/p/EXT-1",
					}, nil
				},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "malformed json",
			body:           `{"amount":`,
			mockService:    &mockReconciliationService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unparseable amount",
			body:           `{"amount":"abc","currency":"USD","method":"BANK_TRANSFER"}`,
			mockService:    &mockReconciliationService{},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "negative amount rejected by ledger",
			body: `{"amount":"-5","currency":"USD","method":"BANK_TRANSFER"}`,
			mockService: &mockReconciliationService{
				CreateDepositFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error) {
					return nil, wallet.ErrInvalidAmount
				},
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "gateway rejection",
			body: `{"amount":"100","currency":"USD","method":"BANK_TRANSFER"}`,
			mockService: &mockReconciliationService{
				CreateDepositFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error) {
					return nil, &gateway.RejectionError{Code: 1004, Message: "amount below minimum"}
				},
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "gateway unavailable",
			body: `{"amount":"100","currency":"USD","method":"BANK_TRANSFER"}`,
			mockService: &mockReconciliationService{
				CreateDepositFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error) {
					return nil, gateway.ErrUnavailable
				},
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "internal error",
			body: `{"amount":"100","currency":"USD","method":"BANK_TRANSFER"}`,
			mockService: &mockReconciliationService{
				CreateDepositFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method, returnURL, clientIP string) (*models.DepositCreatedResponse, error) {
					return nil, errors.New("db error")
				},
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/payment/deposit", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.Set(string(auth.UserIDKey), userID)

			handler := NewPaymentHandler(tt.mockService)
			err := handler.CreateDeposit(c)

			if tt.expectedStatus < 400 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if rec.Code != tt.expectedStatus {
					t.Fatalf("status = %d, want %d", rec.Code, tt.expectedStatus)
				}
			} else {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if he, ok := err.(*echo.HTTPError); ok {
					if he.Code != tt.expectedStatus {
						t.Fatalf("status = %d, want %d", he.Code, tt.expectedStatus)
					}
				}
			}
		})
	}
}

func TestPaymentHandler_CreateWithdrawal(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name           string
		body           string
		mockService    *mockReconciliationService
		expectedStatus int
	}{
		{
			name: "created",
			body: `{"amount":"60","currency":"USD","method":"MOBILE_WALLET","account_details":{"phone":"+15550001111"}}`,
			mockService: &mockReconciliationService{
				CreateWithdrawalFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method string, accountDetails map[string]string) (*models.WithdrawalCreatedResponse, error) {
					if accountDetails["phone"] != "+15550001111" {
						t.Errorf("account details lost: %+v", accountDetails)
					}
					return &models.WithdrawalCreatedResponse{
						WithdrawalID:    uuid.New(),
						MerchantOrderID: "PAY247_WDR_x",
						ExternalOrderID: "PO-1",
						Status:          "processing",
					}, nil
				},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "insufficient balance",
			body: `{"amount":"60","currency":"USD","method":"MOBILE_WALLET"}`,
			mockService: &mockReconciliationService{
				CreateWithdrawalFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method string, accountDetails map[string]string) (*models.WithdrawalCreatedResponse, error) {
					return nil, wallet.ErrInsufficientBalance
				},
			},
			expectedStatus: http.StatusPaymentRequired,
		},
		{
			name: "invalid method",
			body: `{"amount":"60","currency":"USD","method":""}`,
			mockService: &mockReconciliationService{
				CreateWithdrawalFunc: func(ctx context.Context, uid uuid.UUID, amount decimal.Decimal, currency, method string, accountDetails map[string]string) (*models.WithdrawalCreatedResponse, error) {
					return nil, wallet.ErrInvalidMethod
				},
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/payment/withdrawal", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.Set(string(auth.UserIDKey), userID)

			handler := NewPaymentHandler(tt.mockService)
			err := handler.CreateWithdrawal(c)

			if tt.expectedStatus < 400 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if rec.Code != tt.expectedStatus {
					t.Fatalf("status = %d, want %d", rec.Code, tt.expectedStatus)
				}
			} else {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if he, ok := err.(*echo.HTTPError); ok {
					if he.Code != tt.expectedStatus {
						t.Fatalf("status = %d, want %d", he.Code, tt.expectedStatus)
					}
				}
			}
		})
	}
}

func TestPaymentHandler_DepositStatus(t *testing.T) {
	userID := uuid.New()

	t.Run("found", func(t *testing.T) {
		mock := &mockReconciliationService{
			OrderStatusFunc: func(ctx context.Context, uid uuid.UUID, direction models.OrderDirection, merchantOrderID string) (*models.OrderStatusResponse, error) {
				if direction != models.OrderDirectionDeposit {
					t.Errorf("unexpected direction %s", direction)
				}
				return &models.OrderStatusResponse{
					MerchantOrderID: merchantOrderID,
					Status:          "completed",
					Amount:          "100.50",
					Currency:        "USD",
				}, nil
			},
		}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("merchantOrderID")
		c.SetParamValues("PAY247_DEP_abc")
		c.Set(string(auth.UserIDKey), userID)

		handler := NewPaymentHandler(mock)
		if err := handler.DepositStatus(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"completed"`) {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("not found", func(t *testing.T) {
		mock := &mockReconciliationService{
			OrderStatusFunc: func(ctx context.Context, uid uuid.UUID, direction models.OrderDirection, merchantOrderID string) (*models.OrderStatusResponse, error) {
				return nil, storage.ErrOrderNotFound
			},
		}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("merchantOrderID")
		c.SetParamValues("PAY247_DEP_missing")
		c.Set(string(auth.UserIDKey), userID)

		handler := NewPaymentHandler(mock)
		err := handler.DepositStatus(c)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %v", err)
		}
	})
}

func TestPaymentHandler_ListDeposits(t *testing.T) {
	userID := uuid.New()

	t.Run("empty list returns 204", func(t *testing.T) {
		mock := &mockReconciliationService{
			ListOrdersFunc: func(ctx context.Context, uid uuid.UUID, direction models.OrderDirection) ([]*models.OrderListItem, error) {
				return nil, nil
			},
		}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/payment/deposits", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(string(auth.UserIDKey), userID)

		handler := NewPaymentHandler(mock)
		if err := handler.ListDeposits(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("list returned", func(t *testing.T) {
		mock := &mockReconciliationService{
			ListOrdersFunc: func(ctx context.Context, uid uuid.UUID, direction models.OrderDirection) ([]*models.OrderListItem, error) {
				return []*models.OrderListItem{
					{MerchantOrderID: "PAY247_DEP_a", Amount: "10", Currency: "USD", Method: "BANK_TRANSFER", Status: "completed", CreatedAt: "2026-01-02T15:04:05Z"},
				}, nil
			},
		}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/payment/deposits", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(string(auth.UserIDKey), userID)

		handler := NewPaymentHandler(mock)
		if err := handler.ListDeposits(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "PAY247_DEP_a") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})
}

func TestPaymentHandler_Unauthorized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/payment/deposit", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	// userID намеренно не установлен

	handler := NewPaymentHandler(&mockReconciliationService{})
	err := handler.CreateDeposit(c)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
