// Package payment is the boundary to the Razorpay payment provider. It knows
// nothing about orders: it creates provider orders and checks the signature
// the provider hands back to the browser after a payment.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-service/config"
	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Currencies without the usual two minor digits
var minorUnitExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

// ToMinorUnits converts a major-unit amount to the provider's minor unit,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	exp, ok := minorUnitExponent[strings.ToUpper(currency)]
	if !ok {
		exp = 2
	}
	return amount.Shift(exp).Round(0).IntPart()
}

// Signature computes the hex HMAC-SHA256 of "orderID|paymentID". Both the
// provider and VerifySignature use this exact construction.
func Signature(secret, providerOrderID, providerPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(providerOrderID + "|" + providerPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type Gateway struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	keySecret  string
	timeout    time.Duration
	logger     *zap.Logger
}

func NewGateway(cfg config.PaymentConfig) *Gateway {
	return &Gateway{
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		timeout:   cfg.Timeout(),
		logger:    util.GetLogger(),
	}
}

type createOrderRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture int               `json:"payment_capture"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreatePaymentOrder creates a provider order for amount (major units).
// Network failures, timeouts and non-2xx answers all surface as
// apperr.ErrGatewayUnavailable. No retry is attempted.
func (g *Gateway) CreatePaymentOrder(ctx context.Context, amount decimal.Decimal, currency string, notes map[string]string) (*models.PaymentIntent, error) {
	ctx, span := util.StartSpan(ctx, "PaymentGateway.CreatePaymentOrder")
	defer span.End()

	if !amount.IsPositive() {
		return nil, apperr.Validation("payment amount must be positive, got %s", amount)
	}

	payload := createOrderRequest{
		Amount:         ToMinorUnits(amount, currency),
		Currency:       strings.ToUpper(currency),
		Receipt:        newReceipt(),
		PaymentCapture: 1,
		Notes:          notes,
	}

	start := time.Now()
	result, err := g.createOrder(ctx, payload)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		util.SpanError(span, err)
		g.logger.Error("Payment gateway order creation failed",
			zap.String("receipt", payload.Receipt),
			zap.Int64("amount", payload.Amount),
			zap.Error(err))
	}
	util.GatewayRequestLatency.WithLabelValues("create_order", outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	g.logger.Info("Payment gateway order created",
		zap.String("provider_order_id", result.ID),
		zap.String("receipt", result.Receipt),
		zap.Int64("amount", result.Amount))

	return &models.PaymentIntent{
		ProviderOrderID: result.ID,
		Amount:          result.Amount,
		Currency:        result.Currency,
		Receipt:         result.Receipt,
		Notes:           notes,
	}, nil
}

func (g *Gateway) createOrder(ctx context.Context, payload createOrderRequest) (*createOrderResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: create order request: %v", apperr.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: provider status=%d body=%s", apperr.ErrGatewayUnavailable, resp.StatusCode, string(b))
	}

	var result createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode provider response: %v", apperr.ErrGatewayUnavailable, err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("%w: provider response without order id", apperr.ErrGatewayUnavailable)
	}
	return &result, nil
}

// VerifySignature reports whether signature is the provider's signature for
// the order/payment pair. A mismatch is (false, nil); errors are reserved
// for missing input or a gateway without a secret.
func (g *Gateway) VerifySignature(providerOrderID, providerPaymentID, signature string) (bool, error) {
	if providerOrderID == "" || providerPaymentID == "" || signature == "" {
		return false, apperr.Validation("providerOrderId, providerPaymentId and providerSignature are required")
	}
	if g.keySecret == "" {
		return false, fmt.Errorf("payment key secret is not configured")
	}

	expected := Signature(g.keySecret, providerOrderID, providerPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

func newReceipt() string {
	return "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
