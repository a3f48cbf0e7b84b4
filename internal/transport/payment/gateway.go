package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"fulfillment/pkg/httpclient"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Gateway charges the customer for an order. The payment step of the saga is
// the only outbound HTTP dependency and runs behind a circuit breaker owned
// by the caller.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, paymentID string) error
}

type ChargeRequest struct {
	OrderID    uuid.UUID `json:"orderId"`
	CustomerID uuid.UUID `json:"customerId"`
	Amount     string    `json:"amount"`
}

type ChargeResult struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"` // "approved" | "declined"
}

// ErrDeclined is a business outcome, not a gateway fault: the breaker must
// not count it as a failure.
type ErrDeclined struct {
	OrderID uuid.UUID
	Reason  string
}

func (e *ErrDeclined) Error() string {
	return fmt.Sprintf("payment declined for order %s: %s", e.OrderID, e.Reason)
}

type HTTPGateway struct {
	client  httpclient.HTTPClient
	baseURL string
	logger  *zap.SugaredLogger
}

func NewHTTPGateway(client httpclient.HTTPClient, baseURL string, logger *zap.SugaredLogger) *HTTPGateway {
	return &HTTPGateway{client: client, baseURL: baseURL, logger: logger}
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.logger.Debugf("[order: %s] charge started, amount=%s", req.OrderID, req.Amount)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// gateway-side idempotency: a retried charge for the same order is a no-op
	httpReq.Header.Set("Idempotency-Key", req.OrderID.String())

	resp, err := g.client.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("charge request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		var decl struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&decl)
		g.logger.Warnf("[order: %s] payment declined: %s", req.OrderID, decl.Reason)
		return nil, &ErrDeclined{OrderID: req.OrderID, Reason: decl.Reason}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("charge: gateway returned %d", resp.StatusCode)
	}

	var result ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if result.Status == "declined" {
		return nil, &ErrDeclined{OrderID: req.OrderID, Reason: "declined by gateway"}
	}

	g.logger.Infof("[order: %s] charged, paymentID=%s", req.OrderID, result.PaymentID)
	return &result, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, paymentID string) error {
	g.logger.Debugf("[payment: %s] refund started", paymentID)

	httpReq, err := http.NewRequest(http.MethodPost, g.baseURL+"/v1/charges/"+paymentID+"/refund", nil)
	if err != nil {
		return fmt.Errorf("new refund request: %w", err)
	}

	resp, err := g.client.Do(ctx, httpReq)
	if err != nil {
		return fmt.Errorf("refund request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("refund: gateway returned %d", resp.StatusCode)
	}
	g.logger.Infof("[payment: %s] refunded", paymentID)
	return nil
}
