package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mehashop_back_end/internal/config"
)

const YooKassaName = "YooKassa"

// YooKassa est l'adaptateur HTTP de l'API v3 de YooKassa.
type YooKassa struct {
	cfg    config.YooKassaConfig
	client *http.Client
}

// NewYooKassa construit l'adaptateur ; client peut être nil.
func NewYooKassa(cfg config.YooKassaConfig, client *http.Client) *YooKassa {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &YooKassa{cfg: cfg, client: client}
}

func (y *YooKassa) Name() string { return YooKassaName }

type ykAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ykConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type ykCreateRequest struct {
	Amount       ykAmount          `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation ykConfirmation    `json:"confirmation"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type ykPayment struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Confirmation *ykConfirmation `json:"confirmation"`
}

func (p ykPayment) normalize() Payment {
	out := Payment{ID: p.ID, Status: p.Status}
	if p.Confirmation != nil {
		out.ConfirmationURL = p.Confirmation.ConfirmationURL
	}
	return out
}

func (y *YooKassa) CreatePayment(ctx context.Context, req Request) (Payment, error) {
	body, err := json.Marshal(ykCreateRequest{
		Amount:  ykAmount{Value: req.Amount.String(), Currency: req.Currency},
		Capture: true,
		Confirmation: ykConfirmation{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		Description: req.Description,
		Metadata:    map[string]string{"order_id": fmt.Sprint(req.OrderID)},
	})
	if err != nil {
		return Payment{}, fmt.Errorf("%w: encode request: %v", ErrGatewayFailure, err)
	}

	var p ykPayment
	if err := y.do(ctx, http.MethodPost, "/v3/payments", body, req.IdempotenceKey, &p); err != nil {
		return Payment{}, err
	}
	if p.ID == "" {
		return Payment{}, fmt.Errorf("%w: response without payment id", ErrGatewayFailure)
	}
	return p.normalize(), nil
}

func (y *YooKassa) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	var p ykPayment
	if err := y.do(ctx, http.MethodGet, "/v3/payments/"+url.PathEscape(paymentID), nil, "", &p); err != nil {
		return Payment{}, err
	}
	return p.normalize(), nil
}

// do exécute l'appel avec le délai configuré et classe les erreurs :
// non-200 → ErrGatewayRejected, délai dépassé → ErrGatewayTimeout, le reste → ErrGatewayFailure.
func (y *YooKassa) do(ctx context.Context, method, path string, body []byte, idempotenceKey string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, y.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, y.cfg.APIURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	req.SetBasicAuth(y.cfg.ShopID, y.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return fmt.Errorf("%w: read body: %v", ErrGatewayFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ YooKassa %s %s → %d: %s", method, path, resp.StatusCode, truncate(raw, 512))
		return fmt.Errorf("%w: http %d", ErrGatewayRejected, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayFailure, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "…"
	}
	return string(b)
}
