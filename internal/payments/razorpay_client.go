package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// GatewayOrder is the subset of a Razorpay order the service keeps.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// GatewayClient talks to the Razorpay Orders API.
type GatewayClient struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewGatewayClient(keyID, keySecret, baseURL string, logger *logging.Logger) *GatewayClient {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	return &GatewayClient{
		keyID:      keyID,
		keySecret:  keySecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// KeyID is the public key the checkout widget is opened with.
func (c *GatewayClient) KeyID() string { return c.keyID }

// Secret is the signing secret for checkout signatures.
func (c *GatewayClient) Secret() string { return c.keySecret }

// CreateOrder registers an order for amountPaise. Razorpay amounts are in the
// currency's smallest unit.
func (c *GatewayClient) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error) {
	if c == nil || c.keyID == "" || c.keySecret == "" {
		return nil, fmt.Errorf("%w: razorpay credentials not configured", ErrGatewayFailure)
	}
	body, err := json.Marshal(map[string]any{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode order: %w", ErrGatewayFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: request build: %w", ErrGatewayFailure, err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http: %w", ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var errBody struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		c.logger.Error("razorpay order rejected", "status", resp.StatusCode, "code", errBody.Error.Code)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayFailure, resp.StatusCode, errBody.Error.Description)
	}

	var order GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrGatewayFailure, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: order id missing from response", ErrGatewayFailure)
	}
	return &order, nil
}
