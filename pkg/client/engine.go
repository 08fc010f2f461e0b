package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lotusgift/pkg/metrics"
	"lotusgift/pkg/types"
)

const (
	DefaultBaseURL = "https://trading.ai.zircuit.com/api/engine/v1"
	DefaultTimeout = 30 * time.Second
)

// Numbers are kept as json.Number so 256-bit values inside the EIP-712
// message survive decoding.
var engineJSON = sonic.Config{UseNumber: true}.Froze()

// EngineClient talks to the trading engine API. It holds the API key, so it
// belongs in the CLI or the proxy server, never in code served to browsers.
type EngineClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures an EngineClient.
type Option func(*EngineClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *EngineClient) { e.httpClient = c }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *EngineClient) { e.log = l }
}

// NewEngineClient creates a new engine API client
func NewEngineClient(baseURL, apiKey string, opts ...Option) *EngineClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &EngineClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        log.With().Str("component", "engine-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type estimateResponse struct {
	Data *struct {
		Trade *struct {
			TradeID            string                `json:"tradeId"`
			DestTokenAmount    *math.HexOrDecimal256 `json:"destTokenAmount"`
			DestTokenMinAmount *math.HexOrDecimal256 `json:"destTokenMinAmount"`
			Fees               []types.Fee           `json:"fees"`
			EIP712             *apitypes.TypedData   `json:"eip712"`
		} `json:"trade"`
		Tx *types.TxData `json:"tx"`
	} `json:"data"`
}

// Estimate requests a priced trade for req.
func (c *EngineClient) Estimate(ctx context.Context, req types.QuoteRequest) (*types.TradeEstimate, error) {
	var resp estimateResponse
	if err := c.call(ctx, "estimate", http.MethodPost, "/order/estimate", req, &resp); err != nil {
		return nil, err
	}

	if resp.Data == nil || resp.Data.Trade == nil || resp.Data.Tx == nil {
		return nil, fmt.Errorf("%w: estimate is missing data.trade or data.tx", types.ErrMalformedResponse)
	}
	if resp.Data.Tx.To == "" {
		return nil, fmt.Errorf("%w: estimate is missing tx.to", types.ErrMalformedResponse)
	}

	trade := resp.Data.Trade
	est := &types.TradeEstimate{
		TradeID:           trade.TradeID,
		ExpectedAmount:    toBig(trade.DestTokenAmount),
		MinExpectedAmount: toBig(trade.DestTokenMinAmount),
		Fees:              trade.Fees,
		Tx:                *resp.Data.Tx,
	}
	if trade.EIP712 != nil {
		td := *trade.EIP712
		td.Message = canonicalizeNumbers(map[string]interface{}(td.Message)).(map[string]interface{})
		est.TypedData = &td
	}

	c.log.Debug().
		Str("trade_id", est.TradeID).
		Str("to", est.Tx.To).
		Bool("gasless", est.SupportsGasless()).
		Msg("estimate received")

	return est, nil
}

// Status fetches the engine's order status for a submitted transaction.
func (c *EngineClient) Status(ctx context.Context, txHash string) (*types.StatusResponse, error) {
	var raw map[string]interface{}
	endpoint := "/order/status?txHash=" + url.QueryEscape(txHash)
	if err := c.call(ctx, "status", http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	status, ok := raw["status"].(string)
	if !ok || status == "" {
		return nil, fmt.Errorf("%w: status response has no status field", types.ErrMalformedResponse)
	}

	return &types.StatusResponse{
		Status: types.OrderStatus(strings.ToUpper(status)),
		Raw:    raw,
	}, nil
}

// HasCredential reports whether an API key is configured.
func (c *EngineClient) HasCredential() bool {
	return c.apiKey != ""
}

// Raw performs an authenticated request and returns the status code and body
// untouched. Non-2xx answers are not errors here.
func (c *EngineClient) Raw(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	if c.apiKey == "" {
		return 0, nil, fmt.Errorf("%w: engine API key is not configured", types.ErrMissingCredential)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", types.ErrNetwork, method, endpoint, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response body: %w", types.ErrNetwork, err)
	}

	return httpResp.StatusCode, respBody, nil
}

func (c *EngineClient) call(ctx context.Context, op, method, endpoint string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = engineJSON.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	start := time.Now()
	status, respBody, err := c.Raw(ctx, method, endpoint, body)
	metrics.EngineDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EngineRequests.WithLabelValues(op, "error").Inc()
		return err
	}

	if status < 200 || status >= 300 {
		metrics.EngineRequests.WithLabelValues(op, "upstream_error").Inc()
		upstream := &types.UpstreamError{
			StatusCode: status,
			Message:    errorMessage(status, respBody),
			Body:       respBody,
		}
		c.log.Warn().Str("operation", op).Int("status", status).Str("message", upstream.Message).Msg("engine returned an error")
		return upstream
	}

	if err := engineJSON.Unmarshal(respBody, out); err != nil {
		metrics.EngineRequests.WithLabelValues(op, "malformed").Inc()
		return fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}

	metrics.EngineRequests.WithLabelValues(op, "ok").Inc()
	return nil
}

// errorMessage picks the most useful description out of an error body:
// a JSON error or message field, then the raw text, then the status code.
func errorMessage(status int, body []byte) string {
	var parsed map[string]interface{}
	if err := engineJSON.Unmarshal(body, &parsed); err == nil {
		if msg, ok := parsed["error"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := parsed["message"].(string); ok && msg != "" {
			return msg
		}
		if errs, ok := parsed["errors"]; ok && errs != nil {
			return fmt.Sprintf("%v", errs)
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

// canonicalizeNumbers turns json.Number leaves into decimal strings, the
// form the EIP-712 encoder accepts for integer types without losing precision.
func canonicalizeNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = canonicalizeNumbers(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalizeNumbers(item)
		}
		return out
	case json.Number:
		return val.String()
	default:
		return v
	}
}

func toBig(v *math.HexOrDecimal256) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set((*big.Int)(v))
}
