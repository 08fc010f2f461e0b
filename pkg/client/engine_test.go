package client

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotusgift/pkg/types"
)

const estimateBody = `{
  "data": {
    "trade": {
      "tradeId": "0x7a1f0000000000000000000000000000000000000000000000000000000000aa",
      "destTokenAmount": "998000",
      "destTokenMinAmount": 988020,
      "fees": [{"bps": 10, "recipient": "0x000000000000000000000000a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}],
      "eip712": {
        "types": {
          "Trade": [
            {"name": "tradeId", "type": "bytes32"},
            {"name": "nonce", "type": "uint256"}
          ]
        },
        "primaryType": "Trade",
        "domain": {"name": "GudEngine", "version": "1", "chainId": 8453, "verifyingContract": "0x1111111111111111111111111111111111111111"},
        "message": {
          "tradeId": "0x7a1f0000000000000000000000000000000000000000000000000000000000aa",
          "nonce": 115792089237316195423570985008687907853269984665640564039457584007913129639935
        }
      }
    },
    "tx": {"to": "0x1111111111111111111111111111111111111111", "data": "0xabcdef", "value": "0", "chainId": 8453}
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *EngineClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEngineClient(srv.URL, "test-key")
}

func TestEstimate(t *testing.T) {
	var received map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order/estimate", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(estimateBody))
	})

	est, err := c.Estimate(context.Background(), types.QuoteRequest{
		SrcChainID:   8453,
		SrcToken:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		SrcAmountWei: "1000000",
		DestToken:    "0x3b952c8C9C44e8Fe201e2b26F6B2200203214cfF",
		DestChainID:  48900,
		SlippageBps:  100,
	})
	require.NoError(t, err)

	assert.Equal(t, "1000000", received["srcAmountWei"])
	assert.Equal(t, float64(48900), received["destChainId"])

	assert.Equal(t, "998000", est.ExpectedAmount.String())
	assert.Equal(t, "988020", est.MinExpectedAmount.String())
	require.Len(t, est.Fees, 1)
	assert.Equal(t, int64(10), (*big.Int)(est.Fees[0].Bps).Int64())
	assert.Equal(t, []byte{0xab, 0xcd, 0xef}, []byte(est.Tx.Data))
	assert.Equal(t, int64(8453), est.TargetChainID(1))

	require.True(t, est.SupportsGasless())
	assert.Equal(t, "Trade", est.TypedData.PrimaryType)
	assert.Equal(t, int64(8453), (*big.Int)(est.TypedData.Domain.ChainId).Int64())
	// 2^256-1 must survive decoding as an exact decimal string
	assert.Equal(t,
		"115792089237316195423570985008687907853269984665640564039457584007913129639935",
		est.TypedData.Message["nonce"])
}

func TestEstimateWithoutTypedData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"trade":{"tradeId":"0x01","destTokenAmount":"1","destTokenMinAmount":"1","fees":[]},"tx":{"to":"0x1111111111111111111111111111111111111111","data":"0x","value":"1000"}}}`))
	})

	est, err := c.Estimate(context.Background(), types.QuoteRequest{})
	require.NoError(t, err)
	assert.False(t, est.SupportsGasless())
	assert.Equal(t, int64(1000), est.Value().Int64())
	assert.Equal(t, int64(10), est.TargetChainID(10))
}

func TestEstimateUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad slippage"}`))
	})

	_, err := c.Estimate(context.Background(), types.QuoteRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUpstream)

	var upstream *types.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 400, upstream.StatusCode)
	assert.Equal(t, "bad slippage", upstream.Message)
}

func TestErrorMessageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"boom","message":"ignored"}`, "boom"},
		{"message field", `{"message":"quote expired"}`, "quote expired"},
		{"plain text", "gateway timeout", "gateway timeout"},
		{"empty", "", "HTTP 502"},
		{"json without known fields", `{"detail":"x"}`, `{"detail":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage(502, []byte(tt.body)))
		})
	}
}

func TestEstimateMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"trade":{"tradeId":"0x01"}}}`))
	})

	_, err := c.Estimate(context.Background(), types.QuoteRequest{})
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestMissingCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewEngineClient(srv.URL, "")
	assert.False(t, c.HasCredential())
	assert.True(t, NewEngineClient(srv.URL, "k").HasCredential())

	_, err := c.Estimate(context.Background(), types.QuoteRequest{})
	assert.ErrorIs(t, err, types.ErrMissingCredential)

	_, err = c.Status(context.Background(), "0xabc")
	assert.ErrorIs(t, err, types.ErrMissingCredential)

	assert.False(t, called, "no request may leave without a credential")
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/order/status", r.URL.Path)
		assert.Equal(t, "0xfeed", r.URL.Query().Get("txHash"))
		_, _ = w.Write([]byte(`{"status":"SUCCESS","destTxHash":"0xbeef"}`))
	})

	resp, err := c.Status(context.Background(), "0xfeed")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, resp.Status)
	assert.Equal(t, "0xbeef", resp.Raw["destTxHash"])
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewEngineClient(url, "key")
	_, err := c.Status(context.Background(), "0x01")
	assert.ErrorIs(t, err, types.ErrNetwork)
}
