package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"lotusgift/pkg/types"
)

const missingKeyMessage = "Missing server API key"

type bridgeRequest struct {
	Path    string          `json:"path"`
	Payload json.RawMessage `json:"payload"`
	TxHash  string          `json:"txHash"`
}

// bridge forwards {path, payload, txHash} to the engine. Only order/estimate
// and order/status are reachable. A missing server key is reported before
// the body is looked at.
func (s *Server) bridge(c *gin.Context) {
	if !s.engine.HasCredential() {
		c.String(http.StatusInternalServerError, missingKeyMessage)
		return
	}

	var req bridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	var (
		method   string
		endpoint string
		body     []byte
	)
	switch req.Path {
	case "order/estimate":
		method = http.MethodPost
		endpoint = "/order/estimate"
		body = req.Payload
		if len(body) == 0 {
			body = []byte("null")
		}
	case "order/status":
		if req.TxHash == "" {
			c.String(http.StatusBadRequest, "txHash required")
			return
		}
		method = http.MethodGet
		endpoint = "/order/status?txHash=" + url.QueryEscape(req.TxHash)
	default:
		c.String(http.StatusBadRequest, "Unsupported path")
		return
	}

	status, respBody, err := s.engine.Raw(c.Request.Context(), method, endpoint, body)
	if err != nil {
		if errors.Is(err, types.ErrMissingCredential) {
			c.String(http.StatusInternalServerError, missingKeyMessage)
			return
		}
		s.log.Warn().Err(err).Str("path", req.Path).Msg("engine request failed")
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	// JSON bodies go out byte for byte so 256-bit integers keep their precision.
	if len(respBody) > 0 && sonic.Valid(respBody) {
		c.Data(status, "application/json; charset=utf-8", respBody)
		return
	}
	c.JSON(status, gin.H{"raw": string(respBody)})
}
