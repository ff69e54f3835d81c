package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nimazasinich/crypto-dt-source-sub009/client"
)

// maxProxyBody bounds the relayed request payload.
const maxProxyBody = 1 << 20

// proxySchema validates the relay payload before anything is forwarded.
// The shape matches client.ProxyRequest.
const proxySchema = `{
	"type": "object",
	"required": ["url", "method"],
	"additionalProperties": false,
	"properties": {
		"url": {"type": "string", "minLength": 1, "maxLength": 2048},
		"method": {"type": "string", "enum": ["GET", "POST", "PUT", "DELETE", "HEAD", "PATCH"]},
		"headers": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"body": {}
	}
}`

var proxySchemaLoader = gojsonschema.NewStringLoader(proxySchema)

// handleProxy relays one outbound request through the fetch client, so a
// caller behind a restrictive network can reach a provider via the agent.
// The response is always a 200 with the client's Result envelope; the
// relayed request's outcome lives in the envelope, not the transport code.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if s.fetch == nil {
		writeError(w, http.StatusServiceUnavailable, "proxy relay is disabled")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	result, schemaErr := gojsonschema.Validate(proxySchemaLoader, gojsonschema.NewBytesLoader(raw))
	if schemaErr != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		writeError(w, http.StatusBadRequest, "invalid proxy request: "+strings.Join(msgs, "; "))
		return
	}

	var req client.ProxyRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}

	opts := []client.RequestOption{
		// The relay performs a single pass; escalation belongs to the
		// caller's own client, and recursing into this agent's fallback
		// tiers from here would double every budget.
		client.WithRetries(0),
		client.DirectOnly(),
		client.CacheResponse(false),
	}
	if len(req.Headers) > 0 {
		opts = append(opts, client.WithHeaders(req.Headers))
	}
	if len(req.Body) > 0 {
		opts = append(opts, client.WithBody(json.RawMessage(req.Body)))
	}

	res := s.fetch.Request(r.Context(), req.Method, req.URL, opts...)
	writeJSON(w, http.StatusOK, res)
}
