package client

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// decodeBody decodes a response body according to its Content-Type.
// application/json (and any +json variant) decodes to structured data,
// text/* passes through as a string, and anything else stays raw bytes.
func decodeBody(contentType string, body []byte) (any, error) {
	if len(body) == 0 {
		return nil, nil
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, &errors.ParseError{ContentType: mediaType, Err: err}
		}
		return v, nil
	case strings.HasPrefix(mediaType, "text/"):
		return string(body), nil
	default:
		return body, nil
	}
}

// normalizeEnvelope unwraps the inconsistent envelopes upstreams use:
// {"success": true, "data": ...}, {"ok": true, "data": ...}, or a bare
// payload (array, object, scalar).
//
// Returns the inner data, whether the envelope claims success, and the
// upstream's error message when it claims failure. Bare payloads claim
// success: a 2xx response with data IS the success signal.
func normalizeEnvelope(v any) (data any, claimed bool, errMsg string) {
	m, isMap := v.(map[string]any)
	if !isMap {
		return v, true, ""
	}

	flag, hasFlag := envelopeFlag(m)
	if !hasFlag {
		return v, true, ""
	}

	inner, hasData := m["data"]
	if !hasData {
		// Some upstreams put the payload beside the flag
		// ({"success": true, "providers": [...]}); keep the whole map
		// so those keys stay reachable.
		inner = m
	}

	if flag {
		return inner, true, ""
	}
	return inner, false, envelopeError(m)
}

// envelopeFlag extracts the success discriminator from a decoded map.
func envelopeFlag(m map[string]any) (value, found bool) {
	for _, key := range []string{"ok", "success"} {
		if raw, exists := m[key]; exists {
			if b, isBool := raw.(bool); isBool {
				return b, true
			}
		}
	}
	return false, false
}

// envelopeError extracts the upstream's error message from a failed
// envelope, falling back to a generic message when none is present.
func envelopeError(m map[string]any) string {
	for _, key := range []string{"error", "message"} {
		if raw, exists := m[key]; exists {
			switch msg := raw.(type) {
			case string:
				if msg != "" {
					return msg
				}
			case map[string]any:
				if inner, exists := msg["message"].(string); exists && inner != "" {
					return inner
				}
				return fmt.Sprintf("%v", msg)
			}
		}
	}
	return "upstream reported failure without a message"
}
