package client

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        any
	}{
		{
			name:        "json object",
			contentType: "application/json",
			body:        `{"price":100.5,"symbol":"BTC"}`,
			want:        map[string]any{"price": 100.5, "symbol": "BTC"},
		},
		{
			name:        "json with charset parameter",
			contentType: "application/json; charset=utf-8",
			body:        `[1,2]`,
			want:        []any{float64(1), float64(2)},
		},
		{
			name:        "structured json suffix",
			contentType: "application/vnd.api+json",
			body:        `{"v":1}`,
			want:        map[string]any{"v": float64(1)},
		},
		{
			name:        "plain text",
			contentType: "text/plain; charset=utf-8",
			body:        "pong",
			want:        "pong",
		},
		{
			name:        "html error page",
			contentType: "text/html",
			body:        "<html>busy</html>",
			want:        "<html>busy</html>",
		},
		{
			name:        "unknown type passes raw bytes",
			contentType: "application/octet-stream",
			body:        "\x00\x01",
			want:        []byte{0, 1},
		},
		{
			name:        "empty body",
			contentType: "application/json",
			body:        "",
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody(tt.contentType, []byte(tt.body))
			if err != nil {
				t.Fatalf("decodeBody() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decodeBody() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeBody_MalformedJSON(t *testing.T) {
	_, err := decodeBody("application/json", []byte(`{"broken`))
	if err == nil {
		t.Fatal("expected a parse error")
	}
	var pe *errors.ParseError
	if !stderrors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.ContentType != "application/json" {
		t.Errorf("ParseError.ContentType = %q", pe.ContentType)
	}
}

func TestNormalizeEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		in          any
		wantData    any
		wantClaimed bool
		wantErr     string
	}{
		{
			name:        "bare payload passes through",
			in:          map[string]any{"price": 100.5},
			wantData:    map[string]any{"price": 100.5},
			wantClaimed: true,
		},
		{
			name:        "non-object passes through",
			in:          []any{float64(1)},
			wantData:    []any{float64(1)},
			wantClaimed: true,
		},
		{
			name:        "ok envelope unwraps data",
			in:          map[string]any{"ok": true, "data": map[string]any{"v": float64(1)}},
			wantData:    map[string]any{"v": float64(1)},
			wantClaimed: true,
		},
		{
			name:        "success envelope unwraps data",
			in:          map[string]any{"success": true, "data": "payload"},
			wantData:    "payload",
			wantClaimed: true,
		},
		{
			name:        "ok envelope without data keeps the object",
			in:          map[string]any{"ok": true, "session_id": "abc"},
			wantData:    map[string]any{"ok": true, "session_id": "abc"},
			wantClaimed: true,
		},
		{
			name:        "failed envelope with error string",
			in:          map[string]any{"ok": false, "error": "maintenance"},
			wantData:    map[string]any{"ok": false, "error": "maintenance"},
			wantClaimed: false,
			wantErr:     "maintenance",
		},
		{
			name:        "failed envelope with message field",
			in:          map[string]any{"success": false, "message": "quota exhausted", "data": map[string]any{"partial": true}},
			wantData:    map[string]any{"partial": true},
			wantClaimed: false,
			wantErr:     "quota exhausted",
		},
		{
			name:        "failed envelope with nested error object",
			in:          map[string]any{"ok": false, "error": map[string]any{"message": "bad key", "code": float64(401)}},
			wantData:    map[string]any{"ok": false, "error": map[string]any{"message": "bad key", "code": float64(401)}},
			wantClaimed: false,
			wantErr:     "bad key",
		},
		{
			name:        "failed envelope without a message",
			in:          map[string]any{"ok": false},
			wantData:    map[string]any{"ok": false},
			wantClaimed: false,
			wantErr:     "upstream reported failure without a message",
		},
		{
			name:        "non-bool flag is not an envelope",
			in:          map[string]any{"ok": "yes", "data": "x"},
			wantData:    map[string]any{"ok": "yes", "data": "x"},
			wantClaimed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, claimed, errMsg := normalizeEnvelope(tt.in)
			if claimed != tt.wantClaimed {
				t.Errorf("claimed = %v, want %v", claimed, tt.wantClaimed)
			}
			if errMsg != tt.wantErr {
				t.Errorf("errMsg = %q, want %q", errMsg, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantData, data); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSuggestionsFor(t *testing.T) {
	rateLimited := suggestionsFor(&errors.HTTPError{Status: 429, URL: "https://x"})
	if len(rateLimited) == 0 {
		t.Fatal("429 should produce suggestions")
	}

	auth := suggestionsFor(&errors.HTTPError{Status: 401, URL: "https://x"})
	if len(auth) == 0 {
		t.Fatal("401 should produce suggestions")
	}

	if cmp.Equal(rateLimited, auth) {
		t.Error("rate-limit and auth failures should suggest different remedies")
	}

	fallback := suggestionsFor(stderrors.New("mystery"))
	if len(fallback) == 0 {
		t.Error("unclassified errors still get generic suggestions")
	}
}
