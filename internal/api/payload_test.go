package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		allowEmpty  bool
		wantErr     bool
	}{
		{"valid object", `{"token":"abc"}`, "application/json", false, false},
		{"missing content type defaults to json", `{"token":"abc"}`, "", false, false},
		{"unknown field", `{"token":"abc","nope":1}`, "application/json", false, true},
		{"trailing data", `{"token":"abc"}{"token":"def"}`, "application/json", false, true},
		{"empty body rejected", "", "application/json", false, true},
		{"empty body allowed", "", "application/json", true, false},
		{"unsupported content type", `{"token":"abc"}`, "text/plain", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, MintTokenRoute, strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}

			var payload MintPayload
			err := DecodePayload(r, &payload, tt.allowEmpty)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.body != "" && payload.Token != "abc" {
				t.Errorf("Token = %q, want %q", payload.Token, "abc")
			}
		})
	}
}
