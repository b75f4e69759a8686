package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sidingops/rakeserial/internal/services"
)

func newRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"wagon_count":3}`, ""},
		{"empty", "", "request body is empty"},
		{"malformed", `{invalid}`, "malformed JSON"},
		{"wrong type", `{"wagon_count":"three"}`, `invalid value for field "wagon_count": expected int`},
		{"unknown field", `{"wagons":3}`, `unknown field "wagons"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst struct {
				WagonCount int `json:"wagon_count"`
			}
			err := DecodeJSON(newRequest(tt.body), &dst)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if dst.WagonCount != 3 {
					t.Errorf("wagon_count = %d, want 3", dst.WagonCount)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	body := `{"remarks":"` + strings.Repeat("x", MaxBodySize) + `"}`
	var dst struct {
		Remarks string `json:"remarks"`
	}
	err := DecodeJSON(newRequest(body), &dst)
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum size") {
		t.Errorf("error = %v, want size error", err)
	}
}

func TestDecodeOptionalJSON(t *testing.T) {
	var dst SplitUniqueRequest
	if err := DecodeOptionalJSON(newRequest(""), &dst); err != nil {
		t.Fatalf("empty body should be accepted: %v", err)
	}
	if dst.IndentNumbers != nil {
		t.Errorf("dst changed: %+v", dst)
	}

	r, _ := http.NewRequest(http.MethodPost, "/test", nil)
	if err := DecodeOptionalJSON(r, &dst); err != nil {
		t.Fatalf("nil body should be accepted: %v", err)
	}

	if err := DecodeOptionalJSON(newRequest(`{"indent_numbers":["A","B"]}`), &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dst.IndentNumbers) != 2 {
		t.Errorf("indent_numbers = %v", dst.IndentNumbers)
	}

	if err := DecodeOptionalJSON(newRequest(`{bad`), &dst); err == nil {
		t.Error("malformed body should still fail")
	}
}

func TestPathSerial(t *testing.T) {
	tests := []struct {
		segment string
		want    string
		wantErr bool
	}{
		{"2025-26_02_001", "2025-26/02/001", false},
		{"2025-26_02_1", "2025-26/02/001", false},
		{"2025-99_02_001", "", true},
		{"2025-26_13_001", "", true},
		{"garbage", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/rakes/"+tt.segment, nil)
			r.SetPathValue("serial", tt.segment)
			got, err := PathSerial(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, services.ErrInvalidSerial) {
				t.Errorf("err = %v, want ErrInvalidSerial", err)
			}
			if got != tt.want {
				t.Errorf("serial = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueryScope(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?indent_number=%20A7%20", nil)
	if got := QueryScope(r); got.ID() != "A7" {
		t.Errorf("scope = %s, want indent A7", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/x", nil)
	if !QueryScope(r).IsParent() {
		t.Error("missing indent_number should be the parent scope")
	}
}

func TestQuerySeconds(t *testing.T) {
	tests := []struct {
		query string
		want  time.Duration
	}{
		{"", time.Hour},
		{"since_seconds=90", 90 * time.Second},
		{"since_seconds=-5", time.Hour},
		{"since_seconds=abc", time.Hour},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := QuerySeconds(r, "since_seconds", time.Hour); got != tt.want {
			t.Errorf("QuerySeconds(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
