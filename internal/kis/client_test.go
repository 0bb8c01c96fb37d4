package kis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kis-trading-bot/internal/market"
)

func TestTokenManagerCachesUntilExpiry(t *testing.T) {
	var issued int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/tokenP" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		issued++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok",
			"expires_in":   86400,
		})
	}))
	defer srv.Close()

	tm := NewTokenManager(srv.URL, "key", "secret", 5*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := tm.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok" {
			t.Fatalf("token = %q", tok)
		}
	}
	if issued != 1 {
		t.Errorf("token issued %d times, want 1", issued)
	}

	tm.Invalidate()
	if _, err := tm.Token(ctx); err != nil {
		t.Fatalf("Token after invalidate: %v", err)
	}
	if issued != 2 {
		t.Errorf("token issued %d times after invalidate, want 2", issued)
	}
}

func TestAPIErrorSurfacesBrokerMessage(t *testing.T) {
	h := apiHeader{RtCd: "1", MsgCd: "APBK0919", Msg1: "주문가능수량 초과 "}
	err := h.err()
	if err == nil {
		t.Fatal("want error for rt_cd 1")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %T", err)
	}
	if apiErr.Code != "APBK0919" {
		t.Errorf("code = %s", apiErr.Code)
	}

	if h := (apiHeader{RtCd: "0"}); h.err() != nil {
		t.Error("rt_cd 0 should not error")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&APIError{Code: "X", Message: "거래정지 종목입니다"}, true},
		{&APIError{Code: "X", Message: "상장폐지"}, true},
		{errors.New("symbol DELISTED from exchange"), true},
		{errors.New("connection reset by peer"), false},
		{&APIError{Code: "X", Message: "일시적 오류"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsPermanent(tt.err); got != tt.want {
			t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMarketForExchange(t *testing.T) {
	tests := []struct {
		exchange string
		want     market.ID
	}{
		{"TKSE", market.JP},
		{"SHAA", market.CN},
		{"SZAA", market.CN},
		{"SEHK", market.HK},
		{"NASD", market.US},
		{"NYSE", market.US},
		{"KRX", market.KR},
		{"", market.KR},
	}
	for _, tt := range tests {
		if got := marketForExchange(tt.exchange); got != tt.want {
			t.Errorf("marketForExchange(%q) = %s, want %s", tt.exchange, got, tt.want)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if got := parseFloat(" 123.45 "); got != 123.45 {
		t.Errorf("parseFloat = %f", got)
	}
	if got := parseFloat(""); got != 0 {
		t.Errorf("parseFloat empty = %f", got)
	}
	if got := parseInt("100.0000"); got != 100 {
		t.Errorf("parseInt with decimals = %d", got)
	}
	if got := parseInt("notanumber"); got != 0 {
		t.Errorf("parseInt garbage = %d", got)
	}
}

func TestDefaultLotSizes(t *testing.T) {
	tests := []struct {
		exchange string
		want     int64
	}{
		{"TKSE", 100},
		{"SHAA", 100},
		{"SZAA", 100},
		{"SEHK", 100},
		{"NASD", 1},
		{"KRX", 1},
	}
	for _, tt := range tests {
		if got := DefaultLotSize(tt.exchange); got != tt.want {
			t.Errorf("DefaultLotSize(%s) = %d, want %d", tt.exchange, got, tt.want)
		}
	}
}
