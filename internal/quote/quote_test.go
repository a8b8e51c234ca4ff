package quote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"twstock/internal/fetch"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func metaPayload(meta string) []byte {
	return []byte(fmt.Sprintf(`{"chart":{"result":[{"meta":%s}],"error":null}}`, meta))
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseFullMeta(t *testing.T) {
	payload := metaPayload(`{
		"currency": "TWD",
		"exchangeName": "TAI",
		"symbol": "2330.TW",
		"regularMarketPrice": 500.0,
		"regularMarketDayHigh": 505.0,
		"regularMarketDayLow": 495.0,
		"regularMarketChange": 5.0,
		"regularMarketChangePercent": 0.0101,
		"regularMarketVolume": 23456789
	}`)
	q := Parse(payload, "2330.TW", testLogger())
	if q == nil {
		t.Fatal("Parse returned nil for a valid payload")
	}
	if q.Currency != "TWD" || q.Exchange != "TAI" || q.Name != "2330.TW" {
		t.Fatalf("metadata mismatch: %+v", q)
	}
	if q.Price != 500 || q.DayHigh != 505 || q.DayLow != 495 {
		t.Fatalf("prices mismatch: %+v", q)
	}
	if q.Change != 5 || !almostEqual(q.PercentChange, 1.01) {
		t.Fatalf("change mismatch: change=%g percent=%g", q.Change, q.PercentChange)
	}
	if q.Volume != 23456789 {
		t.Fatalf("volume = %d", q.Volume)
	}
}

func TestParseChangeDerivedFromPreviousClose(t *testing.T) {
	payload := metaPayload(`{
		"currency": "TWD",
		"regularMarketPrice": 510.0,
		"chartPreviousClose": 500.0
	}`)
	q := Parse(payload, "2330.TW", testLogger())
	if q == nil {
		t.Fatal("Parse returned nil")
	}
	if !almostEqual(q.Change, 10) {
		t.Fatalf("Change = %g, want 10", q.Change)
	}
	if !almostEqual(q.PercentChange, 2) {
		t.Fatalf("PercentChange = %g, want 2", q.PercentChange)
	}
}

func TestParsePreviousCloseFallbackField(t *testing.T) {
	payload := metaPayload(`{
		"regularMarketPrice": 102.0,
		"previousClose": 100.0
	}`)
	q := Parse(payload, "AAPL", testLogger())
	if q == nil {
		t.Fatal("Parse returned nil")
	}
	if !almostEqual(q.Change, 2) || !almostEqual(q.PercentChange, 2) {
		t.Fatalf("change=%g percent=%g, want 2/2", q.Change, q.PercentChange)
	}
}

func TestParseNoChangeData(t *testing.T) {
	payload := metaPayload(`{"regularMarketPrice": 100.0}`)
	q := Parse(payload, "AAPL", testLogger())
	if q == nil {
		t.Fatal("Parse returned nil")
	}
	if q.Change != 0 || q.PercentChange != 0 {
		t.Fatalf("expected zero change, got %g/%g", q.Change, q.PercentChange)
	}
	if q.DayHigh != 100 || q.DayLow != 100 {
		t.Fatalf("day range should default to price, got %g-%g", q.DayLow, q.DayHigh)
	}
}

func TestParseNumericStrings(t *testing.T) {
	payload := metaPayload(`{
		"regularMarketPrice": "123.5",
		"regularMarketVolume": "42000"
	}`)
	q := Parse(payload, "AAPL", testLogger())
	if q == nil {
		t.Fatal("Parse returned nil")
	}
	if q.Price != 123.5 {
		t.Fatalf("Price = %g, want 123.5", q.Price)
	}
	if q.Volume != 42000 {
		t.Fatalf("Volume = %d, want 42000", q.Volume)
	}
}

func TestParseNamePrecedence(t *testing.T) {
	q := Parse(metaPayload(`{"shortName":"Taiwan Semi","regularMarketPrice":1}`), "2330.TW", testLogger())
	if q == nil || q.Name != "Taiwan Semi" {
		t.Fatalf("expected shortName fallback, got %+v", q)
	}
	q = Parse(metaPayload(`{"regularMarketPrice":1}`), "2330.TW", testLogger())
	if q == nil || q.Name != "2330.TW" {
		t.Fatalf("expected query symbol fallback, got %+v", q)
	}
}

func TestParseStructuralAnomalies(t *testing.T) {
	cases := map[string][]byte{
		"not json":      []byte("<html>nope</html>"),
		"missing chart": []byte(`{"finance":{}}`),
		"empty result":  []byte(`{"chart":{"result":[]}}`),
		"missing meta":  []byte(`{"chart":{"result":[{"timestamp":[]}]}}`),
	}
	for name, payload := range cases {
		if q := Parse(payload, "X", testLogger()); q != nil {
			t.Fatalf("%s: expected nil, got %+v", name, q)
		}
	}
}

func TestServiceFetchMapsSecondaryExchange(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write(metaPayload(`{"regularMarketPrice": 55.0, "currency":"TWD"}`))
	}))
	defer srv.Close()

	svc := NewService(fetch.New(testLogger()), srv.URL+"/v8/finance/chart/%s", testLogger())
	q, err := svc.Fetch(context.Background(), "6446.TWO")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotPath != "/v8/finance/chart/6446.OOTC" {
		t.Fatalf("queried path %q, want the .OOTC form", gotPath)
	}
	if q.Symbol != "6446.TWO" {
		t.Fatalf("Quote.Symbol = %q, want internal form retained", q.Symbol)
	}
	if q.Price != 55 {
		t.Fatalf("Price = %g", q.Price)
	}
}

func TestServiceFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc := NewService(fetch.New(testLogger()), srv.URL+"/%s", testLogger())
	_, err := svc.Fetch(context.Background(), "2330.TW")
	if !errors.Is(err, fetch.ErrRateLimited) {
		t.Fatalf("expected rate limit to propagate distinctly, got %v", err)
	}
}

func TestServiceFetchUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewService(fetch.New(testLogger()), srv.URL+"/%s", testLogger())
	_, err := svc.Fetch(context.Background(), "NOPE")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFormatVolume(t *testing.T) {
	cases := map[int64]string{
		0:             "N/A",
		999:           "999",
		1_500:         "1.50K",
		2_340_000:     "2.34M",
		5_600_000_000: "5.60B",
	}
	for in, want := range cases {
		if got := FormatVolume(in); got != want {
			t.Fatalf("FormatVolume(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestCurrencySymbol(t *testing.T) {
	if CurrencySymbol("TWD") != "NT$" || CurrencySymbol("usd") != "$" || CurrencySymbol("EUR") != "EUR " {
		t.Fatal("currency symbol mapping broken")
	}
}
