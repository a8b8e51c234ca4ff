package quote

import (
	"encoding/json"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Quote is an immutable snapshot of one symbol's market state, normalized from
// the upstream chart payload. A fresh Quote is produced on every fetch.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Exchange      string  `json:"exchange"`
	Currency      string  `json:"currency"`
	Price         float64 `json:"price"`
	DayHigh       float64 `json:"day_high"`
	DayLow        float64 `json:"day_low"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percent_change"`
	Volume        int64   `json:"volume"`
}

// Parse extracts a Quote from a raw chart API payload. It fails soft: any
// structural anomaly logs which piece was missing and returns nil instead of
// propagating an error. label identifies the query for diagnostics.
func Parse(payload []byte, label string, log *logrus.Logger) *Quote {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		log.Warnf("quote %s: malformed payload: %v", label, err)
		return nil
	}

	var chart struct {
		Result []map[string]json.RawMessage `json:"result"`
	}
	rawChart, ok := root["chart"]
	if !ok {
		log.Warnf("quote %s: response missing 'chart' object", label)
		return nil
	}
	if err := json.Unmarshal(rawChart, &chart); err != nil || len(chart.Result) == 0 {
		log.Warnf("quote %s: no 'result' entries in chart", label)
		return nil
	}

	rawMeta, ok := chart.Result[0]["meta"]
	if !ok {
		log.Warnf("quote %s: result missing 'meta' block", label)
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		log.Warnf("quote %s: malformed 'meta' block: %v", label, err)
		return nil
	}

	q := &Quote{Symbol: label}
	q.Currency = stringField(meta, "currency", "Unknown")
	q.Exchange = stringField(meta, "exchangeName", "Unknown")
	q.Name = stringField(meta, "symbol", stringField(meta, "shortName", label))

	q.Price = floatField(meta, "regularMarketPrice", 0)
	q.DayHigh = floatField(meta, "regularMarketDayHigh", q.Price)
	q.DayLow = floatField(meta, "regularMarketDayLow", q.Price)
	q.Volume = intField(meta, "regularMarketVolume", 0)

	// Previous close fallback chain: chartPreviousClose, then previousClose,
	// then reconstructed from the provided market change.
	prevClose := floatField(meta, "chartPreviousClose", 0)
	if prevClose == 0 {
		if _, ok := meta["previousClose"]; ok {
			prevClose = floatField(meta, "previousClose", q.Price)
		}
	}
	if prevClose == 0 && q.Price != 0 {
		if _, ok := meta["regularMarketChange"]; ok {
			prevClose = q.Price - floatField(meta, "regularMarketChange", 0)
		}
	}

	_, hasChange := meta["regularMarketChange"]
	_, hasPercent := meta["regularMarketChangePercent"]
	switch {
	case hasChange && hasPercent:
		q.Change = floatField(meta, "regularMarketChange", 0)
		// the upstream percent field is fractional
		q.PercentChange = floatField(meta, "regularMarketChangePercent", 0) * 100
	case prevClose > 0:
		q.Change = q.Price - prevClose
		q.PercentChange = q.Change / prevClose * 100
	}

	log.Debugf("quote %s: price=%g change=%g (%g%%)", label, q.Price, q.Change, q.PercentChange)
	return q
}

// stringField reads a string-valued key, stringifying numbers, falling back to
// def when the key is absent or null.
func stringField(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return def
	}
}

// floatField reads a numeric key, accepting both numbers and numeric strings.
func floatField(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

func intField(m map[string]any, key string, def int64) int64 {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return def
}
