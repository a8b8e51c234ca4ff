package names

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"twstock/internal/fetch"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/traditionalchinese"
)

const directoryHTML = `<html><body><table class="h4">
<tr><td>有價證券代號及名稱</td><td>ISIN</td></tr>
<tr><td>2330　台積電</td><td>TW0002330008</td></tr>
<tr><td>2317　鴻海</td><td>TW0002317005</td></tr>
<tr><td>股票</td><td></td></tr>
<tr><td>ABC　not a code</td><td></td></tr>
</table></body></html>`

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func big5Server(t *testing.T, html string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	raw, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte(html))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Write(raw)
	}))
}

func newResolver(t *testing.T, twseURL, tpexURL string) *Resolver {
	t.Helper()
	file := filepath.Join(t.TempDir(), "stock_names.env")
	return New(file, fetch.New(testLogger()), twseURL, tpexURL, testLogger())
}

func TestParseDirectory(t *testing.T) {
	pairs := parseDirectory(directoryHTML)
	if len(pairs) != 2 {
		t.Fatalf("parsed %d pairs, want 2: %v", len(pairs), pairs)
	}
	if pairs["2330"] != "台積電" || pairs["2317"] != "鴻海" {
		t.Fatalf("unexpected pairs: %v", pairs)
	}
}

func TestAddAndLookup(t *testing.T) {
	r := newResolver(t, "http://unused", "http://unused")
	r.Add("2330.tw", "台積電")

	name, ok := r.Lookup("2330.TW")
	if !ok || name != "台積電" {
		t.Fatalf("Lookup = %q, %v", name, ok)
	}
	// .OOTC aliases resolve through the canonical .TWO key
	r.Add("6446.TWO", "藥華藥")
	if name, ok := r.Lookup("6446.OOTC"); !ok || name != "藥華藥" {
		t.Fatalf("OOTC alias lookup = %q, %v", name, ok)
	}
	if got := r.Display("9999.TW"); got != "9999.TW" {
		t.Fatalf("Display miss = %q, want the symbol itself", got)
	}
}

func TestAddIdempotentWrite(t *testing.T) {
	r := newResolver(t, "http://unused", "http://unused")
	r.Add("2330.TW", "台積電")
	if _, err := os.Stat(r.file); err != nil {
		t.Fatalf("first Add did not persist: %v", err)
	}

	// an unchanged upsert must not touch the disk again
	os.Remove(r.file)
	r.Add("2330.TW", "台積電")
	if _, err := os.Stat(r.file); !os.IsNotExist(err) {
		t.Fatal("identical Add rewrote the cache file")
	}

	// a changed value writes through
	r.Add("2330.TW", "台灣積體電路")
	if _, err := os.Stat(r.file); err != nil {
		t.Fatalf("changed Add did not persist: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	r := newResolver(t, "http://unused", "http://unused")
	r.Add("2330.TW", "台積電")
	r.Add("6446.TWO", "藥華藥")

	reloaded := New(r.file, fetch.New(testLogger()), "http://unused", "http://unused", testLogger())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reloaded.Ready() {
		t.Fatal("resolver with loaded entries should be Ready")
	}
	for sym, want := range map[string]string{"2330.TW": "台積電", "6446.TWO": "藥華藥"} {
		if got, ok := reloaded.Lookup(sym); !ok || got != want {
			t.Fatalf("Lookup(%s) = %q, %v after reload", sym, got, ok)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	r := newResolver(t, "http://unused", "http://unused")
	if err := r.Load(); err != nil {
		t.Fatalf("missing cache file should not error: %v", err)
	}
	if r.Ready() {
		t.Fatal("empty cache must not be Ready")
	}
}

func TestEnsureBackgroundFetchAtMostOnce(t *testing.T) {
	const tpexHTML = `<html><body><table>
<tr><td>6446　藥華藥</td><td>TW0006446009</td></tr>
</table></body></html>`

	encode := func(html string) []byte {
		raw, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte(html))
		if err != nil {
			t.Fatalf("encode fixture: %v", err)
		}
		return raw
	}
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/tpex" {
			w.Write(encode(tpexHTML))
			return
		}
		w.Write(encode(directoryHTML))
	}))
	defer srv.Close()

	r := newResolver(t, srv.URL+"/twse", srv.URL+"/tpex")
	r.EnsureBackgroundFetch(context.Background())
	r.EnsureBackgroundFetch(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for r.Fetching() || r.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("background fetch did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := hits.Load(); got != 2 {
		t.Fatalf("directories fetched %d times, want exactly 2 (one pass)", got)
	}
	if !r.Ready() {
		t.Fatal("resolver should be Ready after a successful pass")
	}
	if name, ok := r.Lookup("2330.TW"); !ok || name != "台積電" {
		t.Fatalf("bulk fetch missed 2330.TW: %q, %v", name, ok)
	}
	if name, ok := r.Lookup("6446.TWO"); !ok || name != "藥華藥" {
		t.Fatalf("bulk fetch missed 6446.TWO: %q, %v", name, ok)
	}
}

func TestResolveOne(t *testing.T) {
	srv := big5Server(t, directoryHTML, nil)
	defer srv.Close()

	r := newResolver(t, srv.URL+"/twse", srv.URL+"/tpex")
	name, ok := r.ResolveOne(context.Background(), "2330.TW")
	if !ok || name != "台積電" {
		t.Fatalf("ResolveOne = %q, %v", name, ok)
	}
	if r.Ready() {
		t.Fatal("single lookup must not mark the resolver Ready")
	}
	if _, ok := r.ResolveOne(context.Background(), "AAPL"); ok {
		t.Fatal("international symbols cannot be resolved against the directories")
	}
}
