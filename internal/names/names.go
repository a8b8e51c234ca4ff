package names

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"twstock/internal/fetch"
	"twstock/internal/symbol"

	"github.com/PuerkitoBio/goquery"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Directory endpoints listing (code, localized name) pairs for the primary and
// secondary exchanges. Served in Big5.
const (
	DefaultTWSEURL = "https://isin.twse.com.tw/isin/C_public.jsp?strMode=2"
	DefaultTPEXURL = "https://isin.twse.com.tw/isin/C_public.jsp?strMode=4"

	directoryCharset = "big5"

	// directory rows separate code from name with an ideographic space
	codeNameSeparator = "　"
)

// Resolver maintains the symbol to localized-name cache. It is populated from
// the cache file at startup, by a single background bulk scrape when the file
// was empty, and by on-demand single lookups. Safe for concurrent use.
type Resolver struct {
	file    string
	fetcher *fetch.Client
	twseURL string
	tpexURL string
	log     *logrus.Logger

	mu    sync.RWMutex
	names map[string]string

	saveMu sync.Mutex

	attempted atomic.Bool
	ready     atomic.Bool
	fetching  atomic.Bool
}

func New(file string, fetcher *fetch.Client, twseURL, tpexURL string, log *logrus.Logger) *Resolver {
	if twseURL == "" {
		twseURL = DefaultTWSEURL
	}
	if tpexURL == "" {
		tpexURL = DefaultTPEXURL
	}
	return &Resolver{
		file:    file,
		fetcher: fetcher,
		twseURL: twseURL,
		tpexURL: tpexURL,
		log:     log,
		names:   make(map[string]string),
	}
}

// Load reads the persisted cache file. A missing file is not an error; the
// cache simply starts empty. Any loaded entries mark the resolver Ready.
func (r *Resolver) Load() error {
	if _, err := os.Stat(r.file); os.IsNotExist(err) {
		r.log.Infof("name cache file %s does not exist yet", r.file)
		return nil
	}
	loaded, err := godotenv.Read(r.file)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.names = make(map[string]string, len(loaded))
	for k, v := range loaded {
		r.names[strings.ToUpper(k)] = v
	}
	count := len(r.names)
	r.mu.Unlock()

	r.log.Infof("loaded %d stock names from %s", count, r.file)
	if count > 0 {
		r.ready.Store(true)
		r.attempted.Store(true)
	}
	return nil
}

// Reload discards the in-memory cache and re-reads the file.
func (r *Resolver) Reload() error {
	r.mu.Lock()
	r.names = make(map[string]string)
	r.mu.Unlock()
	return r.Load()
}

// EnsureBackgroundFetch launches the one-time bulk directory scrape if the
// cache is still empty and no fetch has been attempted this run. The swap on
// the attempted flag guarantees at most one launch per process lifetime.
func (r *Resolver) EnsureBackgroundFetch(ctx context.Context) {
	if r.Len() > 0 {
		return
	}
	if !r.attempted.CompareAndSwap(false, true) {
		return
	}
	r.fetching.Store(true)
	r.log.Info("name cache is empty, fetching directories in the background")
	go func() {
		defer r.fetching.Store(false)
		r.FetchAll(ctx)
	}()
}

// FetchAll scrapes both exchange directories and merges every discovered pair
// into the cache, persisting once at the end. Marks Ready if anything was
// found. Also used directly by the namesync operator tool.
func (r *Resolver) FetchAll(ctx context.Context) {
	before := r.Len()
	r.scrapeDirectory(ctx, r.twseURL, ".TW", "TWSE listed")
	r.scrapeDirectory(ctx, r.tpexURL, ".TWO", "TPEX listed")

	total := r.Len()
	if total > before {
		r.save()
	}
	if total > 0 {
		r.ready.Store(true)
	}
	r.log.Infof("directory fetch complete, %d names cached (%d new)", total, total-before)
}

func (r *Resolver) scrapeDirectory(ctx context.Context, url, suffix, label string) {
	html, err := r.fetcher.Get(ctx, url, directoryCharset, label)
	if err != nil {
		r.log.Warnf("directory scrape %s failed: %v", label, err)
		return
	}

	found := 0
	for code, name := range parseDirectory(html) {
		if r.put(code+suffix, name) {
			found++
		}
	}
	r.log.Infof("directory %s: %d names added or updated", label, found)
}

// parseDirectory extracts (code, name) pairs from a directory HTML table.
// Only rows whose first cell is "<code>　<name>" with a 4-6 digit code
// are accepted.
func parseDirectory(html string) map[string]string {
	pairs := make(map[string]string)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return pairs
	}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return
		}
		text := strings.TrimSpace(cell.Text())
		code, name, ok := strings.Cut(text, codeNameSeparator)
		if !ok {
			return
		}
		code = strings.TrimSpace(code)
		name = strings.TrimSpace(name)
		if symbol.IsCode(code) && name != "" {
			pairs[code] = name
		}
	})
	return pairs
}

// ResolveOne re-scrapes the directory responsible for sym and returns its
// localized name. Only symbols on the two known exchanges can be resolved;
// everything else misses immediately. Does not mark the resolver Ready.
func (r *Resolver) ResolveOne(ctx context.Context, sym string) (string, bool) {
	if !symbol.IsTaiwan(sym) {
		return "", false
	}
	url := r.twseURL
	label := "single TWSE lookup " + sym
	if strings.HasSuffix(sym, ".TWO") || strings.HasSuffix(sym, ".OOTC") {
		url = r.tpexURL
		label = "single TPEX lookup " + sym
	}

	html, err := r.fetcher.Get(ctx, url, directoryCharset, label)
	if err != nil {
		r.log.Warnf("%s failed: %v", label, err)
		return "", false
	}

	code := symbol.Code(sym)
	name, ok := parseDirectory(html)[code]
	if !ok {
		r.log.Infof("no directory entry for %s", sym)
		return "", false
	}
	return name, true
}

// Add upserts a name under the uppercased symbol key and writes the cache
// through to disk, but only when the value is new or changed. Re-adding an
// identical name is a no-op with no disk write.
func (r *Resolver) Add(sym, name string) {
	sym = strings.TrimSpace(sym)
	name = strings.TrimSpace(name)
	if sym == "" || name == "" {
		return
	}
	if r.put(sym, name) {
		r.log.Infof("cached stock name %s = %s", strings.ToUpper(sym), name)
		r.save()
	}
}

// put stores the pair without persisting; reports whether anything changed.
func (r *Resolver) put(sym, name string) bool {
	key := strings.ToUpper(sym)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.names[key]; ok && existing == name {
		return false
	}
	r.names[key] = name
	return true
}

// Lookup returns the cached name for sym. The .OOTC alias is looked up under
// its canonical .TWO key.
func (r *Resolver) Lookup(sym string) (string, bool) {
	key := strings.ToUpper(symbol.NameKey(sym))
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[key]
	return name, ok
}

// Display returns the best available display name, falling back to the symbol
// itself. Readiness is advisory only; this works before the cache is populated.
func (r *Resolver) Display(sym string) string {
	if name, ok := r.Lookup(sym); ok {
		return name
	}
	return sym
}

func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Ready reports whether the cache has been populated at least once.
func (r *Resolver) Ready() bool { return r.ready.Load() }

// Fetching reports whether the background bulk scrape is still in flight.
// Callers should present name resolution as pending rather than final.
func (r *Resolver) Fetching() bool { return r.fetching.Load() }

func (r *Resolver) save() {
	r.mu.RLock()
	snapshot := make(map[string]string, len(r.names))
	for k, v := range r.names {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	if err := godotenv.Write(snapshot, r.file); err != nil {
		// in-memory cache stays authoritative; retried on the next mutation
		r.log.Warnf("could not save stock names to %s: %v", r.file, err)
	}
}
