package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cardcat/internal/card"
)

// FakeCatalog is an in-memory catalog served over httptest.
type FakeCatalog struct {
	Server   *httptest.Server
	PageSize int

	mu       sync.Mutex
	records  []card.Record
	calls    map[string]int
	searches []string
	failures []*failure
}

type failure struct {
	prefix     string
	status     int
	retryAfter string
	remaining  int
}

// NewFakeCatalog starts a fake catalog holding recs and registers cleanup.
func NewFakeCatalog(t testing.TB, recs ...card.Record) *FakeCatalog {
	t.Helper()

	f := &FakeCatalog{
		PageSize: 175,
		calls:    map[string]int{},
	}
	f.Add(recs...)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /cards/collection", f.handleCollection)
	mux.HandleFunc("GET /cards/search", f.handleSearch)
	mux.HandleFunc("GET /cards/named", f.handleNamed)
	mux.HandleFunc("GET /cards/{set}/{number}", f.handlePrinting)
	mux.HandleFunc("GET /cards/{set}/{number}/{lang}", f.handlePrinting)

	f.Server = httptest.NewServer(f.intercept(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the server base URL.
func (f *FakeCatalog) URL() string {
	return f.Server.URL
}

// Add appends records to the catalog.
func (f *FakeCatalog) Add(recs ...card.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recs...)
}

// Calls returns how many requests reached path (e.g. "/cards/search").
// Printing lookups are counted under "/cards/printing".
func (f *FakeCatalog) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// TotalCalls returns the number of requests served.
func (f *FakeCatalog) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Searches returns every search expression received, in order.
func (f *FakeCatalog) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

// Fail answers the next times requests whose path starts with prefix with
// status. retryAfter is sent as the Retry-After header when non-empty.
func (f *FakeCatalog) Fail(prefix string, status, times int, retryAfter string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{prefix: prefix, status: status, retryAfter: retryAfter, remaining: times})
}

func (f *FakeCatalog) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		key := r.URL.Path
		if strings.Count(key, "/") >= 3 {
			key = "/cards/printing"
		}
		f.calls[key]++
		var injected *failure
		for _, fl := range f.failures {
			if fl.remaining > 0 && strings.HasPrefix(r.URL.Path, fl.prefix) {
				fl.remaining--
				injected = fl
				break
			}
		}
		f.mu.Unlock()

		if injected != nil {
			if injected.retryAfter != "" {
				w.Header().Set("Retry-After", injected.retryAfter)
			}
			writeCatalogError(w, injected.status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type identifier struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Set             string `json:"set"`
	CollectorNumber string `json:"collector_number"`
}

func (f *FakeCatalog) handleCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifiers []identifier `json:"identifiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeCatalogError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.Identifiers) > 75 {
		writeCatalogError(w, http.StatusUnprocessableEntity, "too many identifiers")
		return
	}

	f.mu.Lock()
	records := append([]card.Record(nil), f.records...)
	f.mu.Unlock()

	data := []card.Record{}
	notFound := []identifier{}
	for _, id := range body.Identifiers {
		if rec, ok := matchIdentifier(records, id); ok {
			data = append(data, rec)
		} else {
			notFound = append(notFound, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object":    "list",
		"data":      data,
		"not_found": notFound,
	})
}

func matchIdentifier(records []card.Record, id identifier) (card.Record, bool) {
	for _, rec := range records {
		if rec.Lang != card.DefaultLang {
			continue
		}
		switch {
		case id.ID != "":
			if rec.ID == id.ID {
				return rec, true
			}
		case id.Set != "" && id.CollectorNumber != "":
			if strings.EqualFold(rec.Set, id.Set) && strings.EqualFold(rec.CollectorNumber, id.CollectorNumber) {
				return rec, true
			}
		case id.Name != "":
			if id.Set != "" && !strings.EqualFold(rec.Set, id.Set) {
				continue
			}
			if nameMatches(rec, id.Name) {
				return rec, true
			}
		}
	}
	return card.Record{}, false
}

func nameMatches(rec card.Record, name string) bool {
	if card.SameName(rec.Name, name) {
		return true
	}
	for _, face := range rec.FaceNames() {
		if card.SameName(face, name) {
			return true
		}
	}
	return false
}

var (
	exactNamePattern = regexp.MustCompile(`!"((?:[^"\\]|\\.)*)"`)
	termPattern      = regexp.MustCompile(`\b(set|cn|lang):("[^"]*"|\S+)`)
)

type searchTerms struct {
	name, set, number, lang string
}

func parseSearch(q string) searchTerms {
	var terms searchTerms
	if m := exactNamePattern.FindStringSubmatch(q); m != nil {
		terms.name = strings.ReplaceAll(m[1], `\"`, `"`)
		q = strings.Replace(q, m[0], "", 1)
	}
	for _, m := range termPattern.FindAllStringSubmatch(q, -1) {
		value := strings.Trim(m[2], `"`)
		switch m[1] {
		case "set":
			terms.set = value
		case "cn":
			terms.number = value
		case "lang":
			terms.lang = value
		}
	}
	if terms.lang == "" {
		terms.lang = card.DefaultLang
	}
	return terms
}

func (f *FakeCatalog) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := query.Get("q")
	f.mu.Lock()
	f.searches = append(f.searches, q)
	records := append([]card.Record(nil), f.records...)
	pageSize := f.PageSize
	f.mu.Unlock()

	terms := parseSearch(q)
	matches := make([]card.Record, 0)
	for _, rec := range records {
		if terms.name != "" && !nameMatches(rec, terms.name) {
			continue
		}
		if terms.set != "" && !strings.EqualFold(rec.Set, terms.set) {
			continue
		}
		if terms.number != "" && !strings.EqualFold(rec.CollectorNumber, terms.number) {
			continue
		}
		if terms.lang != "any" && !strings.EqualFold(rec.Lang, terms.lang) {
			continue
		}
		matches = append(matches, rec)
	}
	if query.Get("order") == "released" {
		desc := query.Get("dir") != "asc"
		sort.SliceStable(matches, func(i, j int) bool {
			if desc {
				return matches[i].ReleasedAt > matches[j].ReleasedAt
			}
			return matches[i].ReleasedAt < matches[j].ReleasedAt
		})
	}
	if len(matches) == 0 {
		writeCatalogError(w, http.StatusNotFound, "no cards found")
		return
	}

	page := 1
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		page = p
	}
	if pageSize <= 0 {
		pageSize = 175
	}
	start := (page - 1) * pageSize
	if start >= len(matches) {
		writeCatalogError(w, http.StatusNotFound, "page out of range")
		return
	}
	end := min(start+pageSize, len(matches))
	body := map[string]any{
		"object":      "list",
		"total_cards": len(matches),
		"has_more":    end < len(matches),
		"data":        matches[start:end],
	}
	if end < len(matches) {
		next := *r.URL
		next.Scheme = "http"
		next.Host = r.Host
		values := next.Query()
		values.Set("page", strconv.Itoa(page+1))
		next.RawQuery = values.Encode()
		body["next_page"] = next.String()
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *FakeCatalog) handleNamed(w http.ResponseWriter, r *http.Request) {
	exact := r.URL.Query().Get("exact")
	f.mu.Lock()
	records := append([]card.Record(nil), f.records...)
	f.mu.Unlock()
	for _, rec := range records {
		if rec.Lang == card.DefaultLang && nameMatches(rec, exact) {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeCatalogError(w, http.StatusNotFound, "no card named "+exact)
}

func (f *FakeCatalog) handlePrinting(w http.ResponseWriter, r *http.Request) {
	set, number, lang := r.PathValue("set"), r.PathValue("number"), r.PathValue("lang")
	if lang == "" {
		lang = card.DefaultLang
	}
	f.mu.Lock()
	records := append([]card.Record(nil), f.records...)
	f.mu.Unlock()
	for _, rec := range records {
		if strings.EqualFold(rec.Set, set) && strings.EqualFold(rec.CollectorNumber, number) && strings.EqualFold(rec.Lang, lang) {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeCatalogError(w, http.StatusNotFound, fmt.Sprintf("no printing %s/%s/%s", set, number, lang))
}

func writeCatalogError(w http.ResponseWriter, status int, details string) {
	writeJSON(w, status, map[string]any{"object": "error", "status": status, "details": details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
