package search

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"contactdir/internal/gateway/entity"
	"contactdir/internal/logging"
)

const DefaultCacheSize = 512

// Result is an Entry with its score; lower scores rank first.
type Result struct {
	Entry
	Score float64 `json:"score"`
}

type Options struct {
	// ExcludedIDs defaults to DefaultExcludedIDs when nil.
	ExcludedIDs []string
	// Threshold defaults to DefaultThreshold when zero.
	Threshold float64
	// CacheSize bounds memoized queries. Negative disables the cache.
	CacheSize int
	Logger    *zap.Logger
}

// Engine is an immutable index plus a query cache. Safe for concurrent use.
type Engine struct {
	entries   []Entry
	threshold float64
	weights   []float64
	cache     *lru.Cache[string, []Result]
}

// New builds the index once from companies.
func New(companies []entity.Company, opts Options) (*Engine, error) {
	excluded := opts.ExcludedIDs
	if excluded == nil {
		excluded = DefaultExcludedIDs
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	e := &Engine{
		entries:   BuildIndex(companies, excluded),
		threshold: threshold,
		weights:   normalizedWeights(),
	}
	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[string, []Result](size)
		if err != nil {
			return nil, fmt.Errorf("search cache: %w", err)
		}
		e.cache = cache
	}
	logging.OrNop(opts.Logger).Named("search").Info("search index built",
		zap.Int("companies", len(companies)),
		zap.Int("entries", len(e.entries)))
	return e, nil
}

// Len is the number of indexed entries.
func (e *Engine) Len() int { return len(e.entries) }

// Entries returns a copy of the index in build order. Handles are copied too.
func (e *Engine) Entries() []Entry {
	out := make([]Entry, len(e.entries))
	for i, entry := range e.entries {
		out[i] = entry.clone()
	}
	return out
}

// Search returns matching entries, best first, without duplicate
// type/company/name triples. Blank queries return nothing; queries longer
// than MaxQueryRunes are truncated.
func (e *Engine) Search(query string) []Result {
	q := normalizeQuery(query)
	if q == "" {
		return []Result{}
	}
	if e.cache != nil {
		if hit, ok := e.cache.Get(q); ok {
			return cloneResults(hit)
		}
	}

	type ranked struct {
		Result
		nameDist int
	}
	var scored []ranked
	for _, entry := range e.entries {
		if s, ok := scoreEntry(q, entry, e.threshold, e.weights); ok {
			scored = append(scored, ranked{Result: Result{Entry: entry, Score: s}, nameDist: nameDistance(q, entry.Name)})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score < scored[j].Score
		}
		return scored[i].nameDist < scored[j].nameDist
	})

	results := make([]Result, len(scored))
	for i, r := range scored {
		results[i] = r.Result
	}
	out := dedupe(results)
	if e.cache != nil {
		e.cache.Add(q, out)
	}
	return cloneResults(out)
}

// cloneResults copies rs deep enough that callers cannot reach the index or
// the cache through Handles.
func cloneResults(rs []Result) []Result {
	out := make([]Result, len(rs))
	for i, r := range rs {
		out[i] = Result{Entry: r.Entry.clone(), Score: r.Score}
	}
	return out
}

func dedupe(in []Result) []Result {
	seen := make(map[string]struct{}, len(in))
	out := make([]Result, 0, len(in))
	for _, r := range in {
		key := string(r.Type) + "\x00" + r.CompanyID + "\x00" + r.Name
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// MaxQueryRunes bounds the pattern the scorer sees.
const MaxQueryRunes = 64

func normalizeQuery(q string) string {
	q = strings.ToLower(strings.Join(strings.Fields(q), " "))
	if r := []rune(q); len(r) > MaxQueryRunes {
		q = strings.TrimSpace(string(r[:MaxQueryRunes]))
	}
	return q
}
