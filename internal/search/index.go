// Package search provides a simple, deterministic, concurrency-safe in-memory
// index over the question bank. The interview engine uses it to pull
// reference questions relevant to a job title and its examination points.
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// entry's token set: score = |Q ∩ E| / |Q ∪ E|.
package search

import (
	"regexp"
	"sort"
	"strings"
)

// Result is a ranked bank entry with its similarity score.
type Result struct {
	Snippet string
	Score   float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// Option configures index construction.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{stopwords: defaultStopwords, maxDocs: 0}
}

// WithStopwords replaces the default stop-word set.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

// WithMaxDocs caps the number of indexed entries (0 = unlimited).
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

type doc struct {
	text   string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// Entry is one indexable question-bank item. Text is what TopK returns as
// the snippet; Tags (job title, examination points) join the token set so a
// query naming them matches even when the question text does not.
type Entry struct {
	Text string
	Tags []string
}

// NewIndex builds an immutable Index from bank entries.
func NewIndex(entries []Entry, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		tokens := tokenize(text, cfg.stopwords)
		for _, tag := range e.Tags {
			for t := range tokenize(tag, cfg.stopwords) {
				tokens[t] = struct{}{}
			}
		}
		if len(tokens) == 0 {
			continue
		}
		docs = append(docs, doc{text: text, tokens: tokens})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k entries ranked by Jaccard similarity to query.
// Entries with zero overlap are omitted. Ties break by index order, so
// results are deterministic for a fixed bank.
func (ix *index) TopK(query string, k int) []Result {
	if k <= 0 || len(ix.docs) == 0 {
		return nil
	}
	q := tokenize(query, ix.cfg.stopwords)
	if len(q) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	hits := make([]scored, 0, len(ix.docs))
	for i, d := range ix.docs {
		inter := 0
		for t := range q {
			if _, ok := d.tokens[t]; ok {
				inter++
			}
		}
		if inter == 0 {
			continue
		}
		union := len(q) + len(d.tokens) - inter
		hits = append(hits, scored{pos: i, score: float64(inter) / float64(union)})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].pos < hits[b].pos
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{Snippet: ix.docs[h.pos].text, Score: h.score}
	}
	return out
}

// tokenRE matches Unicode letter/digit runs.
var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range tokenRE.FindAllString(strings.ToLower(s), -1) {
		if _, skip := stop[t]; skip {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

// defaultStopwords keeps queries focused on domain terms.
var defaultStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"how": {}, "what": {}, "which": {}, "do": {}, "does": {}, "you": {}, "your": {},
}
