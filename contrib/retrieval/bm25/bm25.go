// Package bm25 implements retrieval.Retriever over an in-memory BM25
// index. Useful for tests, demos and small corpora that fit in memory.
package bm25

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sweetpotato0/deliberate/retrieval"
)

// Index is a scope-partitioned BM25 index of course passages.
type Index struct {
	mu     sync.RWMutex
	scopes map[string]*scopeIndex
	limit  int
}

// Option customises the index.
type Option func(*Index)

// WithLimit caps how many passages one retrieval returns (default 10).
func WithLimit(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.limit = n
		}
	}
}

// New creates an empty index.
func New(opts ...Option) *Index {
	ix := &Index{
		scopes: make(map[string]*scopeIndex),
		limit:  10,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

type entry struct {
	text     string
	source   string
	metadata map[string]string
	length   int
}

type scopeIndex struct {
	entries     []entry
	docFreq     map[string]int
	postings    map[string]map[int]int
	totalLength int
	k1          float64
	b           float64
}

func newScopeIndex() *scopeIndex {
	return &scopeIndex{
		docFreq:  make(map[string]int),
		postings: make(map[string]map[int]int),
		k1:       1.6,
		b:        0.75,
	}
}

// Add indexes one passage under the given scope.
func (ix *Index) Add(scopeID, source, text string, metadata map[string]string) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	si, ok := ix.scopes[scopeID]
	if !ok {
		si = newScopeIndex()
		ix.scopes[scopeID] = si
	}

	id := len(si.entries)
	si.entries = append(si.entries, entry{
		text:     text,
		source:   source,
		metadata: metadata,
		length:   len(terms),
	})
	si.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := si.postings[term]; !ok {
			si.postings[term] = make(map[int]int)
		}
		si.postings[term][id]++
		if _, dup := seen[term]; !dup {
			si.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

// Retrieve implements retrieval.Retriever. Unknown scopes and queries
// matching nothing both return an empty slice.
func (ix *Index) Retrieve(ctx context.Context, query, scopeID string) ([]retrieval.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := unique(tokenize(query))
	if len(terms) == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	si, ok := ix.scopes[scopeID]
	if !ok || len(si.entries) == 0 {
		return nil, nil
	}

	avgLen := float64(si.totalLength) / float64(len(si.entries))
	scores := make(map[int]float64)
	for _, term := range terms {
		postings := si.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := si.docFreq[term]
		idf := math.Log((float64(len(si.entries))-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for id, tf := range postings {
			docLen := float64(si.entries[id].length)
			numerator := float64(tf) * (si.k1 + 1)
			denominator := float64(tf) + si.k1*(1-si.b+si.b*(docLen/avgLen))
			scores[id] += idf * (numerator / denominator)
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	type hit struct {
		id    int
		score float64
	}
	hits := make([]hit, 0, len(scores))
	maxScore := 0.0
	for id, score := range scores {
		hits = append(hits, hit{id, score})
		if score > maxScore {
			maxScore = score
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > ix.limit {
		hits = hits[:ix.limit]
	}

	passages := make([]retrieval.Passage, 0, len(hits))
	for _, h := range hits {
		e := si.entries[h.id]
		passages = append(passages, retrieval.Passage{
			Text:     e.text,
			Score:    h.score / maxScore, // Normalized so the best hit scores 1.
			Source:   e.source,
			Metadata: e.metadata,
		})
	}
	return passages, nil
}

var termRegex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func tokenize(content string) []string {
	return termRegex.FindAllString(strings.ToLower(content), -1)
}

func unique(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
