package retrieval

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenizer splits passage text into comparable tokens for the overlap
// check. The default uses the cl100k_base BPE when its vocabulary is
// available, falling back to whitespace fields so dedup keeps working
// offline.
type tokenizer func(text string) []string

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func defaultTokenizer(text string) []string {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return strings.Fields(strings.ToLower(text))
	}
	ids := enc.Encode(text, nil, nil)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = enc.Decode([]int{id})
	}
	return out
}

// overlapRatio reports which share of candidate's distinct tokens also
// appear in existing. Two passages with zero shared tokens score 0.
func overlapRatio(tok tokenizer, candidate, existing string) float64 {
	candTokens := uniqueTokens(tok(candidate))
	if len(candTokens) == 0 {
		return 0
	}
	existingSet := make(map[string]struct{})
	for _, t := range tok(existing) {
		existingSet[strings.TrimSpace(t)] = struct{}{}
	}
	shared := 0
	for t := range candTokens {
		if _, ok := existingSet[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(candTokens))
}

func uniqueTokens(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// mergeDedup appends the alternative passages onto the initial ones,
// dropping any alternative whose token overlap with an already kept
// passage exceeds threshold. First-seen passages win.
func mergeDedup(tok tokenizer, initial, alternative []Passage, threshold float64) []Passage {
	merged := make([]Passage, len(initial))
	copy(merged, initial)

	for _, cand := range alternative {
		duplicate := false
		for _, kept := range merged {
			if overlapRatio(tok, cand.Text, kept.Text) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			merged = append(merged, cand)
		}
	}
	return merged
}
