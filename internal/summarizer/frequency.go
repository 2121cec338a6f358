// Package summarizer picks salient sentences out of a passage, either by
// overall word frequency or by overlap with a query.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`[^.!?;]+(?:[.!?;]+|$)`)
)

// Summarizer ranks sentences with French and English stopwords filtered out.
type Summarizer struct {
	stopwords map[string]struct{}
}

func New() *Summarizer {
	return &Summarizer{stopwords: defaultStopwords()}
}

// Sentences splits text on terminal punctuation, dropping empty pieces.
func Sentences(text string) []string {
	var out []string
	for _, s := range sentencePattern.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Summarize keeps the maxSentences highest-scoring sentences in original order.
func (s *Summarizer) Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 2
	}
	sentences := Sentences(text)
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		total := 0.0
		for _, tok := range toks {
			total += freq[tok] / maxF
		}
		if len(toks) > 0 {
			total /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, total}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

// BestSentence returns the index of the sentence sharing the most distinct
// non-stopword tokens with query, or -1 when nothing overlaps.
func (s *Summarizer) BestSentence(sentences []string, query string) int {
	q := make(map[string]struct{})
	for _, tok := range s.tokens(query) {
		q[tok] = struct{}{}
	}
	best, bestScore := -1, 0
	for i, sent := range sentences {
		seen := make(map[string]struct{})
		score := 0
		for _, tok := range s.tokens(sent) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			if _, ok := q[tok]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (s *Summarizer) tokens(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		// French
		"le", "la", "les", "l", "un", "une", "des", "du", "de", "d", "et", "ou", "à", "au", "aux",
		"en", "dans", "par", "pour", "sur", "avec", "sans", "que", "qui", "quoi", "dont", "ce", "cette",
		"ces", "se", "sa", "son", "ses", "il", "elle", "ils", "elles", "on", "ne", "pas", "plus", "est",
		"était", "sont", "fut", "a", "été", "y", "lui", "leur", "leurs", "comme", "mais",
		// English
		"the", "an", "and", "or", "of", "to", "in", "on", "at", "by", "with", "is", "are", "was", "were",
		"it", "this", "that", "from", "as", "be",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
