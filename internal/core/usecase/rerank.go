package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

// selectChatRecords keeps at most limit rows, preferring rows whose field names, values and
// document name share tokens with the question. Selected rows keep their stored order.
func selectChatRecords(question string, rows []domain.ExtractionResult, limit int) []domain.ExtractionResult {
	if limit <= 0 || len(rows) <= limit {
		return rows
	}

	queryTokens := toTokenSet(question)
	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(rows))
	for i, row := range rows {
		text := row.Canonical + " " + row.OriginalTerm + " " + row.Value
		overlap := tokenOverlap(queryTokens, toTokenSet(text))
		filenameBoost := filenameTokenHit(queryTokens, row.DocumentName)
		ranked[i] = scored{index: i, score: 0.85*overlap + 0.15*filenameBoost}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	keep := make([]int, 0, limit)
	for _, r := range ranked[:limit] {
		keep = append(keep, r.index)
	}
	sort.Ints(keep)

	out := make([]domain.ExtractionResult, 0, limit)
	for _, idx := range keep {
		out = append(out, rows[idx])
	}
	return out
}

func tokenOverlap(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func filenameTokenHit(query map[string]struct{}, filename string) float64 {
	if len(query) == 0 || filename == "" {
		return 0
	}
	filename = strings.ToLower(filename)
	for token := range query {
		if len(token) < 3 {
			continue
		}
		if strings.Contains(filename, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
