// Package expand turns one raw query string into an ordered set of query
// variants: the original, a stemmed form, synonym substitutions, and
// optional LLM rewrites.
//
// Expansion is deterministic for identical input and configuration, always
// non-empty (the original query is variant 0), and capped at a configured
// maximum. Stage priority when the cap bites: original, stems, synonyms,
// rewrites.
package expand

import (
	"context"
	"strings"

	"github.com/blevesearch/go-porterstemmer"
	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/pkg/types"
)

// Options configures one expansion call.
type Options struct {
	MaxVariants int
	Stemming    bool
	Synonyms    bool
	Rewrites    bool
}

// Expander produces query variants from a raw query.
type Expander struct {
	synonyms map[string][]string
	rewriter Rewriter
	log      zerolog.Logger
}

// New creates an Expander. synonyms may be nil (synonym substitution then
// degrades silently to a no-op); rewriter may be nil (no LLM stage).
func New(synonyms map[string][]string, rewriter Rewriter, log zerolog.Logger) *Expander {
	return &Expander{
		synonyms: synonyms,
		rewriter: rewriter,
		log:      log.With().Str("component", "expander").Logger(),
	}
}

// Expand returns the ordered variant list for query. The source query is
// never mutated; a rewrite failure drops the rewrite stage and expansion
// proceeds with whatever variants were already produced.
func (e *Expander) Expand(ctx context.Context, query string, opts Options) []types.QueryVariant {
	query = strings.TrimSpace(query)
	if opts.MaxVariants < 1 {
		opts.MaxVariants = 1
	}

	variants := make([]types.QueryVariant, 0, opts.MaxVariants)
	variants = append(variants, types.QueryVariant{Text: query, Origin: types.OriginOriginal})
	seen := map[string]bool{query: true}

	add := func(text string, origin types.VariantOrigin) bool {
		if len(variants) >= opts.MaxVariants {
			return false
		}
		text = strings.TrimSpace(text)
		if text == "" || seen[text] {
			return true
		}
		seen[text] = true
		variants = append(variants, types.QueryVariant{Text: text, Origin: origin})
		return len(variants) < opts.MaxVariants
	}

	if opts.Stemming {
		if stemmed := stemQuery(query); !add(stemmed, types.OriginStem) {
			return variants
		}
	}

	if opts.Synonyms && e.synonyms != nil {
		for _, sub := range e.substituteSynonyms(query) {
			if !add(sub, types.OriginSynonym) {
				return variants
			}
		}
	}

	if opts.Rewrites && e.rewriter != nil {
		rewrites, err := e.rewriter.Rewrite(ctx, query)
		if err != nil {
			// Rewrite failures never fail expansion.
			e.log.Warn().Err(err).Msg("query rewrite failed, continuing without rewrites")
			return variants
		}
		for _, rw := range rewrites {
			if !add(rw, types.OriginRewrite) {
				return variants
			}
		}
	}

	return variants
}

// stemQuery applies Porter stemming token by token.
func stemQuery(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return ""
	}
	stemmed := make([]string, len(fields))
	for i, f := range fields {
		stemmed[i] = string(porterstemmer.StemWithoutLowerCasing([]rune(f)))
	}
	out := strings.Join(stemmed, " ")
	if out == strings.ToLower(query) {
		return "" // stemming changed nothing, skip the duplicate
	}
	return out
}

// substituteSynonyms produces one variant per substitutable token, each
// replacing that token with its first mapped synonym. Tokens are visited in
// query order so output is deterministic.
func (e *Expander) substituteSynonyms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	var out []string
	for i, f := range fields {
		syns, ok := e.synonyms[f]
		if !ok || len(syns) == 0 {
			continue
		}
		replaced := make([]string, len(fields))
		copy(replaced, fields)
		replaced[i] = syns[0]
		out = append(out, strings.Join(replaced, " "))
	}
	return out
}
