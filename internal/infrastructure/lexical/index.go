package lexical

import (
	"math"
	"sort"

	"github.com/clinicore/medrag/internal/core/domain"
)

// BM25 tuning constants, standard Robertson values.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Index is an immutable BM25 index over one corpus snapshot. A rebuild
// produces a brand-new Index; published instances are never mutated, so
// concurrent searches need no locking.
type Index struct {
	docs   []domain.CorpusDocument
	tf     []map[string]int
	docLen []float64
	idf    map[string]float64
	avgLen float64
}

// BuildIndex constructs an index from documents and their token sequences,
// which must be parallel slices in corpus order.
func BuildIndex(docs []domain.CorpusDocument, tokenized [][]string) *Index {
	idx := &Index{
		docs:   docs,
		tf:     make([]map[string]int, len(docs)),
		docLen: make([]float64, len(docs)),
		idf:    make(map[string]float64),
	}

	df := make(map[string]int)
	totalLen := 0
	for i, tokens := range tokenized {
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		idx.tf[i] = tf
		idx.docLen[i] = float64(len(tokens))
		totalLen += len(tokens)
		for term := range tf {
			df[term]++
		}
	}

	if len(docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(docs))
	}

	// Lucene-smoothed IDF: log((N+1)/(df+1)) + 1, always >= 1, so any term
	// match yields a strictly positive score.
	n := float64(len(docs))
	for term, docFreq := range df {
		idx.idf[term] = math.Log((n+1.0)/(float64(docFreq)+1.0)) + 1.0
	}
	return idx
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search scores every document against the query tokens and returns the topK
// strictly-positive scorers as lexical evidence, ties broken by corpus order.
func (idx *Index) Search(query string, topK int) []domain.EvidenceItem {
	if topK <= 0 || len(idx.docs) == 0 {
		return nil
	}
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, len(idx.docs))
	for i := range idx.docs {
		if score := idx.score(queryTokens, i); score > 0 {
			candidates = append(candidates, scored{pos: i, score: score})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]domain.EvidenceItem, 0, len(candidates))
	for _, c := range candidates {
		doc := idx.docs[c.pos]
		out = append(out, domain.EvidenceItem{
			Origin:   domain.OriginLexical,
			Content:  doc.DisplayContent(),
			Score:    domain.Float64Ptr(c.score),
			Metadata: doc.Metadata(),
		})
	}
	return out
}

func (idx *Index) score(queryTokens []string, docPos int) float64 {
	tf := idx.tf[docPos]
	dl := idx.docLen[docPos]

	var score float64
	for _, term := range queryTokens {
		freq, ok := tf[term]
		if !ok {
			continue
		}
		termIDF, ok := idx.idf[term]
		if !ok {
			continue
		}
		f := float64(freq)
		numerator := f * (bm25K1 + 1.0)
		denominator := f + bm25K1*(1.0-bm25B+bm25B*dl/idx.avgLen)
		score += termIDF * numerator / denominator
	}
	return score
}
