package knowledge

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// tokenize lowercases text and splits on runs of non-alphanumeric characters.
// Accented letters count as token characters, so Spanish terms like
// "automatización" index as a single term; queries and corpus pass through
// the same function, so scoring stays consistent either way.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLower(r) && !unicode.IsDigit(r)
	})
}

type indexedDoc struct {
	key      string
	length   int
	termFreq map[string]int
}

// bm25Index implements the Okapi BM25 ranking function over a fixed corpus.
type bm25Index struct {
	k1        float64
	b         float64
	docs      []indexedDoc
	avgDocLen float64
	idf       map[string]float64
}

type scoredDoc struct {
	key   string
	score float64
}

// newBM25Index tokenizes the corpus and precomputes document frequencies.
func newBM25Index(keys []string, texts []string) *bm25Index {
	idx := &bm25Index{
		k1:  defaultK1,
		b:   defaultB,
		idf: make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, text := range texts {
		terms := tokenize(text)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		for term := range tf {
			docFreq[term]++
		}
		totalLen += len(terms)
		idx.docs = append(idx.docs, indexedDoc{key: keys[i], length: len(terms), termFreq: tf})
	}

	numDocs := len(idx.docs)
	if numDocs == 0 {
		return idx
	}
	idx.avgDocLen = float64(totalLen) / float64(numDocs)

	for term, df := range docFreq {
		idx.idf[term] = math.Log((float64(numDocs)-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}
	return idx
}

// search scores every document for the query, filters out zero scores, and
// returns the rest in descending score order.
func (idx *bm25Index) search(query string) []scoredDoc {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(idx.docs) == 0 {
		return nil
	}

	var results []scoredDoc
	for _, doc := range idx.docs {
		score := idx.score(queryTerms, doc)
		if score > 0 {
			results = append(results, scoredDoc{key: doc.key, score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	return results
}

func (idx *bm25Index) score(queryTerms []string, doc indexedDoc) float64 {
	var score float64
	for _, term := range queryTerms {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		tf := float64(doc.termFreq[term])
		numerator := tf * (idx.k1 + 1)
		denominator := tf + idx.k1*(1-idx.b+idx.b*(float64(doc.length)/idx.avgDocLen))
		score += idf * (numerator / denominator)
	}
	return score
}
