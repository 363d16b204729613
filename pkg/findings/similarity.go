package findings

import "math"

// Jaccard computes set overlap between two token sets. Empty sets are never
// similar.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// tfidfModel is a per-call vector space over the open findings corpus.
// Smoothed IDF keeps rare terms from exploding on tiny corpora.
type tfidfModel struct {
	idf  map[string]float64
	docs []map[string]float64
}

// minCorpusSize gates TF-IDF: below it the statistics are meaningless and
// Jaccard alone decides.
const minCorpusSize = 3

// newTFIDF builds the model from tokenized documents.
func newTFIDF(docs [][]string) *tfidfModel {
	n := len(docs)
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, t := range doc {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	idf := make(map[string]float64, len(df))
	for t, d := range df {
		idf[t] = math.Log(float64(n+1)/float64(1+d)) + 1
	}

	m := &tfidfModel{idf: idf, docs: make([]map[string]float64, n)}
	for i, doc := range docs {
		m.docs[i] = m.vector(doc)
	}
	return m
}

// vector computes the TF-IDF weight map for a token list. Terms unseen by the
// corpus get the maximum-rarity IDF.
func (m *tfidfModel) vector(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	tf := make(map[string]float64)
	for _, t := range tokens {
		tf[t]++
	}
	n := float64(len(tokens))
	unseenIDF := math.Log(float64(len(m.docs)+1)) + 1
	vec := make(map[string]float64, len(tf))
	for t, c := range tf {
		idf, ok := m.idf[t]
		if !ok {
			idf = unseenIDF
		}
		vec[t] = (c / n) * idf
	}
	return vec
}

// cosine over sparse maps.
func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for t, va := range a {
		if vb, ok := b[t]; ok {
			dot += va * vb
		}
		na += va * va
	}
	for _, vb := range b {
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
