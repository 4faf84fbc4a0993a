package native

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gcbaptista/go-search-gateway/internal/typoutil"
	"github.com/gcbaptista/go-search-gateway/model"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
	// prefix matches rank below whole-word matches, typo matches below both
	prefixWeight = 0.5
	typoWeight   = 0.3
)

// posting records that a document contains a term.
type posting struct {
	DocID     uint32
	Frequency float64
	FullWord  bool // false for generated prefixes
}

// shard is one logical index: an inverted index over the documents' text plus
// the stored documents themselves.
type shard struct {
	mu       sync.RWMutex
	postings map[string][]posting
	docs     map[uint32]model.Document
	keys     map[string]uint32 // document key -> internal id
	lengths  map[uint32]int    // whole-word token count
	nextID   uint32
	totalLen int

	policy typoutil.Policy
	typos  *typoutil.Finder
	stale  atomic.Bool // vocabulary changed since typos was last updated
}

// shardData is the gob form of a shard. Postings are rebuilt on load.
type shardData struct {
	Docs   map[uint32]model.Document
	Keys   map[string]uint32
	NextID uint32
}

func newShard(policy typoutil.Policy, typos *typoutil.Finder) *shard {
	return &shard{
		postings: make(map[string][]posting),
		docs:     make(map[uint32]model.Document),
		keys:     make(map[string]uint32),
		lengths:  make(map[uint32]int),
		policy:   policy,
		typos:    typos,
	}
}

func shardFromData(data shardData, policy typoutil.Policy, typos *typoutil.Finder) *shard {
	s := newShard(policy, typos)
	s.nextID = data.NextID
	ids := make([]uint32, 0, len(data.Docs))
	for id := range data.Docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		doc := data.Docs[id]
		key, ok := doc.Key()
		if !ok {
			continue
		}
		s.insert(id, key, doc)
	}
	return s
}

// data returns a copy-on-read snapshot for persistence. Caller holds s.mu.
func (s *shard) data() shardData {
	docs := make(map[uint32]model.Document, len(s.docs))
	for id, doc := range s.docs {
		docs[id] = doc
	}
	keys := make(map[string]uint32, len(s.keys))
	for k, id := range s.keys {
		keys[k] = id
	}
	return shardData{Docs: docs, Keys: keys, NextID: s.nextID}
}

// put adds or replaces a document. Caller holds s.mu.
func (s *shard) put(key string, doc model.Document) {
	if id, exists := s.keys[key]; exists {
		s.remove(id)
	}
	s.nextID++
	s.insert(s.nextID, key, doc)
}

func (s *shard) insert(id uint32, key string, doc model.Document) {
	s.docs[id] = doc
	s.keys[key] = id

	words := tokenize(doc.Text())
	s.lengths[id] = len(words)
	s.totalLen += len(words)

	freq := make(map[string]float64)
	full := make(map[string]bool)
	for _, w := range words {
		freq[w]++
		full[w] = true
		for _, p := range prefixes(w) {
			if !full[p] {
				freq[p]++
			}
		}
	}
	for term, f := range freq {
		s.postings[term] = append(s.postings[term], posting{DocID: id, Frequency: f, FullWord: full[term]})
	}
	s.stale.Store(true)
}

// remove drops a document by internal id. Caller holds s.mu.
func (s *shard) remove(id uint32) {
	doc, ok := s.docs[id]
	if !ok {
		return
	}
	if key, ok := doc.Key(); ok {
		delete(s.keys, key)
	}
	s.totalLen -= s.lengths[id]
	delete(s.lengths, id)
	delete(s.docs, id)

	for term, list := range s.postings {
		kept := list[:0]
		for _, p := range list {
			if p.DocID != id {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(s.postings, term)
		} else {
			s.postings[term] = kept
		}
	}
	s.stale.Store(true)
}

// words returns every term indexed as a whole word. Caller holds s.mu.
func (s *shard) words() []string {
	out := make([]string, 0, len(s.postings))
	for term, list := range s.postings {
		for _, p := range list {
			if p.FullWord {
				out = append(out, term)
				break
			}
		}
	}
	return out
}

// typoMatches returns the whole words close to term, refreshing the finder
// vocabulary first when documents changed. Caller holds s.mu.RLock.
func (s *shard) typoMatches(term string) []typoutil.Match {
	allowed := s.policy.Allowed(term)
	if allowed == 0 || s.typos == nil {
		return nil
	}
	if s.stale.CompareAndSwap(true, false) {
		s.typos.Update(s.words())
	}
	return s.typos.Find(term, allowed)
}

// score adds the BM25 contribution of one term's postings to scores.
func (s *shard) score(scores map[uint32]float64, list []posting, n, avgLen, weight float64, wholeOnly bool) {
	if len(list) == 0 {
		return
	}
	idf := math.Log(1 + (n-float64(len(list))+0.5)/(float64(len(list))+0.5))
	for _, p := range list {
		if wholeOnly && !p.FullWord {
			continue
		}
		docLen := float64(s.lengths[p.DocID])
		tf := (p.Frequency * (bm25K1 + 1)) / (p.Frequency + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		score := idf * tf * weight
		if !p.FullWord {
			score *= prefixWeight
		}
		scores[p.DocID] += score
	}
}

type scoredDoc struct {
	id    uint32
	score float64
}

// search scores every document containing at least one query term (whole word
// or prefix, or a whole word within the typo policy when the term itself is
// unknown) with BM25 and returns them best first. Caller holds s.mu.RLock.
func (s *shard) search(query string, accept func(model.Document) bool) []scoredDoc {
	terms := tokenize(query)
	if len(terms) == 0 || len(s.docs) == 0 {
		return nil
	}

	n := float64(len(s.docs))
	avgLen := float64(s.totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[uint32]float64)
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		if list := s.postings[term]; len(list) > 0 {
			s.score(scores, list, n, avgLen, 1, false)
			continue
		}
		// unknown word: fall back to indexed words a typo away
		for _, m := range s.typoMatches(term) {
			weight := typoWeight / float64(m.Distance)
			s.score(scores, s.postings[m.Word], n, avgLen, weight, true)
		}
	}

	results := make([]scoredDoc, 0, len(scores))
	for id, score := range scores {
		if accept != nil && !accept(s.docs[id]) {
			continue
		}
		results = append(results, scoredDoc{id: id, score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})
	return results
}
