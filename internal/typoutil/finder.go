package typoutil

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize  = 1000
	defaultMaxResults = 10
	defaultTimeLimit  = 50 * time.Millisecond
)

// Match is one indexed word close to the searched word.
type Match struct {
	Word     string
	Distance int
}

// Finder looks up typo candidates among a vocabulary. Results are cached until
// the vocabulary is replaced. A lookup stops at maxResults candidates or when
// its time limit runs out, whichever comes first.
type Finder struct {
	mu    sync.RWMutex
	byLen map[int][]string // vocabulary bucketed by rune length
	cache *lru.Cache[string, []Match]

	maxResults int
	timeLimit  time.Duration
	logger     *slog.Logger
}

// Option configures a Finder.
type Option func(*Finder)

// WithMaxResults caps the number of candidates per lookup.
func WithMaxResults(n int) Option {
	return func(f *Finder) {
		if n > 0 {
			f.maxResults = n
		}
	}
}

// WithTimeLimit bounds the time one lookup may scan the vocabulary.
func WithTimeLimit(d time.Duration) Option {
	return func(f *Finder) {
		if d > 0 {
			f.timeLimit = d
		}
	}
}

// WithLogger sets the logger used to report truncated lookups.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Finder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFinder returns a Finder with an empty vocabulary.
func NewFinder(opts ...Option) *Finder {
	f := &Finder{
		byLen:      make(map[int][]string),
		maxResults: defaultMaxResults,
		timeLimit:  defaultTimeLimit,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	// size is a positive constant so New cannot fail
	f.cache, _ = lru.New[string, []Match](defaultCacheSize)
	return f
}

// Update replaces the vocabulary and drops cached lookups.
func (f *Finder) Update(words []string) {
	byLen := make(map[int][]string)
	for _, w := range words {
		n := len([]rune(w))
		byLen[n] = append(byLen[n], w)
	}
	for _, bucket := range byLen {
		sort.Strings(bucket)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.byLen = byLen
	f.cache.Purge()
}

// Find returns vocabulary words within maxDistance of word, excluding word
// itself, closest first and alphabetical within a distance.
func (f *Finder) Find(word string, maxDistance int) []Match {
	if maxDistance <= 0 || word == "" {
		return nil
	}
	// held across the cache write so a concurrent Update cannot be undone
	f.mu.RLock()
	defer f.mu.RUnlock()

	key := word + "\x00" + strconv.Itoa(maxDistance)
	if cached, ok := f.cache.Get(key); ok {
		return cached
	}
	matches := f.scan(word, maxDistance)
	f.cache.Add(key, matches)
	return matches
}

// scan walks only the length buckets that can hold a match. Caller holds f.mu.
func (f *Finder) scan(word string, maxDistance int) []Match {
	n := len([]rune(word))
	start := time.Now()

	var matches []Match
	for l := n - maxDistance; l <= n+maxDistance; l++ {
		for _, candidate := range f.byLen[l] {
			if time.Since(start) >= f.timeLimit {
				f.logger.Warn("Typo lookup time limit reached",
					"word", word, "max_distance", maxDistance, "found", len(matches),
					"limit_ms", f.timeLimit.Milliseconds())
				return sortMatches(matches)
			}
			if candidate == word {
				continue
			}
			if d := Distance(word, candidate, maxDistance); d <= maxDistance {
				matches = append(matches, Match{Word: candidate, Distance: d})
				if len(matches) >= f.maxResults {
					return sortMatches(matches)
				}
			}
		}
	}
	return sortMatches(matches)
}

func sortMatches(matches []Match) []Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Word < matches[j].Word
	})
	return matches
}
