// Package typoutil finds indexed words within a small edit distance of a
// misspelled query word.
package typoutil

// Distance returns the Damerau-Levenshtein distance between a and b, counting
// an adjacent transposition as one edit. It works on runes. Once the distance
// is known to exceed max it stops and returns max+1.
func Distance(a, b string, max int) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if abs(la-lb) > max {
		return max + 1
	}
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	// three rolling rows: i-2 is needed for transpositions
	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d := min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d = min(d, prev2[j-2]+1)
			}
			curr[j] = d
			rowMin = min(rowMin, d)
		}
		if rowMin > max {
			return max + 1
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[lb]
}

// Policy decides how many typos a word of a given length may carry.
type Policy struct {
	MinWordSizeFor1Typo  int
	MinWordSizeFor2Typos int
}

// DefaultPolicy allows one typo from four runes and two from seven.
var DefaultPolicy = Policy{MinWordSizeFor1Typo: 4, MinWordSizeFor2Typos: 7}

// Enabled reports whether the policy allows any typo at all.
func (p Policy) Enabled() bool { return p.MinWordSizeFor1Typo > 0 }

// Allowed returns the maximum edit distance tolerated for word.
func (p Policy) Allowed(word string) int {
	if !p.Enabled() {
		return 0
	}
	n := len([]rune(word))
	switch {
	case p.MinWordSizeFor2Typos > 0 && n >= p.MinWordSizeFor2Typos:
		return 2
	case n >= p.MinWordSizeFor1Typo:
		return 1
	default:
		return 0
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
