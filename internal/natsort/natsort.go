// Package natsort implements natural-order string comparison, used for
// deterministic topological tie-breaking and run id ordering (e.g.
// "run2" before "run10") instead of lexical ordering.
package natsort

import (
	"sort"
	"unicode"
)

// Strings sorts ss in place using natural order.
func Strings(ss []string) {
	sort.Slice(ss, func(i, j int) bool { return Less(ss[i], ss[j]) })
}

// Sorted returns a natural-order-sorted copy of ss.
func Sorted(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	Strings(out)
	return out
}

// Less reports whether a sorts before b under natural order: runs of
// digits compare numerically, everything else compares byte-wise.
func Less(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		ca, cb := ar[i], br[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			ni, na := scanDigits(ar, i)
			nj, nb := scanDigits(br, j)
			if na != nb {
				return na < nb
			}
			i, j = ni, nj
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(ar)-i < len(br)-j
}

// scanDigits reads a run of digits starting at i and returns the index
// just past it along with the numeric value. The value is not capped; a
// run of more than 18 digits can overflow int64.
func scanDigits(rs []rune, i int) (int, int64) {
	var n int64
	for i < len(rs) && unicode.IsDigit(rs[i]) {
		n = n*10 + int64(rs[i]-'0')
		i++
	}
	return i, n
}
