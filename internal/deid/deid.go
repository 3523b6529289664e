// Package deid holds the fixed set of muon chamber detection element
// identifiers. Every lookup in the geometry packages is validated against it.
package deid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Chambers is the number of tracking chambers.
const Chambers = 10

// Number of detection elements per chamber, indexed by chamber number - 1.
// Stations 1 and 2 are built from quadrants, stations 3 to 5 from slats.
var elementsPerChamber = [Chambers]int{4, 4, 4, 4, 18, 18, 26, 26, 26, 26}

var (
	all   []int
	valid map[int]struct{}
)

func init() {
	for i, n := range elementsPerChamber {
		chamber := i + 1
		for j := 0; j < n; j++ {
			all = append(all, chamber*100+j)
		}
	}
	valid = make(map[int]struct{}, len(all))
	for _, id := range all {
		valid[id] = struct{}{}
	}
}

// All returns every valid detection element identifier in ascending order.
// The returned slice is a copy.
func All() []int {
	out := make([]int, len(all))
	copy(out, all)
	return out
}

// Count returns the number of valid identifiers.
func Count() int {
	return len(all)
}

// IsValid reports whether id is a known detection element.
func IsValid(id int) bool {
	_, ok := valid[id]
	return ok
}

// Chamber returns the chamber number (1-10) of id.
func Chamber(id int) int {
	return id / 100
}

// Station returns the station number (1-5) of id.
func Station(id int) int {
	return (Chamber(id) + 1) / 2
}

// InChamber returns the valid identifiers of one chamber, ascending.
func InChamber(chamber int) []int {
	if chamber < 1 || chamber > len(elementsPerChamber) {
		return nil
	}
	lo := sort.SearchInts(all, chamber*100)
	hi := sort.SearchInts(all, (chamber+1)*100)
	out := make([]int, hi-lo)
	copy(out, all[lo:hi])
	return out
}

// Parse converts s into a validated identifier.
func Parse(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid detection element id %q: %w", s, err)
	}
	if !IsValid(id) {
		return 0, fmt.Errorf("%d is not a valid detection element ID", id)
	}
	return id, nil
}
