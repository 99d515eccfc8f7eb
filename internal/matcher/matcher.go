// Package matcher builds the key-indexed association between two record
// sets. Matching is exact on the normalized plate: two records refer to
// the same vehicle iff their match keys are equal. There is no fuzzy
// scoring here; anything that does not share a key is an orphan for the
// ledger to classify.
package matcher

import (
	"valet-reconciliation-service/internal/normalizer"
)

// Plated is any source record that exposes its raw plate string.
type Plated interface {
	PlateValue() string
}

// Pair is one matched A/B record pair sharing a match key.
type Pair[A Plated, B Plated] struct {
	Key string
	A   A
	B   B
}

// MatchSet is the result of matching set A against set B.
//
// Determinism: Pairs and OnlyB follow B's input order (first appearance
// of each key); OnlyA follows A's input order. Records whose plate
// normalizes to the empty string are excluded from every bucket and
// counted as skipped.
type MatchSet[A Plated, B Plated] struct {
	Pairs []Pair[A, B]
	OnlyA []A
	OnlyB []B

	// SkippedA/SkippedB count records excluded for having no usable
	// plate. They are not orphans; they never entered matching.
	SkippedA int
	SkippedB int
}

// Match associates two record sets by normalized plate.
//
// Within one set, duplicate match keys collapse last-write-wins. That
// is a documented import policy, not an error: exports repeat a plate
// when a booking is edited and the later row supersedes the earlier.
func Match[A Plated, B Plated](setA []A, setB []B) *MatchSet[A, B] {
	result := &MatchSet[A, B]{}

	indexA, orderA, skippedA := index(setA)
	indexB, orderB, skippedB := index(setB)
	result.SkippedA = skippedA
	result.SkippedB = skippedB

	consumed := make(map[string]bool, len(orderB))
	for _, key := range orderB {
		b := indexB[key]
		if a, ok := indexA[key]; ok {
			result.Pairs = append(result.Pairs, Pair[A, B]{Key: key, A: a, B: b})
			consumed[key] = true
		} else {
			result.OnlyB = append(result.OnlyB, b)
		}
	}

	for _, key := range orderA {
		if !consumed[key] {
			result.OnlyA = append(result.OnlyA, indexA[key])
		}
	}

	return result
}

// index builds the key-to-record map for one set, keeping the distinct
// keys in first-appearance order and counting unkeyable records.
func index[T Plated](set []T) (map[string]T, []string, int) {
	byKey := make(map[string]T, len(set))
	var order []string
	skipped := 0

	for _, rec := range set {
		key := normalizer.NormalizePlate(rec.PlateValue())
		if key == "" {
			skipped++
			continue
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = rec
	}

	return byKey, order, skipped
}

// DistinctA returns the number of distinct keyable records in set A.
func (ms *MatchSet[A, B]) DistinctA() int {
	return len(ms.Pairs) + len(ms.OnlyA)
}

// DistinctB returns the number of distinct keyable records in set B.
func (ms *MatchSet[A, B]) DistinctB() int {
	return len(ms.Pairs) + len(ms.OnlyB)
}
