// Package retrieval ranks query hash codes against a database and scores the
// ranking with top-k mean average precision.
package retrieval

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// ErrDimensionMismatch is returned when query and database codes (or labels)
// have different widths.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Relevance decides whether a database item is relevant to a query.
type Relevance int

const (
	// MultiHot treats items as relevant when their label vectors share at
	// least one active component.
	MultiHot Relevance = iota
	// Exact treats items as relevant when their label vectors are equal.
	Exact
)

// String implements fmt.Stringer.
func (r Relevance) String() string {
	switch r {
	case MultiHot:
		return "multi-hot"
	case Exact:
		return "exact"
	default:
		return fmt.Sprintf("Relevance(%d)", int(r))
	}
}

// ParseRelevance parses "multi-hot" or "exact".
func ParseRelevance(s string) (Relevance, error) {
	switch s {
	case "multi-hot", "multihot", "":
		return MultiHot, nil
	case "exact":
		return Exact, nil
	default:
		return 0, fmt.Errorf("unknown relevance %q (want multi-hot or exact)", s)
	}
}

// Set pairs codes with labels, one item per row.
type Set struct {
	Codes  tensor.Matrix
	Labels tensor.Matrix
}

// Validate checks that codes and labels describe the same number of items.
func (s Set) Validate() error {
	if err := s.Codes.Verify(); err != nil {
		return fmt.Errorf("codes: %w", err)
	}
	if err := s.Labels.Verify(); err != nil {
		return fmt.Errorf("labels: %w", err)
	}
	if s.Codes.Rows != s.Labels.Rows {
		return fmt.Errorf("%d codes but %d labels", s.Codes.Rows, s.Labels.Rows)
	}
	return nil
}

// MeanAveragePrecision scores every query against the database and returns
// the mean of the per-query top-k average precision.
//
// Items are ranked by descending inner product of the sign codes, which is
// ascending Hamming distance. Ties keep database order. AP for a query is
// the mean of precision@rank over the relevant items found within the top
// k, so it is normalized by the relevant count inside the cut-off, not by
// the database total. A query with no relevant item in the top k scores 0
// and still counts toward the mean. An empty query set or database yields 0.
// topk is clamped to the database size.
func MeanAveragePrecision(db, query Set, topk int, rel Relevance) (float64, error) {
	if err := db.Validate(); err != nil {
		return 0, fmt.Errorf("database: %w", err)
	}
	if err := query.Validate(); err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	if db.Codes.Empty() || query.Codes.Empty() {
		return 0, nil
	}
	if db.Codes.Cols != query.Codes.Cols {
		return 0, fmt.Errorf("%w: query codes have %d bits, database codes %d",
			ErrDimensionMismatch, query.Codes.Cols, db.Codes.Cols)
	}
	if db.Labels.Cols != query.Labels.Cols {
		return 0, fmt.Errorf("%w: query labels have %d columns, database labels %d",
			ErrDimensionMismatch, query.Labels.Cols, db.Labels.Cols)
	}
	if db.Codes.Cols == 0 || db.Labels.Cols == 0 {
		return 0, errors.New("codes and labels need at least one column")
	}

	nDB := db.Codes.Rows
	k := topk
	if k > nDB {
		k = nDB
	}
	if k <= 0 {
		return 0, nil
	}

	sim := Similarity(query.Codes, db.Codes)
	var relevant *mat.Dense
	if rel == MultiHot {
		relevant = Similarity(query.Labels, db.Labels)
	}

	order := make([]int, nDB)
	var total float64
	for q := range query.Codes.Rows {
		scores := sim.RawRowView(q)
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			switch {
			case scores[a] > scores[b]:
				return -1
			case scores[a] < scores[b]:
				return 1
			default:
				return 0
			}
		})

		isRelevant := func(item int) bool {
			if rel == MultiHot {
				return relevant.At(q, item) > 0
			}
			return slices.Equal(query.Labels.Row(q), db.Labels.Row(item))
		}
		total += topKAveragePrecision(order[:k], isRelevant)
	}
	return total / float64(query.Codes.Rows), nil
}

// topKAveragePrecision averages precision@rank over the relevant positions
// of ranked.
func topKAveragePrecision(ranked []int, isRelevant func(int) bool) float64 {
	var found int
	var sum float64
	for rank, item := range ranked {
		if isRelevant(item) {
			found++
			sum += float64(found) / float64(rank+1)
		}
	}
	if found == 0 {
		return 0
	}
	return sum / float64(found)
}

// Similarity returns the a×bᵀ inner-product matrix.
func Similarity(a, b tensor.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(toDense(a), toDense(b).T())
	return &out
}

func toDense(m tensor.Matrix) *mat.Dense {
	data := make([]float64, len(m.Data))
	for i, v := range m.Data {
		data[i] = float64(v)
	}
	return mat.NewDense(m.Rows, m.Cols, data)
}
