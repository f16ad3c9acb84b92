// File: rating/rating.go
package rating

import (
	"fmt"
	"math"
	"sort"

	"github.com/lguibr/arena/game"
)

// zeroSumTolerance is how far the delta sum may drift from zero before the
// update is considered corrupt and rejected.
const zeroSumTolerance = 1e-6

// PairDelta is the classical Elo exchange: the points a takes from b when
// scoring w (1 win, 0.5 draw, 0 loss) at turbulence k.
func PairDelta(a, b, w, k float64) float64 {
	qa := math.Pow(10, a/400)
	qb := math.Pow(10, b/400)
	return k * (w - qa/(qa+qb))
}

// Deltas generalises Elo to one match between any mix of winners, losers and
// drawers. Players are grouped by outcome; the groups exchange points as
// three aggregate Elo pairings, and each group splits its swing evenly.
//
// When every player lands in the same group no points would move, so an
// intra-group rule runs instead: ratings sorted ascending, each player paired
// with its mirror at half weight, the middle of an odd field untouched.
//
// The returned deltas always sum to zero; a tolerance breach is reported as
// an error and no update should be applied.
func Deltas(outcomes []game.Outcome, ratings []float64, k float64) ([]float64, error) {
	if len(outcomes) != len(ratings) {
		return nil, fmt.Errorf("rating: %d outcomes for %d ratings", len(outcomes), len(ratings))
	}

	var sumW, sumL, sumD float64
	var idxW, idxL, idxD []int
	for i, o := range outcomes {
		switch o {
		case game.Win:
			sumW += ratings[i]
			idxW = append(idxW, i)
		case game.Loss:
			sumL += ratings[i]
			idxL = append(idxL, i)
		case game.Draw:
			sumD += ratings[i]
			idxD = append(idxD, i)
		default:
			return nil, fmt.Errorf("rating: unknown outcome %d", o)
		}
	}

	var xWL, xWD, xLD float64
	if len(idxW) > 0 && len(idxL) > 0 {
		xWL = PairDelta(sumW, sumL, 1, k)
	}
	if len(idxW) > 0 && len(idxD) > 0 {
		xWD = PairDelta(sumW, sumD, 1, k)
	}
	if len(idxL) > 0 && len(idxD) > 0 {
		xLD = PairDelta(sumD, sumL, 1, k)
	}

	deltas := make([]float64, len(outcomes))
	for _, i := range idxW {
		deltas[i] = (xWL + xWD) / float64(len(idxW))
	}
	for _, i := range idxL {
		deltas[i] = (-xWL - xLD) / float64(len(idxL))
	}
	for _, i := range idxD {
		deltas[i] = (xLD - xWD) / float64(len(idxD))
	}

	if group := singleGroup(idxW, idxL, idxD); group != nil {
		intraGroup(deltas, ratings, group, k)
	}

	var sum float64
	for _, d := range deltas {
		sum += d
	}
	if math.Abs(sum) >= zeroSumTolerance {
		return nil, fmt.Errorf("rating: deltas sum to %g, not zero", sum)
	}
	return deltas, nil
}

func singleGroup(groups ...[]int) []int {
	var only []int
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		if only != nil {
			return nil
		}
		only = g
	}
	return only
}

// intraGroup pairs sorted ratings low against high at half weight.
func intraGroup(deltas, ratings []float64, group []int, k float64) {
	order := make([]int, len(group))
	copy(order, group)
	sort.SliceStable(order, func(a, b int) bool {
		return ratings[order[a]] < ratings[order[b]]
	})
	n := len(order)
	for pos, i := range order {
		mirror := order[n-1-pos]
		if i == mirror {
			continue
		}
		deltas[i] += PairDelta(ratings[i], ratings[mirror], 0.5, k)
	}
}
