// File: rating/rating_test.go
package rating

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lguibr/arena/game"
)

const k = 32.0

func sum(deltas []float64) float64 {
	var s float64
	for _, d := range deltas {
		s += d
	}
	return s
}

func TestPairDelta(t *testing.T) {
	if got := PairDelta(1200, 1200, 1, k); math.Abs(got-16) > 1e-9 {
		t.Errorf("even win = %v, want 16", got)
	}
	if got := PairDelta(1200, 1200, 0.5, k); math.Abs(got) > 1e-9 {
		t.Errorf("even draw = %v, want 0", got)
	}
	if got := PairDelta(1200, 1200, 0, k); math.Abs(got+16) > 1e-9 {
		t.Errorf("even loss = %v, want -16", got)
	}
	// the underdog gains more from a win
	underdog := PairDelta(1000, 2000, 1, k)
	favourite := PairDelta(2000, 1000, 1, k)
	if underdog <= favourite {
		t.Errorf("underdog %v should gain more than favourite %v", underdog, favourite)
	}
}

func TestTwoPlayerExactness(t *testing.T) {
	ratings := []float64{1000, 1400}
	deltas, err := Deltas([]game.Outcome{game.Win, game.Loss}, ratings, k)
	if err != nil {
		t.Fatal(err)
	}

	want := PairDelta(1000, 1400, 1, k)
	if deltas[0] != want {
		t.Errorf("winner delta = %v, want %v", deltas[0], want)
	}
	if deltas[1] != -want {
		t.Errorf("loser delta = %v, want %v", deltas[1], -want)
	}
	// same number seen from the loser's side
	if loserView := PairDelta(1400, 1000, 0, k); math.Abs(deltas[1]-loserView) > 1e-9 {
		t.Errorf("loser delta = %v, loser perspective = %v", deltas[1], loserView)
	}
}

func TestTwoPlayerDraw(t *testing.T) {
	ratings := []float64{1000, 1400}
	deltas, err := Deltas([]game.Outcome{game.Draw, game.Draw}, ratings, k)
	if err != nil {
		t.Fatal(err)
	}
	if want := PairDelta(1000, 1400, 0.5, k); math.Abs(deltas[0]-want) > 1e-9 {
		t.Errorf("low drawer = %v, want %v", deltas[0], want)
	}
	if want := PairDelta(1400, 1000, 0.5, k); math.Abs(deltas[1]-want) > 1e-9 {
		t.Errorf("high drawer = %v, want %v", deltas[1], want)
	}
	if deltas[0] <= 0 || deltas[1] >= 0 {
		t.Errorf("draw should pull ratings together: %v", deltas)
	}
}

func TestThreePlayerMixed(t *testing.T) {
	deltas, err := Deltas(
		[]game.Outcome{game.Win, game.Loss, game.Draw},
		[]float64{1000, 2000, 3000}, k)
	if err != nil {
		t.Fatal(err)
	}
	if s := sum(deltas); math.Abs(s) >= 1e-6 {
		t.Errorf("deltas sum to %v", s)
	}
	if deltas[0] <= 0 {
		t.Errorf("winner delta = %v, want positive", deltas[0])
	}
	if deltas[1] >= 0 {
		t.Errorf("loser delta = %v, want negative", deltas[1])
	}
}

func TestSingleGroupPairsMirrors(t *testing.T) {
	ratings := []float64{2000, 1000, 1500}
	deltas, err := Deltas([]game.Outcome{game.Draw, game.Draw, game.Draw}, ratings, k)
	if err != nil {
		t.Fatal(err)
	}
	if deltas[2] != 0 {
		t.Errorf("middle of an odd field moved: %v", deltas[2])
	}
	if deltas[1] <= 0 {
		t.Errorf("lowest drawer should gain, got %v", deltas[1])
	}
	if deltas[0] >= 0 {
		t.Errorf("highest drawer should lose, got %v", deltas[0])
	}
	if s := sum(deltas); math.Abs(s) >= 1e-6 {
		t.Errorf("sum = %v", s)
	}
}

func TestSelfPlayFieldZeroSum(t *testing.T) {
	// four copies of the same submission at the same rating
	ratings := []float64{1200, 1200, 1200, 1200}
	deltas, err := Deltas([]game.Outcome{game.Win, game.Loss, game.Loss, game.Loss}, ratings, k)
	if err != nil {
		t.Fatal(err)
	}
	if s := sum(deltas); math.Abs(s) >= 1e-6 {
		t.Errorf("sum = %v", s)
	}
	if deltas[0] <= 0 {
		t.Errorf("winner should gain, got %v", deltas[0])
	}
}

func TestZeroSumRandomised(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	outcomesPool := []game.Outcome{game.Win, game.Loss, game.Draw}

	for i := 0; i < 500; i++ {
		n := 2 + rng.Intn(5)
		outcomes := make([]game.Outcome, n)
		ratings := make([]float64, n)
		for j := range outcomes {
			outcomes[j] = outcomesPool[rng.Intn(len(outcomesPool))]
			ratings[j] = float64(rng.Intn(3000))
		}
		deltas, err := Deltas(outcomes, ratings, k)
		if err != nil {
			t.Fatalf("case %d (%v, %v): %v", i, outcomes, ratings, err)
		}
		if s := sum(deltas); math.Abs(s) >= 1e-6 {
			t.Fatalf("case %d: sum = %v", i, s)
		}
	}
}

func TestDeltasInputValidation(t *testing.T) {
	if _, err := Deltas([]game.Outcome{game.Win}, []float64{1, 2}, k); err == nil {
		t.Error("length mismatch accepted")
	}
	if _, err := Deltas([]game.Outcome{game.Outcome(9), game.Win}, []float64{1, 2}, k); err == nil {
		t.Error("unknown outcome accepted")
	}
}
