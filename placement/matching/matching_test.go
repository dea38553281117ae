package matching_test

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/osdplacement/placement/matching"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}

	result := [][]int{}

	for _, permutation := range permutations(n - 1) {
		for position := 0; position <= len(permutation); position++ {
			next := make([]int, 0, n)
			next = append(next, permutation[:position]...)
			next = append(next, n-1)
			next = append(next, permutation[position:]...)
			result = append(result, next)
		}
	}

	return result
}

func bruteForce(cost [][]float64) float64 {
	best := math.Inf(1)

	for _, permutation := range permutations(len(cost)) {
		total := 0.0

		for i, j := range permutation {
			total += cost[i][j]
		}

		if total < best {
			best = total
		}
	}

	return best
}

func TestMinCostPerfectMatching(t *testing.T) {
	testCases := map[string]struct {
		cost  [][]float64
		pairs []int
		total float64
		err   error
	}{
		"empty": {
			cost:  [][]float64{},
			pairs: []int{},
			total: 0,
		},
		"identity-is-free": {
			cost: [][]float64{
				{0, 5, 5},
				{5, 0, 5},
				{5, 5, 0},
			},
			pairs: []int{0, 1, 2},
			total: 0,
		},
		"swap": {
			cost: [][]float64{
				{4, 1},
				{2, 8},
			},
			pairs: []int{1, 0},
			total: 3,
		},
		"forbidden-forces-choice": {
			cost: [][]float64{
				{1, matching.Forbidden()},
				{1, 100},
			},
			pairs: []int{0, 1},
			total: 101,
		},
		"infinite-cost-is-forbidden": {
			cost: [][]float64{
				{math.Inf(1), 3},
				{2, 9},
			},
			pairs: []int{1, 0},
			total: 5,
		},
		"impossible": {
			cost: [][]float64{
				{1, matching.Forbidden()},
				{1, matching.Forbidden()},
			},
			err: matching.ErrNoPerfectMatching,
		},
		"not-square": {
			cost: [][]float64{
				{1, 2},
				{1},
			},
			err: matching.ErrNotSquare,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			result, err := matching.MinCostPerfectMatching(testCase.cost)

			if testCase.err != nil {
				if !errors.Is(err, testCase.err) {
					t.Fatalf("expected error %v, got %v", testCase.err, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %s", err.Error())
			}

			diff := cmp.Diff(testCase.pairs, result.Pairs)

			if diff != "" {
				t.Fatalf(diff)
			}

			if result.Cost != testCase.total {
				t.Fatalf("expected cost %v, got %v", testCase.total, result.Cost)
			}
		})
	}
}

func TestMinCostPerfectMatchingIsOptimal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	genMatrix := gen.IntRange(1, 5).FlatMap(func(v interface{}) gopter.Gen {
		n := v.(int)

		return gen.SliceOfN(n, gen.SliceOfN(n, gen.IntRange(0, 20)))
	}, reflect.TypeOf([][]int{}))

	properties.Property("matching cost equals the brute force optimum", prop.ForAll(
		func(values [][]int) bool {
			cost := make([][]float64, len(values))

			for i, row := range values {
				cost[i] = make([]float64, len(row))

				for j, value := range row {
					cost[i][j] = float64(value)
				}
			}

			result, err := matching.MinCostPerfectMatching(cost)

			if err != nil {
				return false
			}

			seen := map[int]bool{}

			for _, j := range result.Pairs {
				if seen[j] {
					return false
				}

				seen[j] = true
			}

			return result.Cost == bruteForce(cost)
		},
		genMatrix,
	))

	properties.TestingRun(t)
}
