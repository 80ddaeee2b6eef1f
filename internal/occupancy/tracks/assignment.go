package tracks

import "math"

// assignment.go solves the detection-to-track assignment problem with the
// Kuhn–Munkres (Hungarian) algorithm in O(n³), replacing greedy
// nearest-neighbour matching which can split a track when two detections
// compete for it.
//
// The cost matrix entry C[i][j] is the centroid distance between detection i
// and candidate track j. Entries at or above ForbiddenCost are outside the
// gating radius and are never selected.

// ForbiddenCost marks a detection/track pair as outside the association gate.
const ForbiddenCost = 1e18

// SolveAssignment solves the rectangular assignment problem for an n×m cost
// matrix. It returns assigned[i] = column index matched to row i, or -1 if
// row i is unassigned. Costs ≥ ForbiddenCost are treated as forbidden.
//
// The solver is deterministic: equal-cost alternatives resolve by the fixed
// row/column scan order, so callers control tie-breaking through the order
// in which they lay out rows and columns.
func SolveAssignment(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		assigned := make([]int, n)
		for i := range assigned {
			assigned[i] = -1
		}
		return assigned
	}

	// Pad to a square matrix; padded cells are forbidden so excess rows or
	// columns stay unmatched.
	dim := n
	if m > dim {
		dim = m
	}
	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				c[i][j] = cost[i][j]
			} else {
				c[i][j] = ForbiddenCost
			}
		}
	}

	// Kuhn–Munkres with potentials (Jonker–Volgenant variant), 1-indexed
	// internally for cleaner index arithmetic.
	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1) // Row potentials
	v := make([]float64, dim+1) // Column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0 // Virtual column

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Augment along the path.
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	// Extract row → column assignments.
	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 && p[j] <= dim {
			rowAssign[p[j]-1] = j - 1
		}
	}

	// Trim to the original dimensions and reject forbidden pairings.
	assigned := make([]int, n)
	for i := 0; i < n; i++ {
		col := rowAssign[i]
		if col < 0 || col >= m || cost[i][col] >= ForbiddenCost {
			assigned[i] = -1
		} else {
			assigned[i] = col
		}
	}
	return assigned
}
