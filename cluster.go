package dupefy

import (
	"context"
	"slices"
	"sort"
)

// disjointSet is a union-find over an arena of integer indices.
type disjointSet struct {
	parent []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{parent: make([]int, n), size: make([]int, n)}
	for i := range d.parent {
		d.parent[i] = i
		d.size[i] = 1
	}
	return d
}

func (d *disjointSet) find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]] // path halving
		x = d.parent[x]
	}
	return x
}

// union merges the sets of a and b and reports whether they were distinct.
func (d *disjointSet) union(a, b int) bool {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return false
	}
	if d.size[ra] < d.size[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
	return true
}

// components returns every set with at least minSize members. Members are
// in ascending index order and sets are ordered by their smallest member.
func (d *disjointSet) components(minSize int) [][]int {
	byRoot := make(map[int][]int)
	for i := range d.parent {
		r := d.find(i)
		byRoot[r] = append(byRoot[r], i)
	}
	var out [][]int
	for _, members := range byRoot {
		if len(members) >= minSize {
			out = append(out, members)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// buildClusters links every pair that passes m and returns the connected
// components with two or more members, as indices into feats. Nil entries
// (skipped images) and images without a capture time never match.
//
// Images are swept in capture-time order and each one is only compared with
// the later images inside the window, so the pair count grows with the
// density of the timeline rather than with n².
func buildClusters(ctx context.Context, feats []*Features, m matcher, onRow func(done, total int)) ([][]int, error) {
	order := make([]int, 0, len(feats))
	for i, f := range feats {
		if f != nil && !f.CapturedAt.IsZero() {
			order = append(order, i)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return feats[a].CapturedAt.Compare(feats[b].CapturedAt)
	})

	ds := newDisjointSet(len(feats))
	for a, i := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fi := feats[i]
		for _, j := range order[a+1:] {
			fj := feats[j]
			if fj.CapturedAt.Sub(fi.CapturedAt) > m.window {
				break
			}
			if m.match(fi, fj) {
				ds.union(i, j)
			}
		}
		if onRow != nil {
			onRow(a+1, len(order))
		}
	}

	return ds.components(2), nil
}
