// Package unionfind implements a weighted quick-union disjoint-set over
// account IDs, used to merge overlapping cycles into rings. It mirrors the
// UnionFind helper in the original forensics engine, rewritten as an
// idiomatic Go map-backed structure with a hard cap on member count.
package unionfind

// UnionFind is a weighted quick-union structure with path compression,
// bounded to maxSize members per group. Union calls that would exceed the
// cap are refused and report ok=false so callers can treat the cycle as
// un-mergeable rather than silently growing an oversized ring.
type UnionFind struct {
	parent map[string]string
	size   map[string]int
	maxSize int
}

// New creates an empty UnionFind with the given per-group size cap.
func New(maxSize int) *UnionFind {
	return &UnionFind{
		parent:  make(map[string]string),
		size:    make(map[string]int),
		maxSize: maxSize,
	}
}

func (u *UnionFind) ensure(x string) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.size[x] = 1
	}
}

// Find returns the representative (root) of x's group, creating a
// singleton group for x if it has not been seen before.
func (u *UnionFind) Find(x string) string {
	u.ensure(x)
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// Path compression.
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

// Union merges the groups containing a and b. It refuses the merge (ok
// is false, no state changes) when the combined group would exceed
// maxSize. Returns ok=true and does nothing if a and b are already in
// the same group.
func (u *UnionFind) Union(a, b string) bool {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return true
	}
	if u.maxSize > 0 && u.size[ra]+u.size[rb] > u.maxSize {
		return false
	}
	// Union by size: attach the smaller group under the larger root.
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
	delete(u.size, rb)
	return true
}

// Groups returns the current partition as a map of root -> members.
// Iteration order of the returned map is not significant; callers that
// need determinism must sort the member slices and root keys themselves.
func (u *UnionFind) Groups() map[string][]string {
	out := make(map[string][]string)
	for x := range u.parent {
		root := u.Find(x)
		out[root] = append(out[root], x)
	}
	return out
}

// Size returns the current size of x's group.
func (u *UnionFind) Size(x string) int {
	return u.size[u.Find(x)]
}
