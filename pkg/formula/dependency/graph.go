// Package dependency tracks which fields read which other fields, so a change
// to one field can be propagated to every formula that uses it.
package dependency

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CycleError is returned when an edge would make a field depend on itself.
type CycleError struct {
	// Self is set when the field references itself directly.
	Self bool
	// Path starts and ends with the same field id.
	Path []int64
}

func (e *CycleError) Error() string {
	if e.Self {
		return "field references itself"
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "circular field reference: " + strings.Join(parts, " -> ")
}

type set map[int64]struct{}

// Graph is a directed graph of field ids. An edge a -> b means a reads b.
// A Graph is not safe for concurrent use.
type Graph struct {
	precedents map[int64]set
	dependents map[int64]set
	// broken holds references to names that did not resolve, per table.
	broken map[int64]map[string]set
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		precedents: make(map[int64]set),
		dependents: make(map[int64]set),
		broken:     make(map[int64]map[string]set),
	}
}

// SetDependencies replaces the fields read by field.
func (g *Graph) SetDependencies(field int64, deps []int64) {
	for old := range g.precedents[field] {
		delete(g.dependents[old], field)
		if len(g.dependents[old]) == 0 {
			delete(g.dependents, old)
		}
	}
	delete(g.precedents, field)
	if len(deps) == 0 {
		return
	}
	pre := make(set, len(deps))
	for _, d := range deps {
		pre[d] = struct{}{}
		if g.dependents[d] == nil {
			g.dependents[d] = make(set)
		}
		g.dependents[d][field] = struct{}{}
	}
	g.precedents[field] = pre
}

// Dependencies returns the fields field reads directly, sorted.
func (g *Graph) Dependencies(field int64) []int64 {
	return sorted(g.precedents[field])
}

// DirectDependants returns the fields reading field directly, sorted.
func (g *Graph) DirectDependants(field int64) []int64 {
	return sorted(g.dependents[field])
}

// RemoveField drops field and its outgoing edges. Edges pointing at it are
// dropped too; the ids of the fields that had them are returned.
func (g *Graph) RemoveField(field int64) []int64 {
	g.SetDependencies(field, nil)
	orphans := sorted(g.dependents[field])
	for _, d := range orphans {
		delete(g.precedents[d], field)
		if len(g.precedents[d]) == 0 {
			delete(g.precedents, d)
		}
	}
	delete(g.dependents, field)
	g.ClearBroken(field)
	return orphans
}

// WouldCycle reports whether giving field the dependencies deps closes a
// cycle. The current edges of field are ignored.
func (g *Graph) WouldCycle(field int64, deps []int64) *CycleError {
	for _, d := range deps {
		if d == field {
			return &CycleError{Self: true, Path: []int64{field, field}}
		}
	}
	const (
		white = iota
		grey
		black
	)
	colour := make(map[int64]int)
	var path []int64
	var visit func(id int64) bool
	visit = func(id int64) bool {
		if id == field {
			return true
		}
		switch colour[id] {
		case grey, black:
			return false
		}
		colour[id] = grey
		path = append(path, id)
		for _, next := range sorted(g.precedents[id]) {
			if visit(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		colour[id] = black
		return false
	}
	for _, d := range sortedSlice(deps) {
		path = path[:0]
		if visit(d) {
			cycle := append([]int64{field}, path...)
			return &CycleError{Path: append(cycle, field)}
		}
	}
	return nil
}

// Dependants returns every field reading field directly or transitively, in
// an order where a field comes after everything it depends on.
func (g *Graph) Dependants(field int64) []int64 {
	seen := make(set)
	queue := []int64{field}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, d := range sorted(g.dependents[id]) {
			if _, ok := seen[d]; ok || d == field {
				continue
			}
			seen[d] = struct{}{}
			queue = append(queue, d)
		}
	}
	ordered, err := g.Order(sorted(seen))
	if err != nil {
		return sorted(seen)
	}
	return ordered
}

// Order sorts fields so each comes after the fields it depends on among the
// given ones. Ties are broken by id.
func (g *Graph) Order(fields []int64) ([]int64, error) {
	in := make(set, len(fields))
	for _, f := range fields {
		in[f] = struct{}{}
	}
	const (
		white = iota
		grey
		black
	)
	colour := make(map[int64]int, len(fields))
	out := make([]int64, 0, len(fields))
	var stack []int64
	var visit func(id int64) error
	visit = func(id int64) error {
		switch colour[id] {
		case black:
			return nil
		case grey:
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
				}
			}
			return &CycleError{Path: append(append([]int64{}, stack[start:]...), id)}
		}
		colour[id] = grey
		stack = append(stack, id)
		for _, dep := range sorted(g.precedents[id]) {
			if _, ok := in[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		colour[id] = black
		out = append(out, id)
		return nil
	}
	for _, f := range sorted(in) {
		if err := visit(f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddBroken records that field references name in tableID, which does not exist.
func (g *Graph) AddBroken(tableID int64, name string, field int64) {
	if g.broken[tableID] == nil {
		g.broken[tableID] = make(map[string]set)
	}
	if g.broken[tableID][name] == nil {
		g.broken[tableID][name] = make(set)
	}
	g.broken[tableID][name][field] = struct{}{}
}

// Broken returns the fields waiting for a field called name in tableID.
func (g *Graph) Broken(tableID int64, name string) []int64 {
	return sorted(g.broken[tableID][name])
}

// ClearBroken forgets the broken references of field.
func (g *Graph) ClearBroken(field int64) {
	for tableID, names := range g.broken {
		for name, fields := range names {
			delete(fields, field)
			if len(fields) == 0 {
				delete(names, name)
			}
		}
		if len(names) == 0 {
			delete(g.broken, tableID)
		}
	}
}

// String renders the edges, for logs and test failures.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, f := range sorted(keys(g.precedents)) {
		fmt.Fprintf(&sb, "%d -> %v\n", f, sorted(g.precedents[f]))
	}
	return sb.String()
}

func keys(m map[int64]set) set {
	out := make(set, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func sorted(s set) []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedSlice(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
