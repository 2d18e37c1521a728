package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/formula"
	"github.com/gridbase/backend/pkg/formula/dependency"
	"github.com/gridbase/backend/pkg/formula/typecheck"
)

// workspace is the in-memory view of every field and dependency edge one
// operation works on. It is loaded inside the operation's transaction.
type workspace struct {
	fields map[int64]*models.Field
	schema *typecheck.StaticSchema
	graph  *dependency.Graph
}

func (s *FormulaFieldService) loadWorkspace(ctx context.Context) (*workspace, error) {
	fields, err := s.fields.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	deps, err := s.deps.ListDependencies(ctx)
	if err != nil {
		return nil, err
	}

	w := &workspace{
		fields: make(map[int64]*models.Field, len(fields)),
		schema: typecheck.NewStaticSchema(),
		graph:  dependency.New(),
	}
	for _, f := range fields {
		w.put(f)
	}

	edges := make(map[int64][]int64)
	for _, d := range deps {
		switch {
		case d.DependencyID != nil:
			edges[d.DependantID] = append(edges[d.DependantID], *d.DependencyID)
		case d.BrokenName != "":
			w.graph.AddBroken(d.TableID, d.BrokenName, d.DependantID)
		}
	}
	for id, to := range edges {
		w.graph.SetDependencies(id, to)
	}
	return w, nil
}

func fieldInfo(f *models.Field) *typecheck.FieldInfo {
	return &typecheck.FieldInfo{
		ID:          f.ID,
		TableID:     f.TableID,
		Name:        f.Name,
		FieldType:   f.Type,
		Type:        f.ResolvedType(),
		Primary:     f.Primary,
		LinkTableID: f.Options.LinkTableID,
		Formula:     f.Formula,
	}
}

// put adds f or refreshes what the checker knows about it.
func (w *workspace) put(f *models.Field) {
	w.fields[f.ID] = f
	w.schema.Add(fieldInfo(f))
}

func (w *workspace) remove(id int64) []int64 {
	delete(w.fields, id)
	w.schema.Remove(id)
	return w.graph.RemoveField(id)
}

func (w *workspace) tableFields(tableID int64) []*models.Field {
	var out []*models.Field
	for _, f := range w.fields {
		if f.TableID == tableID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// typeField types the formula of a computed field against the workspace.
func (w *workspace) typeField(engine *formula.Engine, f *models.Field) (*typecheck.Result, error) {
	return engine.Type(f.Formula, w.schema, typecheck.Options{TableID: f.TableID, FieldID: f.ID})
}

// edges converts the dependencies found by the checker into stored rows and
// graph edges.
func (w *workspace) edges(f *models.Field, res *typecheck.Result) ([]models.Dependency, []int64, []string) {
	var (
		rows   []models.Dependency
		ids    []int64
		broken []string
	)
	for _, d := range res.Dependencies {
		if d.FieldID == 0 {
			rows = append(rows, models.Dependency{DependantID: f.ID, BrokenName: d.Name, TableID: f.TableID})
			broken = append(broken, d.Name)
			continue
		}
		row := models.Dependency{DependantID: f.ID, DependencyID: &d.FieldID, TableID: f.TableID}
		if target, ok := w.fields[d.FieldID]; ok {
			row.TableID = target.TableID
		}
		if d.ViaFieldID != 0 {
			via := d.ViaFieldID
			row.ViaFieldID = &via
		}
		rows = append(rows, row)
		ids = append(ids, d.FieldID)
	}
	return rows, ids, broken
}

// link records the edges of f in the graph.
func (w *workspace) link(f *models.Field, ids []int64, broken []string) {
	w.graph.SetDependencies(f.ID, ids)
	w.graph.ClearBroken(f.ID)
	for _, name := range broken {
		w.graph.AddBroken(f.TableID, name, f.ID)
	}
}

// waiters returns the fields that should be retyped because a field called
// name now exists in tableID: those referencing the name directly, and
// lookups through a link into tableID that do not type yet.
func (w *workspace) waiters(tableID int64, name string, exclude int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	add := func(id int64) {
		if id != exclude && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range w.graph.Broken(tableID, name) {
		add(id)
	}
	for _, link := range w.fields {
		if !link.IsLink() || link.Options.LinkTableID != tableID {
			continue
		}
		for _, id := range w.graph.DirectDependants(link.ID) {
			if f, ok := w.fields[id]; ok && f.IsComputed() && f.Error != "" {
				add(id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// cyclePath names the fields of a cycle for the error message.
func (w *workspace) cyclePath(path []int64) []string {
	names := make([]string, len(path))
	for i, id := range path {
		if f, ok := w.fields[id]; ok {
			names[i] = f.Name
		} else {
			names[i] = fmt.Sprintf("field %d", id)
		}
	}
	return names
}
