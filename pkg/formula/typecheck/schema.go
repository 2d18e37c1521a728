package typecheck

import (
	"sort"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/formula/types"
)

// FieldInfo is what the checker needs to know about a field.
type FieldInfo struct {
	ID        int64
	TableID   int64
	Name      string
	FieldType string
	// Type is the formula type of the field's values. Link row fields have none.
	Type    types.FormulaType
	Primary bool
	// LinkTableID is the table a link_row field points to.
	LinkTableID int64
	// Formula is the source of formula and lookup fields.
	Formula string
}

// IsLink reports whether the field is a link_row field.
func (f *FieldInfo) IsLink() bool { return f.FieldType == constants.FieldTypeLinkRow }

// Schema resolves field references.
type Schema interface {
	FieldByName(tableID int64, name string) (*FieldInfo, bool)
	FieldByID(id int64) (*FieldInfo, bool)
	PrimaryField(tableID int64) (*FieldInfo, bool)
}

// StaticSchema is an in-memory Schema built from a list of fields.
type StaticSchema struct {
	byID   map[int64]*FieldInfo
	byName map[int64]map[string]*FieldInfo
}

// NewStaticSchema indexes fields by id and by name.
func NewStaticSchema(fields ...*FieldInfo) *StaticSchema {
	s := &StaticSchema{
		byID:   make(map[int64]*FieldInfo),
		byName: make(map[int64]map[string]*FieldInfo),
	}
	for _, f := range fields {
		s.Add(f)
	}
	return s
}

// Add inserts or replaces a field.
func (s *StaticSchema) Add(f *FieldInfo) {
	if old, ok := s.byID[f.ID]; ok {
		delete(s.byName[old.TableID], old.Name)
	}
	s.byID[f.ID] = f
	names, ok := s.byName[f.TableID]
	if !ok {
		names = make(map[string]*FieldInfo)
		s.byName[f.TableID] = names
	}
	names[f.Name] = f
}

// Remove drops a field.
func (s *StaticSchema) Remove(id int64) {
	if f, ok := s.byID[id]; ok {
		delete(s.byName[f.TableID], f.Name)
		delete(s.byID, id)
	}
}

func (s *StaticSchema) FieldByName(tableID int64, name string) (*FieldInfo, bool) {
	f, ok := s.byName[tableID][name]
	return f, ok
}

func (s *StaticSchema) FieldByID(id int64) (*FieldInfo, bool) {
	f, ok := s.byID[id]
	return f, ok
}

func (s *StaticSchema) PrimaryField(tableID int64) (*FieldInfo, bool) {
	for _, f := range s.byName[tableID] {
		if f.Primary {
			return f, true
		}
	}
	return nil, false
}

// Fields returns the fields of a table ordered by id.
func (s *StaticSchema) Fields(tableID int64) []*FieldInfo {
	out := make([]*FieldInfo, 0, len(s.byName[tableID]))
	for _, f := range s.byName[tableID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
