package eval

// Row is the data a formula is evaluated against.
type Row interface {
	ID() int64
	// Value returns the value of a field of the row, nil when empty.
	Value(fieldID int64) any
	// Linked returns the rows linked through a link_row field, in row order.
	Linked(linkFieldID int64) []Row
}

// MapRow is a Row held in memory.
type MapRow struct {
	RowID  int64
	Values map[int64]any
	Links  map[int64][]Row
}

func (r *MapRow) ID() int64 { return r.RowID }

func (r *MapRow) Value(fieldID int64) any {
	if r.Values == nil {
		return nil
	}
	return r.Values[fieldID]
}

func (r *MapRow) Linked(linkFieldID int64) []Row {
	if r.Links == nil {
		return nil
	}
	return r.Links[linkFieldID]
}

// Link appends linked rows to a link field.
func (r *MapRow) Link(linkFieldID int64, rows ...*MapRow) *MapRow {
	if r.Links == nil {
		r.Links = make(map[int64][]Row)
	}
	for _, row := range rows {
		r.Links[linkFieldID] = append(r.Links[linkFieldID], row)
	}
	return r
}
