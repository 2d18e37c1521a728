package constants

import (
	"testing"
)

func TestPhysicalNames(t *testing.T) {
	if got := TableName(12); got != "table_12" {
		t.Errorf("TableName(12) = %q", got)
	}
	if got := ColumnName(7); got != "field_7" {
		t.Errorf("ColumnName(7) = %q", got)
	}
	if got := RelationTableName(3); got != "relation_3" {
		t.Errorf("RelationTableName(3) = %q", got)
	}
}

func TestParseColumnName(t *testing.T) {
	tests := []struct {
		column  string
		want    int64
		wantErr bool
	}{
		{"field_1", 1, false},
		{"field_42", 42, false},
		{"id", 0, true},
		{"field_x", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got, err := ParseColumnName(tt.column)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColumnName(%q) error = %v, wantErr %v", tt.column, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseColumnName(%q) = %d, want %d", tt.column, got, tt.want)
			}
		})
	}
}

func TestIsComputed(t *testing.T) {
	if !IsComputed(FieldTypeFormula) || !IsComputed(FieldTypeLookup) {
		t.Error("formula and lookup must be computed")
	}
	if IsComputed(FieldTypeText) {
		t.Error("text is not computed")
	}
}
