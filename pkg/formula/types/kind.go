package types

import "fmt"

// Kind identifies the family of a FormulaType.
type Kind int

const (
	KindInvalid Kind = iota
	KindText
	KindChar
	KindNumber
	KindBoolean
	KindDate
	KindDateInterval
	KindArray
	KindSingleSelect
	KindMultipleSelect
	KindMultipleCollaborators
	KindLink
)

var kindNames = map[Kind]string{
	KindInvalid:               "invalid",
	KindText:                  "text",
	KindChar:                  "char",
	KindNumber:                "number",
	KindBoolean:               "boolean",
	KindDate:                  "date",
	KindDateInterval:          "date_interval",
	KindArray:                 "array",
	KindSingleSelect:          "single_select",
	KindMultipleSelect:        "multiple_select",
	KindMultipleCollaborators: "multiple_collaborators",
	KindLink:                  "link",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown formula type %q", name)
}

// AllValidKinds lists every kind except KindInvalid.
func AllValidKinds() []Kind {
	return []Kind{
		KindText, KindChar, KindNumber, KindBoolean, KindDate, KindDateInterval, KindArray,
		KindSingleSelect, KindMultipleSelect, KindMultipleCollaborators, KindLink,
	}
}

// IsTextual reports whether values of the kind are plain strings.
func (k Kind) IsTextual() bool {
	return k == KindText || k == KindChar
}
