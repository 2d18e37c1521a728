package types

// Operator capability tables. A kind listed under another kind may appear on
// the right hand side of the operator when the left operand has that kind.
var (
	addableWith = map[Kind][]Kind{
		KindNumber:       {KindNumber},
		KindText:         {KindText, KindChar},
		KindChar:         {KindText, KindChar},
		KindDate:         {KindDateInterval},
		KindDateInterval: {KindDateInterval, KindDate},
	}
	subtractableWith = map[Kind][]Kind{
		KindNumber:       {KindNumber},
		KindDate:         {KindDate, KindDateInterval},
		KindDateInterval: {KindDateInterval},
	}
	comparableWith = map[Kind][]Kind{
		KindText:         {KindText, KindChar},
		KindChar:         {KindText, KindChar},
		KindNumber:       {KindNumber},
		KindBoolean:      {KindBoolean},
		KindDate:         {KindDate},
		KindDateInterval: {KindDateInterval},
	}
	limitComparableWith = map[Kind][]Kind{
		KindText:         {KindText, KindChar},
		KindChar:         {KindText, KindChar},
		KindNumber:       {KindNumber},
		KindDate:         {KindDate},
		KindDateInterval: {KindDateInterval},
	}
)

func contains(kinds []Kind, k Kind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// AddableTypes lists what may be added to a value of kind k.
func AddableTypes(k Kind) []Kind { return addableWith[k] }

// SubtractableTypes lists what may be subtracted from a value of kind k.
func SubtractableTypes(k Kind) []Kind { return subtractableWith[k] }

// ComparableTypes lists what a value of kind k can be tested for equality with.
func ComparableTypes(k Kind) []Kind { return comparableWith[k] }

// LimitComparableTypes lists what a value of kind k can be ordered against.
func LimitComparableTypes(k Kind) []Kind { return limitComparableWith[k] }

// Addable reports whether a + b is defined.
func Addable(a, b FormulaType) bool { return contains(addableWith[a.Kind()], b.Kind()) }

// Subtractable reports whether a - b is defined.
func Subtractable(a, b FormulaType) bool { return contains(subtractableWith[a.Kind()], b.Kind()) }

// Comparable reports whether a = b is defined without coercion.
func Comparable(a, b FormulaType) bool { return contains(comparableWith[a.Kind()], b.Kind()) }

// LimitComparable reports whether a < b is defined.
func LimitComparable(a, b FormulaType) bool { return contains(limitComparableWith[a.Kind()], b.Kind()) }
