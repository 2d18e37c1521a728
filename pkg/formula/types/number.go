package types

// CalculateNumberType unifies the number operands of an arithmetic function.
// Decimal places are the max of the operands, never below minDecimalPlaces and
// never above NumberMaxDecimalPlaces. The result is nullable if any operand is.
// Non number operands are ignored.
func CalculateNumberType(operands []FormulaType, minDecimalPlaces int) Number {
	result := Number{DecimalPlaces: minDecimalPlaces, Negative: true}
	for _, t := range operands {
		n, ok := t.(Number)
		if !ok {
			continue
		}
		if n.DecimalPlaces > result.DecimalPlaces {
			result.DecimalPlaces = n.DecimalPlaces
		}
		if n.Null {
			result.Null = true
		}
	}
	if result.DecimalPlaces > NumberMaxDecimalPlaces {
		result.DecimalPlaces = NumberMaxDecimalPlaces
	}
	return result
}

// AnyNullable reports whether any of ts can be NULL.
func AnyNullable(ts ...FormulaType) bool {
	for _, t := range ts {
		if t != nil && t.Nullable() {
			return true
		}
	}
	return false
}
