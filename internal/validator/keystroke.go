package validator

import "regexp"

// decimalPattern accepts an unsigned decimal that may still be incomplete:
// "", "12", "12.", ".5", "12.34".
var decimalPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// IsDecimalText reports whether s is acceptable numeric field content.
func IsDecimalText(s string) bool {
	return decimalPattern.MatchString(s)
}

// AcceptKeystroke returns the field content after typing r. If the result
// would not be a decimal the keystroke is dropped and current is returned.
func AcceptKeystroke(current string, r rune) string {
	next := current + string(r)
	if !decimalPattern.MatchString(next) {
		return current
	}
	return next
}

// FilterTyped feeds typed into the field one character at a time, as a
// browser input would, starting from current.
func FilterTyped(current, typed string) string {
	value := current
	for _, r := range typed {
		value = AcceptKeystroke(value, r)
	}
	return value
}
