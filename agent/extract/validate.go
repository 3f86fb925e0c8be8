package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	statex "github.com/biancassilva/pharmacy-sales-chatbot/agent/state"
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// validateValue checks a candidate value against the field's expected shape
// and returns the typed field value. A failed check is a tier failure, never
// a fatal error.
func validateValue(field contractx.FieldKey, candidate any) (statex.FieldValue, error) {
	switch field {
	case contractx.FieldRxVolume:
		n, err := coerceInt(candidate)
		if err != nil {
			return statex.FieldValue{}, fmt.Errorf("%w: rx_volume %v", contractx.ErrValidation, candidate)
		}
		if n < 0 {
			return statex.FieldValue{}, fmt.Errorf("%w: rx_volume must be non-negative", contractx.ErrValidation)
		}
		return statex.VolumeValue(n), nil

	case contractx.FieldEmail:
		text := strings.TrimSpace(coerceText(candidate))
		if !emailPattern.MatchString(text) {
			return statex.FieldValue{}, fmt.Errorf("%w: implausible email %q", contractx.ErrValidation, text)
		}
		return statex.TextValue(emailPattern.FindString(text)), nil

	default:
		text := strings.TrimSpace(coerceText(candidate))
		if text == "" {
			return statex.FieldValue{}, fmt.Errorf("%w: empty %s", contractx.ErrValidation, field)
		}
		return statex.TextValue(text), nil
	}
}

func coerceText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func coerceInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("not an integer: %v", val)
		}
		return int(val), nil
	case int:
		return val, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(val))
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
