package walker

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// formatRegexps holds the lexical rules for the primitive types that
// carry one, anchored to the full string. The patterns follow the R4
// type definitions.
var formatRegexps = map[string]*regexp.Regexp{
	"date":         regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1]))?)?$`),
	"dateTime":     regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1])(T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00)))?)?)?$`),
	"time":         regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?$`),
	"instant":      regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)-(0[1-9]|1[0-2])-(0[1-9]|[1-2][0-9]|3[0-1])T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00))$`),
	"code":         regexp.MustCompile(`^[^\s]+( [^\s]+)*$`),
	"id":           regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`),
	"oid":          regexp.MustCompile(`^urn:oid:[0-2](\.(0|[1-9][0-9]*))+$`),
	"uri":          regexp.MustCompile(`^\S*$`),
	"url":          regexp.MustCompile(`^\S*$`),
	"canonical":    regexp.MustCompile(`^\S*$`),
	"base64Binary": regexp.MustCompile(`^(\s*[0-9a-zA-Z+/=]{4}\s*)*$`),
}

// typeMatches reports whether an instance value is shaped like the
// named FHIR type: JSON kind first, then the type's lexical format.
// Complex datatypes and resources expect a JSON object.
func typeMatches(value any, typeCode string) bool {
	switch typeCode {
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer", "integer64", "positiveInt", "unsignedInt":
		return matchesInteger(value, typeCode)
	case "decimal":
		_, ok := value.(float64)
		return ok
	case "string", "markdown", "xhtml":
		_, ok := value.(string)
		return ok
	case "uuid":
		s, ok := value.(string)
		if !ok {
			return false
		}
		rest, found := strings.CutPrefix(s, "urn:uuid:")
		if !found {
			return false
		}
		_, err := uuid.Parse(rest)
		return err == nil
	case "code", "id", "uri", "url", "canonical", "oid",
		"date", "dateTime", "time", "instant", "base64Binary":
		s, ok := value.(string)
		if !ok {
			return false
		}
		re := formatRegexps[typeCode]
		return re == nil || re.MatchString(s)
	default:
		_, ok := value.(map[string]any)
		return ok
	}
}

func matchesInteger(value any, typeCode string) bool {
	f, ok := value.(float64)
	if !ok {
		return false
	}
	d := decimal.NewFromFloat(f)
	if !d.IsInteger() {
		return false
	}
	switch typeCode {
	case "positiveInt":
		return d.IsPositive()
	case "unsignedInt":
		return !d.IsNegative()
	}
	return true
}

// literalEqual compares two decoded JSON scalars. Numbers go through
// decimal arithmetic so representations like 1 and 1.0 compare equal.
func literalEqual(a, b any) bool {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum || bNum {
		if !aNum || !bNum {
			return false
		}
		return decimal.NewFromFloat(af).Equal(decimal.NewFromFloat(bf))
	}
	return a == b
}

// matchesPattern reports whether actual contains the pattern literal:
// every pattern property must match for objects, every pattern item
// must appear somewhere for arrays, scalars compare equal.
func matchesPattern(actual, pattern any) bool {
	switch want := pattern.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range want {
			gv, exists := got[k]
			if !exists || !matchesPattern(gv, wv) {
				return false
			}
		}
		return true
	case []any:
		got, ok := actual.([]any)
		if !ok {
			return false
		}
		for _, wv := range want {
			found := false
			for _, gv := range got {
				if matchesPattern(gv, wv) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return literalEqual(actual, pattern)
	}
}

// matchesFixed is exact equality: same object keys with nothing extra,
// same array lengths in the same order, equal scalars.
func matchesFixed(actual, fixed any) bool {
	switch want := fixed.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok || len(got) != len(want) {
			return false
		}
		for k, wv := range want {
			gv, exists := got[k]
			if !exists || !matchesFixed(gv, wv) {
				return false
			}
		}
		return true
	case []any:
		got, ok := actual.([]any)
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if !matchesFixed(got[i], want[i]) {
				return false
			}
		}
		return true
	default:
		return literalEqual(actual, fixed)
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
