package extract

import (
	"strconv"
	"strings"

	"github.com/proteus/scrapecore/internal/store"
)

var trueValues = map[string]bool{"1": true, "true": true, "yes": true, "y": true}
var falseValues = map[string]bool{"0": true, "false": true, "no": true, "n": true}

// coerce converts a raw string value to the type named by dataType. ok is
// false when the value doesn't parse as that type.
func coerce(raw, dataType string) (any, bool) {
	switch dataType {
	case store.DataTypeString, "":
		return raw, true
	case store.DataTypeInt:
		cleaned := strings.ReplaceAll(raw, ",", "")
		n, err := strconv.ParseInt(strings.TrimSpace(cleaned), 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case store.DataTypeFloat:
		cleaned := strings.ReplaceAll(raw, ",", "")
		f, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case store.DataTypeBool:
		v := strings.ToLower(strings.TrimSpace(raw))
		if trueValues[v] {
			return true, true
		}
		if falseValues[v] {
			return false, true
		}
		return nil, false
	default:
		return raw, true
	}
}
