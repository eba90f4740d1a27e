package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ToInt coerces a loosely typed value to int. OData rows and SQL scans hand
// back numbers as float64, int64, strings or byte slices depending on the
// driver; unparseable values become 0.
func ToInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case uint:
		return int(v)
	case uint64:
		return int(v)
	case uint32:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(v))
		return i
	case []byte:
		i, _ := strconv.Atoi(strings.TrimSpace(string(v)))
		return i
	case nil:
		return 0
	default:
		i, _ := strconv.Atoi(fmt.Sprintf("%v", v))
		return i
	}
}

// ToString coerces a loosely typed value to string. nil becomes "".
func ToString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToBool coerces a loosely typed value to bool. Numeric 1, "1" and "true"
// (any case) count as true; everything else is false.
func ToBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	case []byte:
		return ToBool(string(v))
	case int, int64, int32, uint, uint64, uint32, float64, float32:
		return ToInt(v) == 1
	default:
		return false
	}
}
