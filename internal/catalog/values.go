package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/hashstructure/v2"
)

// precision is the number of decimal places numbers are compared at.
const precision = 100

// ValuesEqual compares two field values. Numbers compare at two decimal
// places; arrays and objects compare structurally.
func ValuesEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && cents(fa) == cents(fb)
	}

	switch a.(type) {
	case []any:
		if _, ok := b.([]any); !ok {
			return false
		}
		return deepEqual(a, b)
	case map[string]any:
		if _, ok := b.(map[string]any); !ok {
			return false
		}
		return deepEqual(a, b)
	}
	switch b.(type) {
	case []any, map[string]any:
		return false
	}
	return a == b
}

func deepEqual(a, b any) bool {
	ha, err := hashstructure.Hash(normalize(a), hashstructure.FormatV2, nil)
	if err != nil {
		return false
	}
	hb, err := hashstructure.Hash(normalize(b), hashstructure.FormatV2, nil)
	if err != nil {
		return false
	}
	return ha == hb
}

type nullValue struct{}

// normalize rewrites numbers to fixed-precision integers so formatting noise
// such as 8.5 vs 8.50 hashes identically.
func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return cents(f)
	}
	switch t := v.(type) {
	case nil:
		return nullValue{}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

func cents(f float64) int64 {
	return int64(math.Round(f * precision))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// FormatValue renders a value for one-line change descriptions.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return formatNumber(string(t))
	case float64:
		return formatNumber(strconv.FormatFloat(t, 'f', -1, 64))
	case int, int64, int32:
		return fmt.Sprint(t)
	case []any:
		if len(t) == 1 {
			return "1 item"
		}
		return fmt.Sprintf("%d items", len(t))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func formatNumber(lit string) string {
	if !strings.ContainsAny(lit, ".eE") {
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// Label turns a field name into a display label: "stock_count" -> "Stock count".
func Label(field string) string {
	if field == "" {
		return ""
	}
	s := strings.NewReplacer("_", " ", "-", " ").Replace(field)
	// split camelCase
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' && s[i-1] != ' ' {
			b.WriteByte(' ')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()
	if s == "id" {
		return "ID"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
