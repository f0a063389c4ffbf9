// Package changedetect computes the minimal set of fields that differ between a
// stored record and an incoming partial update.
package changedetect

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Result lists the fields an update would actually change.
type Result struct {
	Changed       bool
	ChangedFields []string
}

var (
	intPrefix   = regexp.MustCompile(`^\s*([+-]?\d+)`)
	floatPrefix = regexp.MustCompile(`^\s*([+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)
)

// Detect compares incoming against old. A nil old means there is no stored record yet,
// in which case every non-nil incoming value counts as changed. Keys absent from
// incoming are never reported.
func Detect(old map[string]any, incoming map[string]any) Result {
	changed := make([]string, 0, len(incoming))

	for field, newValue := range incoming {
		if old == nil {
			if newValue != nil {
				changed = append(changed, field)
			}
			continue
		}
		if !Equal(old[field], newValue) {
			changed = append(changed, field)
		}
	}

	sort.Strings(changed)
	return Result{Changed: len(changed) > 0, ChangedFields: changed}
}

// Equal reports whether a stored value and an incoming value are the same for change
// tracking purposes. nil and "" are interchangeable. A number and a numeric string are
// equal only if their integer prefixes and their float prefixes both match.
func Equal(stored, incoming any) bool {
	storedEmpty, incomingEmpty := isEmpty(stored), isEmpty(incoming)
	if storedEmpty && incomingEmpty {
		return true
	}
	if storedEmpty || incomingEmpty {
		return false
	}

	storedNum, storedIsNum := asNumber(stored)
	incomingNum, incomingIsNum := asNumber(incoming)
	switch {
	case storedIsNum && incomingIsNum:
		return storedNum.Equal(incomingNum)
	case storedIsNum:
		if s, ok := incoming.(string); ok {
			return numericStringEqual(storedNum, s)
		}
	case incomingIsNum:
		if s, ok := stored.(string); ok {
			return numericStringEqual(incomingNum, s)
		}
	}

	if a, ok := stored.(string); ok {
		if b, ok := incoming.(string); ok {
			return a == b
		}
	}
	return reflect.DeepEqual(stored, incoming)
}

// Diff lists field level differences between two snapshots, sorted by field name.
func Diff(from, to map[string]any) []domain.FieldDifference {
	keys := make(map[string]struct{}, len(from)+len(to))
	for k := range from {
		keys[k] = struct{}{}
	}
	for k := range to {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	diffs := make([]domain.FieldDifference, 0)
	for _, name := range names {
		oldValue, inFrom := from[name]
		newValue, inTo := to[name]
		switch {
		case !inFrom && !isEmpty(newValue):
			diffs = append(diffs, domain.FieldDifference{Field: name, Kind: domain.DifferenceAdded, NewValue: newValue})
		case !inTo && !isEmpty(oldValue):
			diffs = append(diffs, domain.FieldDifference{Field: name, Kind: domain.DifferenceRemoved, OldValue: oldValue})
		case inFrom && inTo && !Equal(oldValue, newValue):
			diffs = append(diffs, domain.FieldDifference{Field: name, Kind: domain.DifferenceChanged, OldValue: oldValue, NewValue: newValue})
		}
	}
	return diffs
}

func isEmpty(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == ""
	case json.Number:
		return tv == ""
	}
	return false
}

func asNumber(v any) (decimal.Decimal, bool) {
	switch tv := v.(type) {
	case decimal.Decimal:
		return tv, true
	case *decimal.Decimal:
		if tv == nil {
			return decimal.Zero, false
		}
		return *tv, true
	case json.Number:
		d, err := decimal.NewFromString(tv.String())
		return d, err == nil
	case float64:
		if math.IsNaN(tv) || math.IsInf(tv, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(tv), true
	case float32:
		if math.IsNaN(float64(tv)) || math.IsInf(float64(tv), 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(tv), true
	case int:
		return decimal.NewFromInt(int64(tv)), true
	case int8:
		return decimal.NewFromInt(int64(tv)), true
	case int16:
		return decimal.NewFromInt(int64(tv)), true
	case int32:
		return decimal.NewFromInt(int64(tv)), true
	case int64:
		return decimal.NewFromInt(tv), true
	case uint:
		return decimal.NewFromUint64(uint64(tv)), true
	case uint32:
		return decimal.NewFromUint64(uint64(tv)), true
	case uint64:
		return decimal.NewFromUint64(tv), true
	}
	return decimal.Zero, false
}

func numericStringEqual(n decimal.Decimal, s string) bool {
	intValue, ok := parsePrefix(intPrefix, s)
	if !ok || !intValue.Equal(n.Truncate(0)) {
		return false
	}
	floatValue, ok := parsePrefix(floatPrefix, s)
	return ok && floatValue.Equal(n)
}

func parsePrefix(re *regexp.Regexp, s string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}
	num := strings.TrimPrefix(m[1], "+")
	num = strings.TrimSuffix(num, ".")
	if strings.HasPrefix(num, "-.") {
		num = "-0" + num[1:]
	} else if strings.HasPrefix(num, ".") {
		num = "0" + num
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
