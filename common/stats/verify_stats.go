package stats

import (
	"fmt"
	"sort"
	"strings"
	"testing"
)

/*
Utilities for validating registry contents from tests in other packages.
*/

// Expect maps a rendered stat name to its expected int64 value.
// A nil value asserts the stat was never registered.
type Expect map[string]interface{}

// VerifyStats renders stat's registry and reports every mismatch with one t.Error.
// Only finagle registries (the default) can be verified.
func VerifyStats(t testing.TB, stat StatsReceiver, expected Expect) {
	t.Helper()
	got, ok := marshalAll(stat)
	if !ok {
		t.Fatalf("VerifyStats: %T is not backed by a finagle registry", stat)
	}

	var problems []string
	for key, want := range expected {
		value, present := got[key]
		switch {
		case want == nil && present:
			problems = append(problems, fmt.Sprintf("%s: found %v, expected no entry", key, value))
		case want == nil:
		case !present:
			problems = append(problems, fmt.Sprintf("%s: missing, expected %v", key, want))
		case toInt64(value) != toInt64(want):
			problems = append(problems, fmt.Sprintf("%s: got %v, expected %v", key, value, want))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		t.Errorf("stats registry mismatch:\n%s\n%s", strings.Join(problems, "\n"), stat.Render(true))
	}
}

// CounterValue reads a counter without registering it as a side effect.
func CounterValue(stat StatsReceiver, name string) int64 {
	got, _ := marshalAll(stat)
	return toInt64(got[name])
}

func marshalAll(stat StatsReceiver) (map[string]interface{}, bool) {
	s, ok := stat.(*defaultStatsReceiver)
	if !ok {
		return nil, false
	}
	reg, ok := s.registry.(*finagleStatsRegistry)
	if !ok {
		return nil, false
	}
	return reg.MarshalAll(), true
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return -1
}
