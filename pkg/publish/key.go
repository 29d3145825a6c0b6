package publish

import (
	"sort"
	"strconv"
	"strings"
)

// Reserved request parameters. They steer the controller and never take part in a cache key.
const (
	ParamEvent     = "event"
	ParamState     = "state"
	ParamDynamic   = "dynamic"
	ParamRepublish = "republish"
)

// ReservedParams returns the framework-reserved parameter names.
func ReservedParams() []string {
	return []string{ParamEvent, ParamState, ParamDynamic, ParamRepublish}
}

const keyDelimiter = "_"

// KeyDeriver computes cache keys from a start state, the firing event and the
// request parameters.
type KeyDeriver struct {
	ignore map[string]struct{}
}

// NewKeyDeriver creates a deriver that ignores the reserved parameters plus ignore.
func NewKeyDeriver(ignore ...string) *KeyDeriver {
	d := &KeyDeriver{ignore: make(map[string]struct{})}
	for _, p := range append(ReservedParams(), ignore...) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			d.ignore[p] = struct{}{}
		}
	}
	return d
}

// Key returns "{start}_{event}_{values}".
//
// Parameter names are compared case-insensitively. Ignored and excluded names
// are dropped; when only is non-empty, only those names take part. Remaining
// names are sorted and their non-empty values joined with "_".
func (d *KeyDeriver) Key(start int64, event string, params map[string]string, exclude, only []string) string {
	skip := make(map[string]struct{}, len(exclude))
	for _, p := range exclude {
		skip[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	var allow map[string]struct{}
	if len(only) > 0 {
		allow = make(map[string]struct{}, len(only))
		for _, p := range only {
			allow[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
		}
	}

	values := make(map[string]string, len(params))
	names := make([]string, 0, len(params))
	for name, v := range params {
		n := strings.ToLower(name)
		if _, ok := d.ignore[n]; ok {
			continue
		}
		if _, ok := skip[n]; ok {
			continue
		}
		if allow != nil {
			if _, ok := allow[n]; !ok {
				continue
			}
		}
		if _, dup := values[n]; !dup {
			names = append(names, n)
		} else if v <= values[n] {
			// Names differing only in case: keep one value deterministically.
			continue
		}
		values[n] = v
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(strconv.FormatInt(start, 10))
	b.WriteString(keyDelimiter)
	b.WriteString(strings.ToLower(strings.TrimSpace(event)))
	b.WriteString(keyDelimiter)
	for _, n := range names {
		if v := values[n]; v != "" {
			b.WriteString(v)
			b.WriteString(keyDelimiter)
		}
	}
	return strings.TrimSuffix(b.String(), keyDelimiter)
}
