package domain

import (
	"strings"
)

// Hop is one resolved transition of a walk, kept for diagnostics.
type Hop struct {
	From     int64  `json:"from"`
	To       int64  `json:"to"`
	Event    string `json:"event"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Request is the per-request context threaded through the engine, the behaviors
// and the publishers. It is owned by a single request goroutine.
type Request struct {
	Site    string
	Section string

	// Params holds the request parameters (query/form values).
	Params map[string]string

	// Values is scratch space for behaviors.
	Values map[string]any

	// Current is the state the engine is executing.
	Current *State

	// Trace lists every hop taken by the main walk and its prerequisites.
	Trace []Hop
}

// NewRequest creates a request with the given parameters.
func NewRequest(params map[string]string) *Request {
	p := make(map[string]string, len(params))
	for k, v := range params {
		p[k] = v
	}
	return &Request{
		Params: p,
		Values: make(map[string]any),
	}
}

// Param returns a parameter value. Names are matched case-insensitively.
func (r *Request) Param(name string) (string, bool) {
	if v, ok := r.Params[name]; ok {
		return v, true
	}
	for k, v := range r.Params {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Flag reports whether a parameter is present with a truthy value.
// A present parameter with an empty value counts as set.
func (r *Request) Flag(name string) bool {
	v, ok := r.Param(name)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "1", "y", "yes", "true", "on":
		return true
	}
	return false
}

// SetParam sets a request parameter. Used by action behaviors.
func (r *Request) SetParam(name, value string) {
	if r.Params == nil {
		r.Params = make(map[string]string)
	}
	r.Params[name] = value
}

// AddHop appends a hop to the trace.
func (r *Request) AddHop(h Hop) {
	r.Trace = append(r.Trace, h)
}

// TraceCopy returns a copy of the hop trace.
func (r *Request) TraceCopy() []Hop {
	return append([]Hop(nil), r.Trace...)
}
