package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Transition is a named, directed edge between two states.
// Transitions are immutable once built; use CloneFrom to reuse one on another state.
type Transition struct {
	From  int64  `json:"from" yaml:"from"`
	To    int64  `json:"to" yaml:"to"`
	Event string `json:"event" yaml:"event"`

	// PublishKeyParams restricts the request parameters used for the cache key.
	// Lower-cased and sorted.
	PublishKeyParams []string `json:"publish_key_params,omitempty" yaml:"publish_key_params,omitempty"`

	// ContentProvider names the provider that renders the target state.
	ContentProvider string `json:"content_provider,omitempty" yaml:"content_provider,omitempty"`
}

// NewTransition normalizes event and publish key parameter names.
func NewTransition(from, to int64, event string, keyParams []string, provider string) *Transition {
	var params []string
	if len(keyParams) > 0 {
		params = make([]string, 0, len(keyParams))
		for _, p := range keyParams {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				params = append(params, p)
			}
		}
		sort.Strings(params)
	}
	return &Transition{
		From:             from,
		To:               to,
		Event:            NormalizeEvent(event),
		PublishKeyParams: params,
		ContentProvider:  strings.TrimSpace(provider),
	}
}

// CloneFrom returns a copy of t with a substituted source state.
func (t *Transition) CloneFrom(from int64) *Transition {
	c := *t
	c.From = from
	if t.PublishKeyParams != nil {
		c.PublishKeyParams = append([]string(nil), t.PublishKeyParams...)
	}
	return &c
}

// NormalizeEvent lower-cases and trims an event name.
func NormalizeEvent(event string) string {
	return strings.ToLower(strings.TrimSpace(event))
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
