package graph

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/mitchellh/mapstructure"
)

// Issue describes a definition item skipped during Build.
type Issue struct {
	StateID int64  `json:"state_id"`
	Event   string `json:"event,omitempty"`
	Reason  string `json:"reason"`
}

// Report lists everything Build skipped.
type Report struct {
	Issues []Issue `json:"issues"`
}

// OK reports whether the whole definition was accepted.
func (r *Report) OK() bool {
	return len(r.Issues) == 0
}

// publishAttrs is the attribute view decoded into domain.PublishSettings.
type publishAttrs struct {
	Publish       *bool    `mapstructure:"publish"`
	Publisher     string   `mapstructure:"publisher"`
	ExcludeParams []string `mapstructure:"excludeparams"`
	Site          string   `mapstructure:"site"`
	Section       string   `mapstructure:"section"`
	Page          string   `mapstructure:"page"`
}

type builder struct {
	kinds  *registry.Registry[KindFactory]
	logger *slog.Logger
	report *Report
	states map[int64]*domain.State
}

// Build turns a raw definition into an immutable Graph.
// Items that cannot be resolved (unknown kind, unknown target or group, malformed
// entries) are logged, recorded in the report and skipped; the rest of the graph is kept.
func Build(def *domain.Definition, kinds *registry.Registry[KindFactory], logger *slog.Logger) (*Graph, *Report) {
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &builder{
		kinds:  kinds,
		logger: logger,
		report: &Report{},
		states: make(map[int64]*domain.State),
	}
	if def == nil {
		return &Graph{states: b.states}, b.report
	}

	groups := b.collectGroups(def.Groups)

	accepted := make([]bool, len(def.States))
	for i, sd := range def.States {
		accepted[i] = b.addState(sd)
	}

	for i, sd := range def.States {
		if !accepted[i] {
			continue
		}
		st := b.states[sd.ID]
		for _, td := range sd.Transitions {
			if td.From != 0 && td.From != sd.ID {
				b.skip(sd.ID, td.Name, fmt.Sprintf("inline transition declares foreign source %d", td.From))
				continue
			}
			b.addTransition(st, td)
		}
		for _, name := range sd.Groups {
			members, ok := groups[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				b.skip(sd.ID, "", fmt.Sprintf("unknown transition group %q", name))
				continue
			}
			for _, td := range members {
				b.addTransition(st, td)
			}
		}
	}

	for _, td := range def.Transitions {
		st, ok := b.states[td.From]
		if !ok {
			b.skip(td.From, td.Name, "transition source is not a loaded state")
			continue
		}
		b.addTransition(st, td)
	}

	for _, st := range b.states {
		b.checkPrerequisites(st)
	}

	return &Graph{states: b.states}, b.report
}

func (b *builder) skip(stateID int64, event, reason string) {
	b.logger.Warn("skipping graph item", "state_id", stateID, "event", event, "reason", reason)
	b.report.Issues = append(b.report.Issues, Issue{StateID: stateID, Event: event, Reason: reason})
}

func (b *builder) collectGroups(defs []domain.GroupDef) map[string][]domain.TransitionDef {
	groups := make(map[string][]domain.TransitionDef, len(defs))
	for _, g := range defs {
		name := strings.ToLower(strings.TrimSpace(g.Name))
		if name == "" {
			b.skip(0, "", "transition group without name")
			continue
		}
		if _, dup := groups[name]; dup {
			b.skip(0, "", fmt.Sprintf("duplicate transition group %q", g.Name))
			continue
		}
		groups[name] = g.Transitions
	}
	return groups
}

func (b *builder) addState(sd domain.StateDef) bool {
	if sd.ID <= 0 {
		b.skip(sd.ID, "", "state id must be positive")
		return false
	}
	if _, dup := b.states[sd.ID]; dup {
		b.skip(sd.ID, "", "duplicate state id")
		return false
	}

	kind := domain.StateKind(strings.ToLower(strings.TrimSpace(sd.Type)))
	if kind == "" {
		kind = domain.KindPage
	}
	attrs := make(map[string]string, len(sd.Attributes))
	for k, v := range sd.Attributes {
		attrs[strings.ToLower(k)] = v
	}
	sd.Attributes = attrs

	factory, err := b.kinds.Lookup(string(kind))
	if err != nil {
		b.skip(sd.ID, "", err.Error())
		return false
	}
	behavior, err := factory(sd)
	if err != nil {
		b.skip(sd.ID, "", fmt.Sprintf("cannot construct %s state: %v", kind, err))
		return false
	}

	publish, err := decodePublish(sd, attrs)
	if err != nil {
		b.skip(sd.ID, "", fmt.Sprintf("invalid publish attributes: %v", err))
		return false
	}

	st := &domain.State{
		ID:          sd.ID,
		Name:        sd.Name,
		Kind:        kind,
		Attributes:  attrs,
		Transitions: make(map[string]*domain.Transition),
		Publish:     publish,
		Behavior:    behavior,
	}

	for _, pd := range sd.Prerequisites {
		if pd.State <= 0 || strings.TrimSpace(pd.Event) == "" {
			b.skip(sd.ID, pd.Event, fmt.Sprintf("malformed prerequisite %q", pd.Name))
			continue
		}
		st.Prerequisites = append(st.Prerequisites, domain.Prerequisite{
			Name:       pd.Name,
			StartState: pd.State,
			StartEvent: domain.NormalizeEvent(pd.Event),
		})
	}

	b.states[sd.ID] = st
	return true
}

func decodePublish(sd domain.StateDef, attrs map[string]string) (*domain.PublishSettings, error) {
	var pa publishAttrs
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		Result:           &pa,
	})
	if err != nil {
		return nil, err
	}
	// exclude-params, exclude_params and excludeParams are accepted alike.
	view := make(map[string]string, len(attrs))
	for k, v := range attrs {
		view[strings.NewReplacer("-", "", "_", "").Replace(k)] = v
	}
	if err := dec.Decode(view); err != nil {
		return nil, err
	}
	if pa.Publish == nil {
		return nil, nil
	}

	exclude := make([]string, 0, len(pa.ExcludeParams))
	for _, p := range pa.ExcludeParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			exclude = append(exclude, p)
		}
	}

	page := pa.Page
	if page == "" {
		page = sd.Name
	}
	if page == "" {
		page = fmt.Sprintf("state%d", sd.ID)
	}

	publisher := pa.Publisher
	if publisher == "" {
		publisher = DefaultPublisher
	}

	return &domain.PublishSettings{
		Enabled:       *pa.Publish,
		Publisher:     publisher,
		ExcludeParams: exclude,
		Site:          pa.Site,
		Section:       pa.Section,
		Page:          page,
	}, nil
}

// DefaultPublisher is the publisher name used when a state does not set one.
const DefaultPublisher = "default"

func (b *builder) addTransition(st *domain.State, td domain.TransitionDef) {
	event := domain.NormalizeEvent(td.Name)
	if event == "" {
		b.skip(st.ID, td.Name, "transition without event name")
		return
	}
	if _, ok := b.states[td.To]; !ok {
		b.skip(st.ID, event, fmt.Sprintf("unknown transition target %d", td.To))
		return
	}
	if _, dup := st.Transitions[event]; dup {
		b.skip(st.ID, event, "duplicate event on state")
		return
	}
	st.Transitions[event] = domain.NewTransition(st.ID, td.To, event, td.PublishKeys, td.ContentProvider)
}

func (b *builder) checkPrerequisites(st *domain.State) {
	if !st.HasPrerequisites() {
		return
	}
	kept := st.Prerequisites[:0]
	for _, p := range st.Prerequisites {
		if _, ok := b.states[p.StartState]; !ok {
			b.skip(st.ID, p.StartEvent, fmt.Sprintf("prerequisite start state %d not loaded", p.StartState))
			continue
		}
		kept = append(kept, p)
	}
	st.Prerequisites = kept
}
