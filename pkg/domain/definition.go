package domain

// Definition is the raw graph definition produced by a DefinitionLoader.
// State ids are positive; zero means "unset" in references.
type Definition struct {
	States []StateDef `json:"states" yaml:"states" mapstructure:"states"`

	// Transitions declared outside a state must set From.
	Transitions []TransitionDef `json:"transitions,omitempty" yaml:"transitions,omitempty" mapstructure:"transitions"`

	// Groups are named, reusable transition sets merged into states by reference.
	Groups []GroupDef `json:"groups,omitempty" yaml:"groups,omitempty" mapstructure:"groups"`
}

// StateDef is the raw definition of a State.
type StateDef struct {
	ID            int64             `json:"id" yaml:"id" mapstructure:"id"`
	Name          string            `json:"name" yaml:"name" mapstructure:"name"`
	Type          string            `json:"type" yaml:"type" mapstructure:"type"`
	Attributes    map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" mapstructure:"attributes"`
	Prerequisites []PrerequisiteDef `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty" mapstructure:"prerequisites"`
	Transitions   []TransitionDef   `json:"transitions,omitempty" yaml:"transitions,omitempty" mapstructure:"transitions"`
	Groups        []string          `json:"groups,omitempty" yaml:"groups,omitempty" mapstructure:"groups"`
}

// TransitionDef is the raw definition of a Transition.
type TransitionDef struct {
	From            int64    `json:"from,omitempty" yaml:"from,omitempty" mapstructure:"from"`
	To              int64    `json:"to" yaml:"to" mapstructure:"to"`
	Name            string   `json:"name" yaml:"name" mapstructure:"name"`
	PublishKeys     []string `json:"publish_keys,omitempty" yaml:"publish_keys,omitempty" mapstructure:"publish_keys"`
	ContentProvider string   `json:"content_provider,omitempty" yaml:"content_provider,omitempty" mapstructure:"content_provider"`
}

// GroupDef is a named transition group.
type GroupDef struct {
	Name        string          `json:"name" yaml:"name" mapstructure:"name"`
	Transitions []TransitionDef `json:"transitions" yaml:"transitions" mapstructure:"transitions"`
}

// PrerequisiteDef is the raw definition of a Prerequisite.
type PrerequisiteDef struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	State int64  `json:"state" yaml:"state" mapstructure:"state"`
	Event string `json:"event" yaml:"event" mapstructure:"event"`
}
