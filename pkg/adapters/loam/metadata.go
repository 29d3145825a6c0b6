package loam

// StateMetadata is the frontmatter of a state or transition group document.
// A document declaring Group (and no ID) contributes a transition group.
type StateMetadata struct {
	ID            int64              `json:"id" mapstructure:"id"`
	Name          string             `json:"name" mapstructure:"name"`
	Type          string             `json:"type" mapstructure:"type"`
	Attributes    map[string]any     `json:"attributes" mapstructure:"attributes"`
	Transitions   []TransitionMeta   `json:"transitions" mapstructure:"transitions"`
	Groups        []string           `json:"groups" mapstructure:"groups"`
	Prerequisites []PrerequisiteMeta `json:"prerequisites" mapstructure:"prerequisites"`

	Group string `json:"group" mapstructure:"group"`
}

// TransitionMeta is a transition as written in frontmatter.
// "on" is accepted as an alias of "name".
type TransitionMeta struct {
	Name            string   `json:"name" mapstructure:"name"`
	On              string   `json:"on" mapstructure:"on"`
	To              int64    `json:"to" mapstructure:"to"`
	PublishKeys     []string `json:"publish_keys" mapstructure:"publish_keys"`
	ContentProvider string   `json:"content_provider" mapstructure:"content_provider"`
}

// PrerequisiteMeta is a prerequisite as written in frontmatter.
type PrerequisiteMeta struct {
	Name  string `json:"name" mapstructure:"name"`
	State int64  `json:"state" mapstructure:"state"`
	Event string `json:"event" mapstructure:"event"`
}
