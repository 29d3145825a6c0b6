package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
)

// KindFactory constructs the behavior of a state from its raw definition.
type KindFactory func(def domain.StateDef) (domain.Behavior, error)

// Action is the business logic attached to an action state.
type Action = domain.BehaviorFunc

// NewKinds returns a kind registry with the built-in state kinds.
// Action states resolve their "action" attribute against actions.
func NewKinds(actions *registry.Registry[Action]) *registry.Registry[KindFactory] {
	kinds := registry.New[KindFactory]("state kind")
	kinds.Register(string(domain.KindStart), attrEvent("event"))
	kinds.Register(string(domain.KindPage), attrEvent("next"))
	kinds.Register(string(domain.KindStop), func(domain.StateDef) (domain.Behavior, error) {
		return domain.BehaviorFunc(func(context.Context, *domain.Request) (string, error) {
			return "", nil
		}), nil
	})
	kinds.Register(string(domain.KindAction), func(def domain.StateDef) (domain.Behavior, error) {
		name := def.Attributes["action"]
		if name == "" {
			return nil, fmt.Errorf("action state %d has no action attribute", def.ID)
		}
		fn, err := actions.Lookup(name)
		if err != nil {
			return nil, err
		}
		return fn, nil
	})
	return kinds
}

// attrEvent emits the value of a fixed attribute as the next event.
func attrEvent(attr string) KindFactory {
	return func(def domain.StateDef) (domain.Behavior, error) {
		next := def.Attributes[attr]
		return domain.BehaviorFunc(func(context.Context, *domain.Request) (string, error) {
			return next, nil
		}), nil
	}
}

// NewActions returns an action registry with the built-in actions:
//
//   - "emit": returns the state's "event" attribute.
//   - "route": returns the value of the request parameter named by the "param"
//     attribute, falling back to the "default" attribute.
//   - "set": copies every "set.<name>" attribute into the request parameters,
//     then returns the "event" attribute.
func NewActions() *registry.Registry[Action] {
	actions := registry.New[Action]("action")
	actions.Register("emit", func(_ context.Context, req *domain.Request) (string, error) {
		return req.Current.Attr("event", ""), nil
	})
	actions.Register("route", func(_ context.Context, req *domain.Request) (string, error) {
		param := req.Current.Attr("param", "")
		if param == "" {
			return "", fmt.Errorf("route action on state %d has no param attribute", req.Current.ID)
		}
		if v, ok := req.Param(param); ok && v != "" {
			return v, nil
		}
		return req.Current.Attr("default", ""), nil
	})
	actions.Register("set", func(_ context.Context, req *domain.Request) (string, error) {
		for k, v := range req.Current.Attributes {
			if name, ok := strings.CutPrefix(k, "set."); ok && name != "" {
				req.SetParam(name, v)
			}
		}
		return req.Current.Attr("event", ""), nil
	})
	return actions
}
