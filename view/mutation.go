package view

import (
	"context"
	"errors"
	"reflect"
	"slices"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/privacy"
)

// Event identifies a flush lifecycle callback.
type Event uint8

// Flush events.
const (
	PrePersist Event = iota + 1
	PostPersist
	PreUpdate
	PostUpdate
	PreRemove
	PostRemove
)

func (e Event) String() string {
	switch e {
	case PrePersist:
		return "PrePersist"
	case PostPersist:
		return "PostPersist"
	case PreUpdate:
		return "PreUpdate"
	case PostUpdate:
		return "PostUpdate"
	case PreRemove:
		return "PreRemove"
	case PostRemove:
		return "PostRemove"
	}
	return "Event(unknown)"
}

// Listener is called with a pointer to the flushed view struct. An error
// aborts the flush.
type Listener func(ctx context.Context, v any) error

// Views may implement the listener interfaces below to be called during
// flushes.
type (
	PrePersister interface {
		PrePersist(context.Context) error
	}
	PostPersister interface {
		PostPersist(context.Context) error
	}
	PreUpdater interface {
		PreUpdate(context.Context) error
	}
	PostUpdater interface {
		PostUpdate(context.Context) error
	}
	PreRemover interface {
		PreRemove(context.Context) error
	}
	PostRemover interface {
		PostRemove(context.Context) error
	}
)

// notify calls the method of the view and the listeners of the event.
func (m *Manager) notify(ctx context.Context, e Event, v reflect.Value) error {
	p := v.Addr().Interface()
	var err error
	switch e {
	case PrePersist:
		if l, ok := p.(PrePersister); ok {
			err = l.PrePersist(ctx)
		}
	case PostPersist:
		if l, ok := p.(PostPersister); ok {
			err = l.PostPersist(ctx)
		}
	case PreUpdate:
		if l, ok := p.(PreUpdater); ok {
			err = l.PreUpdate(ctx)
		}
	case PostUpdate:
		if l, ok := p.(PostUpdater); ok {
			err = l.PostUpdate(ctx)
		}
	case PreRemove:
		if l, ok := p.(PreRemover); ok {
			err = l.PreRemove(ctx)
		}
	case PostRemove:
		if l, ok := p.(PostRemover); ok {
			err = l.PostRemove(ctx)
		}
	}
	if err != nil {
		return err
	}
	for _, l := range m.listeners[e] {
		if err := l(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// mutation is the blaze.Mutation passed to policies.
type mutation struct {
	op     blaze.Op
	view   string
	entity string
	id     any
	fields []string
	values map[string]any
}

func newMutation(op blaze.Op, vt *viewType, id any) *mutation {
	return &mutation{op: op, view: vt.name, entity: vt.entity.Name, id: id, values: make(map[string]any)}
}

func (m *mutation) set(name string, v any) {
	if _, ok := m.values[name]; !ok {
		m.fields = append(m.fields, name)
	}
	m.values[name] = v
}

func (m *mutation) Op() blaze.Op     { return m.op }
func (m *mutation) View() string     { return m.view }
func (m *mutation) Entity() string   { return m.entity }
func (m *mutation) ID() any          { return m.id }
func (m *mutation) Fields() []string { return slices.Clone(m.fields) }

func (m *mutation) Field(name string) (any, bool) {
	v, ok := m.values[name]
	return v, ok
}

var _ blaze.Mutation = (*mutation)(nil)

// evalMutation evaluates the policy of the manager.
func (m *Manager) evalMutation(ctx context.Context, mu *mutation) error {
	if m.policy == nil {
		return nil
	}
	if err := m.policy.EvalMutation(ctx, mu); err != nil && !errors.Is(err, privacy.Allow) {
		return blaze.NewPolicyError(mu.view, mu.op.String(), err)
	}
	return nil
}
