package statemachine

import (
	"context"
	"fmt"
)

// Table is an immutable transition table indexed by [from][event].
// It is safe for concurrent use once built.
type Table struct {
	transitions map[string]map[string][]TransitionDef
}

// NewTable builds a table from defs. Several definitions may share a
// from/event pair; the first whose guards pass wins.
func NewTable(defs ...TransitionDef) (*Table, error) {
	t := &Table{transitions: make(map[string]map[string][]TransitionDef)}
	for i, d := range defs {
		if d.From == nil || d.To == nil || d.Event == nil {
			return nil, fmt.Errorf("transition[%d]: %w", i, ErrInvalidTransition)
		}
		byEvent, ok := t.transitions[d.From.Name()]
		if !ok {
			byEvent = make(map[string][]TransitionDef)
			t.transitions[d.From.Name()] = byEvent
		}
		byEvent[d.Event.Name()] = append(byEvent[d.Event.Name()], d)
	}
	return t, nil
}

// MustNewTable is like NewTable but panics on an invalid definition.
func MustNewTable(defs ...TransitionDef) *Table {
	t, err := NewTable(defs...)
	if err != nil {
		panic(fmt.Sprintf("failed to build transition table: %v", err))
	}
	return t
}

// Next resolves event against from, runs the chosen transition's actions and
// returns the target state.
func (t *Table) Next(ctx context.Context, from State, event Event, data any) (State, error) {
	if from == nil || event == nil {
		return nil, ErrInvalidEvent
	}

	candidates := t.transitions[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return nil, &TransitionError{From: from.Name(), Event: event.Name(), Err: ErrNoTransition}
	}

	def, ok := pick(ctx, candidates, from, event, data)
	if !ok {
		return nil, &TransitionError{From: from.Name(), Event: event.Name(), Err: ErrGuardRejected}
	}

	for _, action := range def.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, def.To, event, data); err != nil {
			return nil, fmt.Errorf("action failed: %w", err)
		}
	}

	return def.To, nil
}

// Can reports whether event would move from to another state. Actions are not run.
func (t *Table) Can(ctx context.Context, from State, event Event, data any) bool {
	if from == nil || event == nil {
		return false
	}
	_, ok := pick(ctx, t.transitions[from.Name()][event.Name()], from, event, data)
	return ok
}

func pick(ctx context.Context, candidates []TransitionDef, from State, event Event, data any) (TransitionDef, bool) {
	for _, c := range candidates {
		passed := true
		for _, guard := range c.Guards {
			if guard != nil && !guard(ctx, from, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return c, true
		}
	}
	return TransitionDef{}, false
}
