package statemachine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Machine is a thread-safe state holder driven by a Table.
type Machine struct {
	mu      sync.RWMutex
	table   *Table
	initial State
	current State
}

// New returns a Machine starting in initial.
func New(initial State, table *Table) (*Machine, error) {
	if initial == nil {
		return nil, errors.New("initial state cannot be nil")
	}
	if table == nil {
		return nil, errors.New("transition table cannot be nil")
	}
	return &Machine{table: table, initial: initial, current: initial}, nil
}

// MustNew is like New but panics on error.
func MustNew(initial State, table *Table) *Machine {
	m, err := New(initial, table)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event to the current state.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.table.Next(ctx, m.current, event, data)
	if err != nil {
		return err
	}
	m.current = next
	return nil
}

func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Can(ctx, m.current, event, data)
}

// Reset returns the machine to its initial state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}
