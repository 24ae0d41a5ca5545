package params

import (
	"fmt"

	"github.com/averros/ecoscen/internal/engine"
)

// Manager holds the two parameter sets of a scenario batch: constants,
// fixed across all scenarios and applied once per fresh handle, and
// variables, whose values arrive per scenario row. Names are resolved
// once at registration; the per-row apply path performs engine calls
// only. A configured Manager is read-only during applies and is shared
// across workers without synchronization.
type Manager struct {
	reg       *Registry
	constants []constantParam
	variables []variableParam
}

type constantParam struct {
	binding Binding
	value   float64
}

type variableParam struct {
	binding Binding
	// slot indexes into the value row handed to ApplyVariable.
	slot int
}

// NewManager creates an empty manager over a registry.
func NewManager(reg *Registry) *Manager {
	return &Manager{reg: reg}
}

// Registry returns the registry the manager resolves against.
func (m *Manager) Registry() *Registry {
	return m.reg
}

// SetConstant registers parameters held fixed for every scenario. Each
// name is resolved immediately; an unresolvable name fails the call and
// registers nothing from it.
func (m *Manager) SetConstant(names []string, values []float64) error {
	if len(names) != len(values) {
		return &ValidationError{
			Kind: ValueCountMismatch,
			Msg:  fmt.Sprintf("%d names but %d values", len(names), len(values)),
		}
	}
	resolved := make([]constantParam, 0, len(names))
	for i, name := range names {
		b, err := m.reg.Resolve(name)
		if err != nil {
			return err
		}
		resolved = append(resolved, constantParam{binding: b, value: values[i]})
	}
	m.constants = append(m.constants, resolved...)
	return nil
}

// SetVariable registers parameters supplied per scenario row. slots[i]
// is the index into the row value slice where names[i]'s value lives.
func (m *Manager) SetVariable(names []string, slots []int) error {
	if len(names) != len(slots) {
		return &ValidationError{
			Kind: ValueCountMismatch,
			Msg:  fmt.Sprintf("%d names but %d slots", len(names), len(slots)),
		}
	}
	resolved := make([]variableParam, 0, len(names))
	for i, name := range names {
		b, err := m.reg.Resolve(name)
		if err != nil {
			return err
		}
		resolved = append(resolved, variableParam{binding: b, slot: slots[i]})
	}
	m.variables = append(m.variables, resolved...)
	return nil
}

// VariableCount returns the number of registered variable parameters.
func (m *Manager) VariableCount() int {
	return len(m.variables)
}

// ConstantCount returns the number of registered constant parameters.
func (m *Manager) ConstantCount() int {
	return len(m.constants)
}

// ApplyConstant writes every constant parameter into the engine. Called
// once per fresh handle, before the first variable application.
func (m *Manager) ApplyConstant(e engine.Engine) error {
	for _, c := range m.constants {
		if err := c.binding.Apply(e, c.value); err != nil {
			return fmt.Errorf("apply constant %q: %w", c.binding.Name, err)
		}
	}
	return nil
}

// ApplyVariable writes one scenario row's values into the engine. The
// row must carry a value for every registered variable slot.
func (m *Manager) ApplyVariable(e engine.Engine, row []float64) error {
	if len(row) != len(m.variables) {
		return &ValidationError{
			Kind: ValueCountMismatch,
			Msg:  fmt.Sprintf("row has %d values for %d variable parameters", len(row), len(m.variables)),
		}
	}
	for _, v := range m.variables {
		if v.slot < 0 || v.slot >= len(row) {
			return &ValidationError{
				Kind: ValueCountMismatch,
				Name: v.binding.Name,
				Msg:  fmt.Sprintf("slot %d out of range for row of %d values", v.slot, len(row)),
			}
		}
	}
	for _, v := range m.variables {
		if err := v.binding.Apply(e, row[v.slot]); err != nil {
			return fmt.Errorf("apply variable %q: %w", v.binding.Name, err)
		}
	}
	return nil
}
