package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/devblac/event-relay/internal/contracts"
)

// ErrNotFound is returned when no family is registered for an identifier.
var ErrNotFound = errors.New("no scanner registered for identifier")

// Binding is the scanner configuration an identifier resolves to.
// CursorKey is the store key whose cursor the pass reads and advances.
type Binding struct {
	CursorKey string
	Family    string
	Events    []contracts.EventSpec
}

// Table routes target identifiers to contract families. It is immutable after New.
type Table struct {
	exact  map[string]contracts.Family
	prefix map[string]contracts.Family
}

// New builds a table from families, rejecting ambiguous routes.
func New(families []contracts.Family) (*Table, error) {
	t := &Table{
		exact:  map[string]contracts.Family{},
		prefix: map[string]contracts.Family{},
	}
	for _, f := range families {
		if len(f.Events) == 0 {
			return nil, fmt.Errorf("family %s has no events", f.Name)
		}
		for _, id := range f.Identifiers {
			if prev, ok := t.exact[id]; ok {
				return nil, fmt.Errorf("identifier %s registered by %s and %s", id, prev.Name, f.Name)
			}
			t.exact[id] = f
		}
		if f.Prefix != "" {
			if prev, ok := t.prefix[f.Prefix]; ok {
				return nil, fmt.Errorf("prefix %s registered by %s and %s", f.Prefix, prev.Name, f.Name)
			}
			t.prefix[f.Prefix] = f
		}
	}
	return t, nil
}

// Default builds the table for the built-in contract registry.
func Default() *Table {
	t, err := New(contracts.Families())
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the binding for identifier, or ErrNotFound.
func (t *Table) Resolve(identifier string) (Binding, error) {
	if f, ok := t.exact[identifier]; ok {
		return bind(identifier, f), nil
	}
	if p, name, ok := strings.Cut(identifier, ":"); ok && name != "" {
		if f, ok := t.prefix[p]; ok {
			return bind(identifier, f), nil
		}
	}
	return Binding{}, fmt.Errorf("%w: %s", ErrNotFound, identifier)
}

// Identifiers lists exact identifiers and prefix patterns in sorted order.
func (t *Table) Identifiers() []string {
	out := make([]string, 0, len(t.exact)+len(t.prefix))
	for id := range t.exact {
		out = append(out, id)
	}
	for p := range t.prefix {
		out = append(out, p+":<name>")
	}
	sort.Strings(out)
	return out
}

func bind(identifier string, f contracts.Family) Binding {
	return Binding{CursorKey: identifier, Family: f.Name, Events: f.Events}
}
