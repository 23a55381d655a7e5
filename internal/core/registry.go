package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry   = make(map[EntityType]EntityDefinition)
	registryMu sync.RWMutex
)

// Register adds an entity definition to the registry.
// Panics if the type is already registered or the definition is malformed.
func Register(def EntityDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Type]; exists {
		panic(fmt.Sprintf("entity already registered: %s", def.Type))
	}
	if err := def.validate(); err != nil {
		panic(fmt.Sprintf("invalid entity definition %s: %v", def.Type, err))
	}

	registry[def.Type] = def
}

func (d EntityDefinition) validate() error {
	if d.Table == "" || d.Directory == "" {
		return fmt.Errorf("table and directory are required")
	}
	keys := append(append([]string{}, d.NaturalKey...), d.OriginKey...)
	keys = append(keys, d.Unique...)
	if d.PlaceholderField != "" {
		keys = append(keys, d.PlaceholderField)
	}
	for _, k := range keys {
		if _, ok := d.Field(k); !ok {
			return fmt.Errorf("key field %q is not declared", k)
		}
	}
	for _, r := range d.References {
		f, ok := d.Field(r.Field)
		if !ok || f.Type != FieldRef {
			return fmt.Errorf("reference field %q must be a declared ref field", r.Field)
		}
		if r.ByDirectory && len(r.Lookup) != 1 {
			return fmt.Errorf("directory reference %q needs exactly one lookup field", r.Field)
		}
	}
	return nil
}

// Get returns the definition of t.
func Get(t EntityType) (EntityDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[t]
	return def, ok
}

// All returns every registered definition in ImportOrder; types outside
// ImportOrder follow, sorted by name.
func All() []EntityDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]EntityDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		oi, oj := orderOf(result[i].Type), orderOf(result[j].Type)
		if oi != oj {
			return oi < oj
		}
		return result[i].Type < result[j].Type
	})
	return result
}

func orderOf(t EntityType) int {
	for i, o := range ImportOrder {
		if o == t {
			return i
		}
	}
	return len(ImportOrder)
}

// Lookup resolves an entity by type name, label or source directory,
// case-insensitively ("customers", "Clientes" and "ItemVenda" all work).
func Lookup(name string) (EntityDefinition, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	name = strings.TrimSpace(name)
	for _, def := range registry {
		if strings.EqualFold(string(def.Type), name) ||
			strings.EqualFold(def.Label, name) ||
			strings.EqualFold(def.Directory, name) {
			return def, nil
		}
	}
	return EntityDefinition{}, fmt.Errorf("unknown entity: %s", name)
}

// ReferenceOwner is a table column holding ids of another entity.
type ReferenceOwner struct {
	Table string
	Field string
}

// ReferencesTo lists every registered column that references t.
func ReferencesTo(t EntityType) []ReferenceOwner {
	var out []ReferenceOwner
	for _, def := range All() {
		for _, r := range def.References {
			if r.Target == t {
				out = append(out, ReferenceOwner{Table: def.Table, Field: r.Field})
			}
		}
	}
	return out
}

// Count returns the number of registered entities.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered entities.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[EntityType]EntityDefinition)
}
