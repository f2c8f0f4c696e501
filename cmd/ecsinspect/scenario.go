package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/storage"
	"gopkg.in/yaml.v3"
)

// Scenario describes a world to build
type Scenario struct {
	// Inheritable and Sparse name components that get the trait
	Inheritable []string         `yaml:"inheritable"`
	Sparse      []string         `yaml:"sparse"`
	Gravity     *Gravity         `yaml:"gravity"`
	Entities    []EntityScenario `yaml:"entities"`
}

// EntityScenario describes one entity
type EntityScenario struct {
	Name     string         `yaml:"name"`
	Prefab   bool           `yaml:"prefab"`
	IsA      []string       `yaml:"isa"`
	ChildOf  string         `yaml:"childof"`
	Tags     []string       `yaml:"tags"`
	Pairs    []PairScenario `yaml:"pairs"`
	Position *Position      `yaml:"position"`
	Velocity *Velocity      `yaml:"velocity"`
	Mass     *Mass          `yaml:"mass"`
	Health   *Health        `yaml:"health"`
}

// PairScenario is a relationship. Pairs with an amount must use the
// Amount relationship.
type PairScenario struct {
	Rel    string `yaml:"rel"`
	Target string `yaml:"target"`
	Amount *int   `yaml:"amount"`
}

// ReadScenario decodes a scenario from YAML
func ReadScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &s, nil
}

// LoadScenario reads a scenario file
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadScenario(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// componentTypes are the component types scenarios can refer to by name
var componentTypes = map[string]reflect.Type{
	"Position": reflect.TypeOf((*Position)(nil)).Elem(),
	"Velocity": reflect.TypeOf((*Velocity)(nil)).Elem(),
	"Mass":     reflect.TypeOf((*Mass)(nil)).Elem(),
	"Health":   reflect.TypeOf((*Health)(nil)).Elem(),
	"Gravity":  reflect.TypeOf((*Gravity)(nil)).Elem(),
	"Amount":   reflect.TypeOf((*Amount)(nil)).Elem(),
	"Planet":   reflect.TypeOf((*Planet)(nil)).Elem(),
}

// Apply creates the scenario's entities in w. Entities are created before
// any is populated so they can refer to each other in any order.
func (s *Scenario) Apply(w *storage.World) error {
	names := make([]string, 0, len(componentTypes))
	for name := range componentTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w.ComponentIDOf(componentTypes[name])
	}
	for _, name := range s.Inheritable {
		id, err := componentID(w, name)
		if err != nil {
			return err
		}
		if err := w.SetInheritable(id); err != nil {
			return err
		}
	}
	for _, name := range s.Sparse {
		id, err := componentID(w, name)
		if err != nil {
			return err
		}
		if err := w.SetSparse(id); err != nil {
			return err
		}
	}

	for _, es := range s.Entities {
		if es.Name == "" {
			return fmt.Errorf("scenario entity without name: %w", ecs.ErrInvalidParameter)
		}
		if _, ok := w.Lookup(es.Name); ok {
			return fmt.Errorf("entity %q: duplicate name: %w", es.Name, ecs.ErrInvalidParameter)
		}
		w.NewNamed(es.Name)
	}

	for _, es := range s.Entities {
		if err := es.apply(w); err != nil {
			return fmt.Errorf("entity %q: %w", es.Name, err)
		}
	}
	if s.Gravity != nil {
		return storage.SetSingleton(w, *s.Gravity)
	}
	return nil
}

func (es *EntityScenario) apply(w *storage.World) error {
	e, _ := w.Lookup(es.Name)
	if es.Prefab {
		if err := w.Add(e, ecs.Prefab.ID()); err != nil {
			return err
		}
	}
	for _, base := range es.IsA {
		if err := w.AddPair(e, ecs.IsA, entityByName(w, base)); err != nil {
			return err
		}
	}
	if es.ChildOf != "" {
		if err := w.AddPair(e, ecs.ChildOf, entityByName(w, es.ChildOf)); err != nil {
			return err
		}
	}
	for _, tag := range es.Tags {
		if err := w.Add(e, entityByName(w, tag).ID()); err != nil {
			return err
		}
	}
	for _, p := range es.Pairs {
		rel, tgt := entityByName(w, p.Rel), entityByName(w, p.Target)
		if p.Amount != nil {
			if rel != storage.ComponentID[Amount](w) {
				return fmt.Errorf("pair (%s, %s): amount requires rel Amount: %w", p.Rel, p.Target, ecs.ErrInvalidParameter)
			}
			if err := storage.SetID(w, e, ecs.Pair(rel, tgt), Amount{Value: *p.Amount}); err != nil {
				return err
			}
			continue
		}
		if err := w.AddPair(e, rel, tgt); err != nil {
			return err
		}
	}

	var err error
	set := func(apply func() error) {
		if err == nil {
			err = apply()
		}
	}
	if es.Position != nil {
		set(func() error { return storage.Set(w, e, *es.Position) })
	}
	if es.Velocity != nil {
		set(func() error { return storage.Set(w, e, *es.Velocity) })
	}
	if es.Mass != nil {
		set(func() error { return storage.Set(w, e, *es.Mass) })
	}
	if es.Health != nil {
		set(func() error { return storage.Set(w, e, *es.Health) })
	}
	return err
}

func componentID(w *storage.World, name string) (ecs.Entity, error) {
	t, ok := componentTypes[name]
	if !ok {
		return 0, fmt.Errorf("unknown component %q: %w", name, ecs.ErrInvalidParameter)
	}
	return w.ComponentIDOf(t), nil
}

// entityByName resolves a name, creating a named entity when it does not
// exist yet
func entityByName(w *storage.World, name string) ecs.Entity {
	if e, ok := ecs.BuiltinByName(name); ok {
		return e
	}
	if e, ok := w.Lookup(name); ok {
		return e
	}
	return w.NewNamed(name)
}
