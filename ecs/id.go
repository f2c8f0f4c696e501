package ecs

import (
	"fmt"
	"strconv"
)

// Entity is an entity identifier. Components, tags and relationships are
// entities too. Only the low 32 bits are used.
type Entity uint64

// Id is a term or component id: either a plain entity or a pair
type Id uint64

// PairFlag marks an Id as a (first, second) pair
const PairFlag Id = 1 << 63

const (
	entityMask = 0xFFFFFFFF
	firstMask  = 0x7FFFFFFF
)

// Builtin entities
const (
	// Wildcard matches any id in its position and yields one result per match
	Wildcard Entity = iota + 1
	// Any matches any id in its position and yields at most one result
	Any
	// This is the default query source variable ($this)
	This
	// IsA is the inheritance relationship
	IsA
	// ChildOf is the hierarchy relationship
	ChildOf
	// Prefab marks entities that are excluded from queries unless requested
	Prefab
)

// FirstUserEntity is the first id handed out by the storage layer
const FirstUserEntity Entity = 256

var builtinNames = map[Entity]string{
	Wildcard: "*",
	Any:      "_",
	This:     "$this",
	IsA:      "IsA",
	ChildOf:  "ChildOf",
	Prefab:   "Prefab",
}

// BuiltinName returns the reserved name of a builtin entity
func BuiltinName(e Entity) (string, bool) {
	name, ok := builtinNames[e]
	return name, ok
}

// BuiltinByName resolves a reserved name to its builtin entity
func BuiltinByName(name string) (Entity, bool) {
	for e, n := range builtinNames {
		if n == name {
			return e, true
		}
	}
	return 0, false
}

// Pair packs a relationship and target into an Id
func Pair(first, second Entity) Id {
	return PairFlag | Id(uint64(first)&firstMask)<<32 | Id(uint64(second)&entityMask)
}

// IsPair reports whether the id is a pair
func (id Id) IsPair() bool {
	return id&PairFlag != 0
}

// First returns the relationship of a pair, or the entity for a plain id
func (id Id) First() Entity {
	if !id.IsPair() {
		return Entity(id)
	}
	return Entity((uint64(id) >> 32) & firstMask)
}

// Second returns the target of a pair, or 0 for a plain id
func (id Id) Second() Entity {
	if !id.IsPair() {
		return 0
	}
	return Entity(uint64(id) & entityMask)
}

// Entity returns the id as an entity. Pairs have no entity form.
func (id Id) Entity() Entity {
	if id.IsPair() {
		return 0
	}
	return Entity(id)
}

// IsWildcard reports whether any element of the id is Wildcard or Any
func (id Id) IsWildcard() bool {
	if !id.IsPair() {
		return isWild(Entity(id))
	}
	return isWild(id.First()) || isWild(id.Second())
}

// Matches reports whether a concrete id matches this (possibly wildcard) id
func (id Id) Matches(concrete Id) bool {
	if id == concrete {
		return true
	}
	if !id.IsPair() {
		return isWild(Entity(id)) && !concrete.IsPair()
	}
	if !concrete.IsPair() {
		return false
	}
	return matchElem(id.First(), concrete.First()) && matchElem(id.Second(), concrete.Second())
}

func isWild(e Entity) bool {
	return e == Wildcard || e == Any
}

func matchElem(pattern, e Entity) bool {
	return pattern == e || isWild(pattern)
}

// ID returns the entity as an Id
func (e Entity) ID() Id {
	return Id(e)
}

func (e Entity) String() string {
	if name, ok := builtinNames[e]; ok {
		return name
	}
	return "#" + strconv.FormatUint(uint64(e), 10)
}

func (id Id) String() string {
	if id.IsPair() {
		return fmt.Sprintf("(%s, %s)", id.First(), id.Second())
	}
	return Entity(id).String()
}
