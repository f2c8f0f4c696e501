package main

import "fmt"

// Position is the location of an entity
type Position struct {
	X, Y float64
}

func (p Position) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}

// Velocity is the distance moved per tick
type Velocity struct {
	X, Y float64
}

func (v Velocity) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", v.X, v.Y)
}

// Mass is usually inherited from a prefab
type Mass struct {
	Value float64
}

// Health is stored sparse
type Health struct {
	Points int
}

// Gravity is a singleton
type Gravity struct {
	Value float64
}

// Amount is the payload of pair relationships
type Amount struct {
	Value int
}

// Planet is a tag
type Planet struct{}
