// Package uictl defines read-only controls that bridge live pipeline
// state into UI components without coupling them to the audio layer.
package uictl

import "golang.org/x/exp/constraints"

type Number interface {
	constraints.Integer | constraints.Float
}

// Dial is a control that can read some value.
type Dial[N Number] interface {
	Read() N
}

// Levels is a control that can read multiple sample levels.
type Levels[N Number] interface {
	Read() []N
}

// DialFunc adapts a function to the Dial interface.
type DialFunc[N Number] func() N

func (f DialFunc[N]) Read() N { return f() }

// LevelsFunc adapts a function to the Levels interface.
type LevelsFunc[N Number] func() []N

func (f LevelsFunc[N]) Read() []N { return f() }
