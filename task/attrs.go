package task

// Attrs carries the flags and cost hint a task (or SDF node) is created
// with. The zero value is not valid on its own - use DefaultAttrs, which
// sets Cost to 1.0 matching the original's default task cost used by the
// SDF static partitioner and the scheduler's optional priority hint.
type Attrs struct {
	Blocking    bool
	LongRunning bool
	GPU         bool
	Stub        bool
	Yield       bool
	Cost        float64
}

// DefaultAttrs returns the attrs a task gets when none are supplied
// explicitly.
func DefaultAttrs() Attrs {
	return Attrs{Cost: 1.0}
}
