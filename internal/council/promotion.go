package council

import "github.com/synapsefold/cognition-core/pkg/models"

// ReflectionBorrow tracks a mid-turn borrow of Prime for reflection while
// Lite remains the responder (spec §4.3 "Prime-during-reflection
// promotion").
type ReflectionBorrow struct {
	PrimeBorrowed    bool
	ReflectionDone   bool
	GenerationStarted bool
}

// ShouldPromotePrime reports whether Prime should be swapped in as final
// responder instead of Lite: Prime was borrowed solely for reflection, and
// that reflection finished before generation began. Prevents "Prime
// thinks, Lite speaks."
func (b ReflectionBorrow) ShouldPromotePrime() bool {
	return b.PrimeBorrowed && b.ReflectionDone && !b.GenerationStarted
}

// Promote swaps the selected model to Prime and releases Lite back to
// idle, via the supplied release callback (typically modelpool.Pool.Release).
func Promote(selectedModel *models.Role, liteName string, release func(name string)) {
	*selectedModel = models.RolePrime
	if release != nil {
		release(liteName)
	}
}
