// Package dice provides deterministic dice rolling primitives.
//
// Rolls are deterministic with respect to the seed supplied on the
// request, which keeps gamebook turns replayable: the same seed and the
// same specs always produce the same result.
package dice

import gberrors "github.com/louisbranch/gamebook/internal/errors"

var (
	// ErrMissingDice indicates a request carried no dice specs.
	ErrMissingDice = gberrors.New(gberrors.CodeDiceMissing, "at least one dice spec is required")
	// ErrInvalidDiceSpec indicates a spec with non-positive sides or count.
	ErrInvalidDiceSpec = gberrors.New(gberrors.CodeDiceInvalidSpec, "dice spec requires positive sides and count")
)

// Spec describes a homogeneous group of dice to roll.
type Spec struct {
	// Sides is the number of faces per die.
	Sides int
	// Count is how many dice of this size to roll.
	Count int
}

// Request describes a dice roll.
type Request struct {
	// Dice lists the specs to roll, in order.
	Dice []Spec
	// Seed initializes the PRNG for deterministic results.
	Seed int64
}

// Roll is the outcome of a single spec.
type Roll struct {
	// Sides echoes the spec's die size.
	Sides int
	// Results holds each individual die value, in roll order.
	Results []int
	// Total is the sum of Results.
	Total int
}

// Result is the outcome of a full request.
type Result struct {
	// Rolls appear in the same order as the request specs.
	Rolls []Roll
	// Total is the sum of every die rolled across the request.
	Total int
}

// Kind distinguishes the gamebook roll flavors.
type Kind string

const (
	// KindChance resolves luck-based branches.
	KindChance Kind = "chance"
	// KindCombat resolves combat branches.
	KindCombat Kind = "combat"
)

// Bucket labels used as keys into a choice's dice result mapping.
const (
	BucketSuccess = "success"
	BucketFailure = "failure"
)

// chanceThreshold and combatThreshold are 2d6 success cutoffs; combat
// demands one more pip than a plain chance roll.
const (
	chanceThreshold = 7
	combatThreshold = 8
)

// Bucket maps a roll total onto the outcome label used by dice-gated
// choices. Unknown kinds fall back to the chance threshold.
func Bucket(total int, kind Kind) string {
	threshold := chanceThreshold
	if kind == KindCombat {
		threshold = combatThreshold
	}
	if total >= threshold {
		return BucketSuccess
	}
	return BucketFailure
}
