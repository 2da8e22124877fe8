// Package dice parses "NdS" dice specs and rolls them.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

const (
	// MaxCount is the largest number of dice a single spec may roll.
	MaxCount = 100

	// MaxSides is the largest die a spec may name.
	MaxSides = 1000
)

// ErrMissingDice indicates a roll request had no dice specified.
var ErrMissingDice = errors.New("at least one die must be provided")

// ErrInvalidDiceSpec indicates a die specification is malformed or out of range.
var ErrInvalidDiceSpec = errors.New("dice must look like NdS with positive count and sides")

// Spec describes a die to roll and how many times to roll it.
type Spec struct {
	Count int
	Sides int
}

// String renders the spec in NdS notation.
func (s Spec) String() string {
	return fmt.Sprintf("%dd%d", s.Count, s.Sides)
}

// Roll is the outcome of one Spec.
type Roll struct {
	Spec    Spec
	Results []int
}

// Result is the outcome of a whole request, one Roll per Spec in request order.
type Result struct {
	Rolls []Roll
}

// Values flattens every individual die result in request order.
func (r Result) Values() []int {
	var values []int
	for _, roll := range r.Rolls {
		values = append(values, roll.Results...)
	}
	return values
}

// ParseSpec parses "NdS" (case-insensitive "d").
func ParseSpec(raw string) (Spec, error) {
	countStr, sidesStr, ok := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), "d")
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDiceSpec, raw)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDiceSpec, raw)
	}
	sides, err := strconv.Atoi(sidesStr)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDiceSpec, raw)
	}

	spec := Spec{Count: count, Sides: sides}
	if err := spec.validate(); err != nil {
		return Spec{}, fmt.Errorf("%w: %q", err, raw)
	}

	return spec, nil
}

// ParseSpecs parses every raw spec, failing on the first malformed one.
func ParseSpecs(raw []string) ([]Spec, error) {
	if len(raw) == 0 {
		return nil, ErrMissingDice
	}

	specs := make([]Spec, 0, len(raw))
	for _, r := range raw {
		spec, err := ParseSpec(r)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (s Spec) validate() error {
	if s.Count <= 0 || s.Sides <= 0 || s.Count > MaxCount || s.Sides > MaxSides {
		return ErrInvalidDiceSpec
	}
	return nil
}

// RollWithRng rolls dice using the provided random source.
// Specs are processed in slice order and each die is uniform over 1..Sides.
func RollWithRng(rng *rand.Rand, specs []Spec) (Result, error) {
	if len(specs) == 0 {
		return Result{}, ErrMissingDice
	}

	rolls := make([]Roll, 0, len(specs))
	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return Result{}, err
		}

		results := make([]int, spec.Count)
		for i := range spec.Count {
			results[i] = rollDie(rng, spec.Sides)
		}

		rolls = append(rolls, Roll{Spec: spec, Results: results})
	}

	return Result{Rolls: rolls}, nil
}

// rollDie rolls a single die with the provided number of sides.
func rollDie(rng *rand.Rand, sides int) int {
	return rng.Intn(sides) + 1
}
