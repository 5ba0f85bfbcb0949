// Package wheel models the roulette wheel: the 37 pockets, their colours and
// the uniform draw that produces one outcome per settled round.
package wheel

import (
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"
)

// Color is the colour of a wheel pocket.
type Color int

const (
	Green Color = iota
	Red
	Black
)

// MaxNumber is the highest pocket on a single-zero wheel.
const MaxNumber = 36

var redNumbers = [MaxNumber + 1]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

func (c Color) String() string {
	switch c {
	case Green:
		return "Green"
	case Red:
		return "Red"
	case Black:
		return "Black"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

// ColorOf returns the colour of pocket n. Zero is green, the fixed red set is
// red and every other pocket is black.
func ColorOf(n int) Color {
	switch {
	case n == 0:
		return Green
	case n > 0 && n <= MaxNumber && redNumbers[n]:
		return Red
	default:
		return Black
	}
}

// Outcome is the result of one spin.
type Outcome struct {
	Number int
	Color  Color
}

func (o Outcome) String() string {
	return fmt.Sprintf("%d %s", o.Number, o.Color)
}

// Generator draws outcomes. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator seeded deterministically from seed. A zero
// seed falls back to the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	u := uint64(seed)
	return &Generator{rng: rand.New(rand.NewPCG(splitmix(u), splitmix(u+0x9e3779b97f4a7c15)))}
}

// NewGeneratorFromSource wraps an existing source, mostly for tests.
func NewGeneratorFromSource(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// Draw picks a pocket uniformly from [0, MaxNumber].
func (g *Generator) Draw() Outcome {
	g.mu.Lock()
	n := g.rng.IntN(MaxNumber + 1)
	g.mu.Unlock()
	return Outcome{Number: n, Color: ColorOf(n)}
}

func splitmix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
