package sensor

import "math/rand"

// Simulated is a random walk: every Read moves the previous value by a
// step from -1.0 to +1.0 on a 0.05 grid.
type Simulated struct {
	value float64
	rnd   func() int
}

func NewSimulated(initial float64) *Simulated {
	return &Simulated{value: initial, rnd: rand.Int}
}

func (s *Simulated) Open() error {
	return nil
}

func (s *Simulated) Read() (Reading, error) {
	s.value += Perturbation(s.rnd())
	return Reading{Temperature: s.value}, nil
}

func (s *Simulated) Close() error {
	return nil
}

// Perturbation maps a non-negative random integer onto one of the 41
// steps in [-1.0, +1.0].
func Perturbation(r int) float64 {
	if r < 0 {
		r = -r
	}
	return float64(r%41)/20.0 - 1.0
}
