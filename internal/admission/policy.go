package admission

// AIMD is additive-increase / multiplicative-decrease: any overflow in the
// period cuts the percentage by DecreaseFactor, a quiet period raises it by
// Increase.
type AIMD struct {
	Increase       int
	DecreaseFactor float64
}

// DefaultAIMD returns the default policy (+5 / ×0.5).
func DefaultAIMD() AIMD {
	return AIMD{Increase: 5, DecreaseFactor: 0.5}
}

// Next implements Policy.
func (a AIMD) Next(current int, s Signal) int {
	if s.Overflowed > 0 {
		return int(float64(current) * a.DecreaseFactor)
	}
	return current + a.Increase
}

// Fixed never changes the percentage.
type Fixed struct{}

// Next implements Policy.
func (Fixed) Next(current int, _ Signal) int {
	return current
}
