// Package phase defines the ordered cleaning phases a document moves through.
package phase

// Phase identifies one stage of the cleaning sequence.
type Phase string

const (
	Reconnaissance Phase = "reconnaissance"
	Metadata       Phase = "metadata"
	Semantic       Phase = "semantic"
	Structural     Phase = "structural"
	Reference      Phase = "reference"
	Finishing      Phase = "finishing"
	Optimization   Phase = "optimization"
	Assembly       Phase = "assembly"
	FinalReview    Phase = "final_review"
)

// sequence is the fixed execution order. Reconnaissance always runs first and
// produces the structure hints every later phase reads.
var sequence = []Phase{
	Reconnaissance,
	Metadata,
	Semantic,
	Structural,
	Reference,
	Finishing,
	Optimization,
	Assembly,
	FinalReview,
}

// Sequence returns the phases in execution order.
func Sequence() []Phase {
	out := make([]Phase, len(sequence))
	copy(out, sequence)
	return out
}

// Index returns the position of p in the sequence, or -1 if p is unknown.
func (p Phase) Index() int {
	for i, q := range sequence {
		if p == q {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Next returns the phase after p. ok is false when p is the last phase or unknown.
func Next(p Phase) (next Phase, ok bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(sequence) {
		return "", false
	}
	return sequence[i+1], true
}

// String returns the phase identifier.
func (p Phase) String() string {
	return string(p)
}
