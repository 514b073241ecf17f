package protocol

// Result is either a single value or a sequence, chosen from the requested
// dimension rather than from how many values happened to decode.
type Result struct {
	values []Value
	seq    bool
}

func Scalar(v Value) Result {
	return Result{values: []Value{v}}
}

func Sequence(vs []Value) Result {
	out := make([]Value, len(vs))
	copy(out, vs)
	return Result{values: out, seq: true}
}

// ResultFor wraps decoded values for a request of the given dimension.
func ResultFor(vs []Value, dimension int) Result {
	if dimension <= 1 && len(vs) == 1 {
		return Scalar(vs[0])
	}
	return Sequence(vs)
}

func (r Result) IsSequence() bool {
	return r.seq
}

// Scalar returns the single value of a scalar result.
func (r Result) Scalar() (Value, bool) {
	if r.seq || len(r.values) != 1 {
		return Value{}, false
	}
	return r.values[0], true
}

// Values returns every value, including the lone value of a scalar.
func (r Result) Values() []Value {
	out := make([]Value, len(r.values))
	copy(out, r.values)
	return out
}

func (r Result) Len() int {
	return len(r.values)
}
