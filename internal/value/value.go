// Package value describes the tagged-value encoding shared by the
// compiler and the runtime. Nothing here executes at runtime: these are
// the constants and bounds the code generator consults when it needs to
// emit an immediate, and the single source of truth that runtime/runtime.c
// is hand-kept in sync with.
package value

// Immediate encodings for the three singleton values. A tagged word's
// low bit discriminates number (0) from non-number (1); among
// non-numbers the low two bits are never "00".
const (
	Nil   int64 = 0x1
	False int64 = 0x3
	True  int64 = 0x7
)

// TuplePointerTag is added to a tuple's (8-byte aligned) address to
// produce its tagged representation.
const TuplePointerTag int64 = 0x1

// MaxInt and MinInt bound the 63-bit signed payload a Number literal may
// hold: one bit is spent on the number/non-number tag, so the usable
// range is [-2^62, 2^62).
const (
	MaxInt int64 = 1<<62 - 1
	MinInt int64 = -(1 << 62)
)

// InRange reports whether n fits in the tagged representation's 63-bit
// payload.
func InRange(n int64) bool {
	return n >= MinInt && n <= MaxInt
}

// Encode converts a source-level integer literal to its tagged form.
func Encode(n int64) int64 {
	return n << 1
}

// Error codes exchanged between compiled code and the runtime's
// snek_error, per the ABI in spec section 6.
const (
	ErrInvalidArgument int64 = 1
	ErrOverflow        int64 = 2
	ErrIndexOutOfBound int64 = 3
	ErrIndexNil        int64 = 4
)
