package optimistic

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Clone deep-copies a value through a msgpack round trip. Snapshots taken
// for rollback must not alias the live value: a provisional mutation that
// shares slices with its own snapshot would corrupt the rollback target.
func Clone[T any](v T) (T, error) {
	var out T
	data, err := msgpack.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// MustClone clones and falls back to the original value when encoding
// fails. Used where a shallow snapshot is still better than none.
func MustClone[T any](v T) T {
	out, err := Clone(v)
	if err != nil {
		return v
	}
	return out
}
