package store

import "encoding/json"

// Optional is a tri-state JSON field. It distinguishes a key that was
// absent from the payload, a key explicitly set to null, and a key set
// to a value. Partial-update semantics depend on this distinction
// surviving decoding, so patch payloads must be unmarshalled directly
// into structs built from Optional fields.
type Optional[T any] struct {
	present bool
	null    bool
	value   T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{present: true, value: v}
}

// Null returns an Optional that was explicitly set to null.
func Null[T any]() Optional[T] {
	return Optional[T]{present: true, null: true}
}

// Present reports whether the key appeared in the payload at all.
func (o Optional[T]) Present() bool { return o.present }

// IsNull reports whether the key was explicitly null.
func (o Optional[T]) IsNull() bool { return o.present && o.null }

// Value returns the decoded value. Only meaningful when Present and
// not IsNull.
func (o Optional[T]) Value() T { return o.value }

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.present = true
	if string(data) == "null" {
		o.null = true
		return nil
	}
	return json.Unmarshal(data, &o.value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
