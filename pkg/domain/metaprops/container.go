// Package metaprops provides a clone-safe container for the free-form
// meta-property bags attached to axes, columns, and cubes. It generalizes
// the hook-keyed extension container pattern to arbitrary string keys,
// since N-Cube meta-property keys are not drawn from a fixed enum.
package metaprops

import (
	"encoding/json"
	"reflect"
	"slices"
)

// Container stores a flat map of named properties. Values are deep-copied on
// every read and write so callers can never observe or cause aliasing across
// axes, columns, or cubes that share a container instance transiently (for
// example while a reference axis is being resolved).
type Container struct {
	values map[string]any
}

// New builds an empty container.
func New() Container {
	return Container{values: make(map[string]any)}
}

// FromRaw builds a container from a JSON-compatible map, cloning every value.
func FromRaw(raw map[string]any) Container {
	c := New()
	for k, v := range raw {
		c.values[k] = cloneValue(v)
	}
	return c
}

// Set stores a deep copy of value under key.
func (c *Container) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = cloneValue(value)
}

// Delete removes key, if present.
func (c *Container) Delete(key string) {
	if c.values == nil {
		return
	}
	delete(c.values, key)
}

// Get returns a deep copy of the value stored under key.
func (c Container) Get(key string) (any, bool) {
	if c.values == nil {
		return nil, false
	}
	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Keys returns the sorted set of populated keys.
func (c Container) Keys() []string {
	if c.values == nil {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len reports the number of stored properties.
func (c Container) Len() int { return len(c.values) }

// Clone returns a deep copy of the container.
func (c Container) Clone() Container {
	if len(c.values) == 0 {
		return New()
	}
	out := New()
	for k, v := range c.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

// Merge overlays override on top of base, with override's keys winning on collision.
// This implements the reference-axis rule that local meta-properties override
// the referenced axis's meta-properties per key.
func Merge(base, override Container) Container {
	out := base.Clone()
	for _, k := range override.Keys() {
		v, _ := override.Get(k)
		out.Set(k, v)
	}
	return out
}

// Raw exposes a JSON-compatible copy of the container's contents.
func (c Container) Raw() map[string]any {
	if len(c.values) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = cloneValue(v)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (c Container) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Raw())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Container) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Container{}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = FromRaw(raw)
	return nil
}

// cloneValue deep copies JSON-compatible values (maps, slices, scalars) to
// prevent shared references between callers. Non-JSON-compatible values are
// returned as-is.
func cloneValue(value any) any {
	if value == nil {
		return nil
	}
	switch value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64, json.Number:
		return value
	}

	source := reflect.ValueOf(value)
	switch source.Kind() {
	case reflect.Map:
		if source.IsNil() || source.Type().Key().Kind() != reflect.String {
			return value
		}
		clone := reflect.MakeMapWithSize(source.Type(), source.Len())
		iter := source.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneIntoType(iter.Value(), source.Type().Elem()))
		}
		return clone.Interface()
	case reflect.Slice:
		if source.IsNil() {
			return value
		}
		clone := reflect.MakeSlice(source.Type(), source.Len(), source.Len())
		for i := 0; i < source.Len(); i++ {
			clone.Index(i).Set(cloneIntoType(source.Index(i), source.Type().Elem()))
		}
		return clone.Interface()
	default:
		return value
	}
}

func cloneIntoType(value reflect.Value, target reflect.Type) reflect.Value {
	if !value.IsValid() || (value.Kind() == reflect.Interface && value.IsNil()) {
		return reflect.Zero(target)
	}
	cloned := cloneValue(value.Interface())
	if cloned == nil {
		return reflect.Zero(target)
	}
	clonedValue := reflect.ValueOf(cloned)
	if !clonedValue.Type().AssignableTo(target) {
		if clonedValue.Type().ConvertibleTo(target) {
			clonedValue = clonedValue.Convert(target)
		} else {
			return value
		}
	}
	return clonedValue
}
