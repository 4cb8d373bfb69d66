package types

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cast"
)

// Data carries params, run conf and operator output.
type Data map[string]any

func (d Data) Get(key string) (any, bool) {
	v, exists := d[key]
	return v, exists
}

func (d Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d Data) GetBool(key string) (bool, bool) {
	v, exists := d.Get(key)
	return cast.ToBool(v), exists
}

func (d Data) GetDuration(key string) (time.Duration, bool) {
	v, exists := d.Get(key)
	return cast.ToDuration(v), exists
}

func (d Data) GetStringSlice(key string) ([]string, bool) {
	v, exists := d.Get(key)
	return cast.ToStringSlice(v), exists
}

func (d Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFoundf("key %s", key)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Annotatef(err, "marshal %s", key)
	}
	return errors.Trace(json.Unmarshal(b, s))
}

func (d Data) Set(key string, value any) {
	d[key] = value
}

// Clone returns a shallow copy; a nil Data clones to an empty one.
func (d Data) Clone() Data {
	c := make(Data, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Merge returns a copy of d overlaid with other.
func (d Data) Merge(other Data) Data {
	c := d.Clone()
	for k, v := range other {
		c[k] = v
	}
	return c
}
