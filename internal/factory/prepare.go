package factory

import (
	"math"
	"strings"

	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/storeerr"
)

// prepareFunc applies type-specific checks and defaults to an already
// normalized payload.
type prepareFunc func(t schema.ObjectType, p payload.Object) error

// normalize restricts p to the declared columns, coerces numeric kinds,
// NFC-normalizes strings and checks every key column is present.
// Fields that are not declared columns are dropped.
func normalize(t schema.ObjectType, p payload.Object) (payload.Object, error) {
	out := make(payload.Object, len(t.Columns))
	for _, c := range t.Columns {
		raw, present := p[c.Name]
		if _, isNull := raw.(payload.Null); !present || isNull {
			if c.Key {
				return nil, storeerr.InvalidPayload(t.Name, "missing key field %q", c.Name)
			}
			continue
		}
		v, err := coerce(t, c, raw)
		if err != nil {
			return nil, err
		}
		out[c.Name] = v
	}
	return out, nil
}

// coerce converts v to the kind declared by c.
func coerce(t schema.ObjectType, c schema.Column, v payload.Value) (payload.Value, error) {
	one := payload.Object{c.Name: v}
	switch c.Type {
	case schema.Float:
		if f, ok := one.Float(c.Name); ok {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, storeerr.InvalidPayload(t.Name, "field %q must be finite, got %g", c.Name, f)
			}
			return payload.Float(f), nil
		}
	case schema.Int:
		if n, ok := one.Int(c.Name); ok {
			return payload.Int(n), nil
		}
	case schema.String:
		if s, ok := one.String(c.Name); ok {
			return payload.String(payload.NormalizeString(s)), nil
		}
	case schema.Bool:
		if b, ok := one.Bool(c.Name); ok {
			return payload.Bool(b), nil
		}
	}
	return nil, storeerr.InvalidPayload(t.Name, "field %q must be %s, got %T", c.Name, c.Type, v)
}

func prepareLabel(t schema.ObjectType, p payload.Object) error {
	label, _ := p.String("label")
	if strings.TrimSpace(label) == "" {
		return storeerr.InvalidPayload(t.Name, "label must not be empty")
	}
	return nil
}

// preparePositive rejects non-positive values of col. Tolerances and
// wavenumbers are matched on a log scale upstream, so zero is meaningless.
func preparePositive(col string) prepareFunc {
	return func(t schema.ObjectType, p payload.Object) error {
		v, _ := p.Float(col)
		if !(v > 0) {
			return storeerr.InvalidPayload(t.Name, "%s must be positive, got %g", col, v)
		}
		return nil
	}
}

func prepareRedshift(t schema.ObjectType, p payload.Object) error {
	z, _ := p.Float("z")
	if !(z > -1) {
		return storeerr.InvalidPayload(t.Name, "z must be greater than -1, got %g", z)
	}
	for _, flag := range []string{"source", "response"} {
		if _, ok := p[flag]; !ok {
			p[flag] = payload.Bool(false)
		}
	}
	return nil
}

func prepareSolver(t schema.ObjectType, p payload.Object) error {
	if err := prepareLabel(t, p); err != nil {
		return err
	}
	if stepping, _ := p.Int("stepping"); stepping < 0 {
		return storeerr.InvalidPayload(t.Name, "stepping must not be negative, got %d", stepping)
	}
	return nil
}

func prepareCosmology(t schema.ObjectType, p payload.Object) error {
	name, _ := p.String("name")
	if strings.TrimSpace(name) == "" {
		return storeerr.InvalidPayload(t.Name, "name must not be empty")
	}
	if h, _ := p.Float("h"); !(h > 0) {
		return storeerr.InvalidPayload(t.Name, "h must be positive, got %g", h)
	}
	return nil
}

// prepareQCDCosmology additionally requires the equation-of-state table
// the cosmology was built from.
func prepareQCDCosmology(t schema.ObjectType, p payload.Object) error {
	if err := prepareCosmology(t, p); err != nil {
		return err
	}
	eos, _ := p.String("eos_table")
	if strings.TrimSpace(eos) == "" {
		return storeerr.InvalidPayload(t.Name, "eos_table must not be empty")
	}
	return nil
}

// prepareSerials requires every int key column (all references to other
// objects) to hold a valid serial.
func prepareSerials(t schema.ObjectType, p payload.Object) error {
	for _, c := range t.KeyColumns() {
		if c.Type != schema.Int {
			continue
		}
		if n, _ := p.Int(c.Name); n <= 0 {
			return storeerr.InvalidPayload(t.Name, "%s must be a store serial, got %d", c.Name, n)
		}
	}
	return nil
}
