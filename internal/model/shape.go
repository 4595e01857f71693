package model

import (
	"errors"
	"strconv"
	"strings"
)

var ErrMalformedShape = errors.New("malformed output shape")

// Dim is one axis of a layer output. An unknown dim (typically the batch
// axis) has no size.
type Dim struct {
	size  int
	known bool
}

func Known(n int) Dim { return Dim{size: n, known: true} }

func Unknown() Dim { return Dim{} }

func (d Dim) Size() (int, bool) { return d.size, d.known }

func (d Dim) String() string {
	if !d.known {
		return "None"
	}
	return strconv.Itoa(d.size)
}

type Shape []Dim

// ShapeOf builds a shape from optional sizes; nil means unknown.
func ShapeOf(sizes ...*int) Shape {
	s := make(Shape, 0, len(sizes))
	for _, p := range sizes {
		if p == nil {
			s = append(s, Unknown())
			continue
		}
		s = append(s, Known(*p))
	}
	return s
}

// Dims builds a shape with an unknown batch axis followed by the given sizes.
func Dims(sizes ...int) Shape {
	s := make(Shape, 0, len(sizes)+1)
	s = append(s, Unknown())
	for _, n := range sizes {
		s = append(s, Known(n))
	}
	return s
}

// PerSample multiplies every known dim after the batch axis. Unknown dims
// contribute nothing.
func (s Shape) PerSample() (int64, error) {
	if len(s) == 0 {
		return 0, ErrMalformedShape
	}
	var n int64 = 1
	for _, d := range s[1:] {
		size, ok := d.Size()
		if !ok {
			continue
		}
		if size < 0 {
			return 0, ErrMalformedShape
		}
		n *= int64(size)
	}
	return n, nil
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// OutputShape is either a SingleOutput or a MultiOutput.
type OutputShape interface {
	isOutputShape()
}

type SingleOutput struct {
	Shape Shape
}

// MultiOutput is reported by layers with several outputs, input layers
// included. Only the first alternative is sized.
type MultiOutput struct {
	Shapes []Shape
}

func (SingleOutput) isOutputShape() {}
func (MultiOutput) isOutputShape()  {}

// Primary resolves the shape used for sizing a layer.
func Primary(o OutputShape) (Shape, error) {
	switch v := o.(type) {
	case SingleOutput:
		return v.Shape, nil
	case MultiOutput:
		if len(v.Shapes) == 0 {
			return nil, ErrMalformedShape
		}
		return v.Shapes[0], nil
	default:
		return nil, ErrMalformedShape
	}
}
