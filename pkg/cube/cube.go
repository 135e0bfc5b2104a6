// Package cube provides the Cube entity, a named N-dimensional numeric
// buffer holding one IFU dataset, typically shaped [frames, y, x].
package cube

import (
	"fmt"
	"strings"

	"ifucube/pkg/ifuerr"
)

// Cube is a named, row-major numeric array. Its shape is fixed at
// construction and its arithmetic methods always return new cubes.
type Cube struct {
	// name is the display identifier, e.g. "frame2" for the second HDU of frame.fits
	name string

	// data holds the values in row-major order, last axis fastest
	data []float64

	// shape holds the extent of every axis
	shape []int
}

// New creates a zero-filled cube with the given shape.
func New(name string, shape ...int) (*Cube, error) {
	n, err := volume(shape)
	if err != nil {
		return nil, err
	}
	return &Cube{
		name:  name,
		data:  make([]float64, n),
		shape: append([]int(nil), shape...),
	}, nil
}

// FromData creates a cube over data with the given shape. The data slice is
// copied. When no shape is given the cube is one-dimensional.
func FromData(name string, data []float64, shape ...int) (*Cube, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	n, err := volume(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d values do not fill shape %v", ifuerr.ErrShapeMismatch, len(data), shape)
	}
	return &Cube{
		name:  name,
		data:  append([]float64(nil), data...),
		shape: append([]int(nil), shape...),
	}, nil
}

// MustFromData is like FromData but panics on error. It is intended for
// tests and literals.
func MustFromData(name string, data []float64, shape ...int) *Cube {
	c, err := FromData(name, data, shape...)
	if err != nil {
		panic(err)
	}
	return c
}

func volume(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: cube needs at least one axis", ifuerr.ErrInvalidArgument)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive axis length in shape %v", ifuerr.ErrInvalidArgument, shape)
		}
		n *= d
	}
	return n, nil
}

// Name returns the display identifier of the cube.
func (c *Cube) Name() string { return c.name }

// Shape returns a copy of the axis lengths.
func (c *Cube) Shape() []int { return append([]int(nil), c.shape...) }

// NDim returns the number of axes.
func (c *Cube) NDim() int { return len(c.shape) }

// Len returns the total number of elements.
func (c *Cube) Len() int { return len(c.data) }

// Data returns the backing row-major buffer. Callers must not modify it.
func (c *Cube) Data() []float64 { return c.data }

// Dims3 returns the cube as (frames, y, x). Two-dimensional cubes are a
// single frame and one-dimensional cubes are a single spaxel.
func (c *Cube) Dims3() (frames, ny, nx int, err error) {
	switch len(c.shape) {
	case 3:
		return c.shape[0], c.shape[1], c.shape[2], nil
	case 2:
		return 1, c.shape[0], c.shape[1], nil
	case 1:
		return c.shape[0], 1, 1, nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: cannot view shape %v as [frames, y, x]", ifuerr.ErrShapeMismatch, c.shape)
	}
}

// At returns the element at the given index, one coordinate per axis.
func (c *Cube) At(idx ...int) (float64, error) {
	if len(idx) != len(c.shape) {
		return 0, fmt.Errorf("%w: %d indices for %d axes", ifuerr.ErrShapeMismatch, len(idx), len(c.shape))
	}
	off := 0
	for axis, i := range idx {
		if i < 0 || i >= c.shape[axis] {
			return 0, fmt.Errorf("%w: index %d outside axis %d of length %d", ifuerr.ErrOutOfRange, i, axis, c.shape[axis])
		}
		off = off*c.shape[axis] + i
	}
	return c.data[off], nil
}

// Frame returns a copy of spatial plane i of a cube viewed as [frames, y, x].
func (c *Cube) Frame(i int) ([]float64, error) {
	frames, ny, nx, err := c.Dims3()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= frames {
		return nil, fmt.Errorf("%w: frame %d outside %d frames", ifuerr.ErrOutOfRange, i, frames)
	}
	plane := ny * nx
	return append([]float64(nil), c.data[i*plane:(i+1)*plane]...), nil
}

// SameShape reports whether c and other have identical shapes.
func (c *Cube) SameShape(other *Cube) bool {
	if len(c.shape) != len(other.shape) {
		return false
	}
	for i := range c.shape {
		if c.shape[i] != other.shape[i] {
			return false
		}
	}
	return true
}

func (c *Cube) String() string {
	dims := make([]string, len(c.shape))
	for i, d := range c.shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s(%s)", c.name, strings.Join(dims, "x"))
}
