package cube

import (
	"fmt"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"

	"ifucube/pkg/ifuerr"
)

// Add returns c + other elementwise.
func (c *Cube) Add(other *Cube) (*Cube, error) {
	return c.binary(other, "+", func(dst, a, b []float64) { floats.AddTo(dst, a, b) })
}

// Subtract returns c - other elementwise.
func (c *Cube) Subtract(other *Cube) (*Cube, error) {
	return c.binary(other, "-", func(dst, a, b []float64) { floats.SubTo(dst, a, b) })
}

// Multiply returns c * other elementwise.
func (c *Cube) Multiply(other *Cube) (*Cube, error) {
	return c.binary(other, "*", vecmath.MulBlock)
}

// Divide returns c / other elementwise. Zero elements in other follow
// IEEE-754 and yield ±Inf or NaN.
func (c *Cube) Divide(other *Cube) (*Cube, error) {
	return c.binary(other, "/", func(dst, a, b []float64) { floats.DivTo(dst, a, b) })
}

// AddScalar returns c + v.
func (c *Cube) AddScalar(v float64) *Cube {
	out := c.derive(fmt.Sprintf("%s + %g", c.name, v))
	copy(out.data, c.data)
	floats.AddConst(v, out.data)
	return out
}

// SubtractScalar returns c - v.
func (c *Cube) SubtractScalar(v float64) *Cube {
	out := c.derive(fmt.Sprintf("%s - %g", c.name, v))
	copy(out.data, c.data)
	floats.AddConst(-v, out.data)
	return out
}

// MultiplyScalar returns c * v.
func (c *Cube) MultiplyScalar(v float64) *Cube {
	out := c.derive(fmt.Sprintf("%s * %g", c.name, v))
	floats.ScaleTo(out.data, v, c.data)
	return out
}

// DivideScalar returns c / v. A zero divisor is an error.
func (c *Cube) DivideScalar(v float64) (*Cube, error) {
	if v == 0 {
		return nil, fmt.Errorf("%w: cube %s divided by zero scalar", ifuerr.ErrDivisionByZero, c.name)
	}
	out := c.derive(fmt.Sprintf("%s / %g", c.name, v))
	floats.ScaleTo(out.data, 1/v, c.data)
	return out, nil
}

func (c *Cube) binary(other *Cube, op string, fn func(dst, a, b []float64)) (*Cube, error) {
	if other == nil {
		return nil, fmt.Errorf("%w: nil operand for %s", ifuerr.ErrInvalidArgument, op)
	}
	if !c.SameShape(other) {
		return nil, fmt.Errorf("%w: %v %s %v", ifuerr.ErrShapeMismatch, c.shape, op, other.shape)
	}
	out := c.derive(fmt.Sprintf("%s %s %s", c.name, op, other.name))
	fn(out.data, c.data, other.data)
	return out, nil
}

// derive allocates an empty cube with the shape of c.
func (c *Cube) derive(name string) *Cube {
	return &Cube{
		name:  name,
		data:  make([]float64, len(c.data)),
		shape: append([]int(nil), c.shape...),
	}
}
