package spectrum

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifucube/pkg/calibration"
	"ifucube/pkg/cube"
	"ifucube/pkg/ifuerr"
)

// linearCube builds a cube whose spaxel (x, y) holds a*wavelength + b with a
// slope and offset depending on the position.
func linearCube(t *testing.T, frames, ny, nx int, cal calibration.Calibration) *cube.Cube {
	t.Helper()
	data := make([]float64, frames*ny*nx)
	for f := 0; f < frames; f++ {
		w := cal.FrameToWavelength(float64(f))
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				data[f*ny*nx+y*nx+x] = float64(x+1)*w + float64(10*y)
			}
		}
	}
	c, err := cube.FromData("linear", data, frames, ny, nx)
	require.NoError(t, err)
	return c
}

func TestExtractSingleSpaxelFullAxis(t *testing.T) {
	cal := calibration.Calibration{CRPix: 0, CRVal: 1.0, CDelt: 0.1}
	c := linearCube(t, 12, 3, 4, cal)

	spec, err := Extract(c, NewSpaxels(nil, Spaxel{X: 2, Y: 1}), cal, Options{})
	require.NoError(t, err)

	require.Equal(t, 12, spec.Len())
	for i := 0; i < 12; i++ {
		assert.Equal(t, float64(i), spec.Frame[i])
		assert.InDelta(t, 1.0+0.1*float64(i), spec.Wavelength[i], 1e-12)
		assert.InDelta(t, 3*spec.Wavelength[i]+10, spec.Flux[0][i], 1e-12)
	}

	rows, err := spec.Rows(0)
	require.NoError(t, err)
	r, cols := rows.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 12, cols)
	assert.Equal(t, 11.0, rows.At(1, 11))
	assert.InDelta(t, spec.Flux[0][5], rows.At(2, 5), 0)

	_, err = spec.Rows(1)
	assert.ErrorIs(t, err, ifuerr.ErrOutOfRange)
}

func TestExtractRegionAndMultipleSpaxels(t *testing.T) {
	cal := calibration.Calibration{CRPix: 2, CRVal: 2.0, CDelt: 0.01}
	c := linearCube(t, 20, 3, 4, cal)

	sp := NewSpaxels(nil, Spaxel{X: 0, Y: 0}, Spaxel{X: 3, Y: 2}, Spaxel{X: 1, Y: 1})
	spec, err := Extract(c, sp, cal, Options{Region: calibration.NewRegion(5, 15)})
	require.NoError(t, err)

	require.Equal(t, 10, spec.Len())
	require.Len(t, spec.Flux, 3)
	assert.Equal(t, 5.0, spec.Frame[0])
	assert.Equal(t, 14.0, spec.Frame[9])
	assert.InDelta(t, 2.03, spec.Wavelength[0], 1e-12)

	// Every spaxel keeps its own series.
	assert.InDelta(t, 1*spec.Wavelength[3], spec.Flux[0][3], 1e-12)
	assert.InDelta(t, 4*spec.Wavelength[3]+20, spec.Flux[1][3], 1e-12)
	assert.InDelta(t, 2*spec.Wavelength[3]+10, spec.Flux[2][3], 1e-12)
	assert.Equal(t, []Spaxel{{0, 0}, {3, 2}, {1, 1}}, spec.Spaxels)
}

func TestExtractRemoveContinuum(t *testing.T) {
	cal := calibration.Calibration{CRPix: 0, CRVal: 1.5, CDelt: 0.002}
	c := linearCube(t, 64, 2, 3, cal)

	sp := NewSpaxels(nil, Spaxel{X: 0, Y: 0}, Spaxel{X: 2, Y: 1})
	spec, err := Extract(c, sp, cal, Options{RemoveContinuum: true})
	require.NoError(t, err)

	assert.True(t, spec.ContinuumRemoved)
	for _, series := range spec.Flux {
		for _, v := range series {
			assert.InDelta(t, 0, v, 1e-9)
		}
	}
}

func TestExtractErrors(t *testing.T) {
	cal := calibration.Identity
	c := linearCube(t, 8, 2, 2, cal)

	_, err := Extract(c, NewSpaxels(nil, Spaxel{X: 2, Y: 0}), cal, Options{})
	assert.ErrorIs(t, err, ifuerr.ErrOutOfRange)

	_, err = Extract(c, NewSpaxels(nil, Spaxel{X: 0, Y: -1}), cal, Options{})
	assert.ErrorIs(t, err, ifuerr.ErrOutOfRange)

	_, err = Extract(c, NewSpaxels(nil, Spaxel{}), cal, Options{Region: calibration.NewRegion(2, 9)})
	assert.ErrorIs(t, err, ifuerr.ErrOutOfRange)

	_, err = Extract(c, NewSpaxels(nil), cal, Options{})
	assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument)

	flat := cube.MustFromData("flat", make([]float64, 4), 2, 2)
	_, err = Extract(flat, NewSpaxels(nil, Spaxel{}), cal, Options{})
	assert.ErrorIs(t, err, ifuerr.ErrShapeMismatch)
}

func TestNewSpaxelsCaps(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	sp := NewSpaxels(logger, Spaxel{1, 1}, Spaxel{2, 2}, Spaxel{3, 3}, Spaxel{4, 4})
	assert.Equal(t, MaxSpaxels, sp.Len())
	assert.Equal(t, Spaxel{3, 3}, sp.At(2))
	assert.True(t, strings.Contains(buf.String(), "level=WARN"))
}

func TestParseSpaxels(t *testing.T) {
	pairs, err := ParseSpaxels([][]int{{1, 2}, {3, 4}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Spaxel{{1, 2}, {3, 4}}, pairs.List())

	parallel, err := ParseSpaxels([][]int{{1, 2, 3}, {7, 8, 9}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Spaxel{{1, 7}, {2, 8}, {3, 9}}, parallel.List())

	capped, err := ParseSpaxels([][]int{{1, 2, 3, 4, 5}, {0, 0, 0, 0, 0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, capped.Len())

	_, err = ParseSpaxels(nil, nil)
	assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument)

	_, err = ParseSpaxels([][]int{{1, 2}, {3}}, nil)
	assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument)

	_, err = ParseSpaxels([][]int{{1, 2, 3}, {4, 5}}, nil)
	assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument)
}
