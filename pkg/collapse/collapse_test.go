package collapse

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"ifucube/pkg/calibration"
	"ifucube/pkg/cube"
	"ifucube/pkg/ifuerr"
)

// frameIndexCube fills every spaxel of frame f with the value f.
func frameIndexCube(t *testing.T, frames, ny, nx int) *cube.Cube {
	t.Helper()
	data := make([]float64, frames*ny*nx)
	for f := 0; f < frames; f++ {
		for i := 0; i < ny*nx; i++ {
			data[f*ny*nx+i] = float64(f)
		}
	}
	c, err := cube.FromData("ramp", data, frames, ny, nx)
	require.NoError(t, err)
	return c
}

func randomCube(t *testing.T, seed int64, frames, ny, nx int) *cube.Cube {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, frames*ny*nx)
	for i := range data {
		data[i] = 100 + rng.NormFloat64()
	}
	c, err := cube.FromData("noise", data, frames, ny, nx)
	require.NoError(t, err)
	return c
}

func TestCollapseSumFrameIndex(t *testing.T) {
	c := frameIndexCube(t, 10, 4, 4)

	img, err := Collapse(c, Options{Method: Sum})
	require.NoError(t, err)

	r, cols := img.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 4, cols)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, 45.0, img.At(y, x))
		}
	}
}

func TestCollapseSumMatchesReference(t *testing.T) {
	c := randomCube(t, 7, 30, 5, 6)
	region := calibration.NewRegion(4, 21)

	img, err := Collapse(c, Options{Method: Sum, Region: region, Workers: 2})
	require.NoError(t, err)

	data := c.Data()
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			ref := 0.0
			for f := region.Begin; f < region.End; f++ {
				ref += data[f*30+y*6+x]
			}
			assert.InDelta(t, ref, img.At(y, x), 1e-9)
		}
	}
}

func TestCollapseMeanAndMedian(t *testing.T) {
	// One spaxel, five frames.
	c := cube.MustFromData("spaxel", []float64{1, 2, 3, 4, 100}, 5, 1, 1)

	mean, err := Collapse(c, Options{Method: Mean})
	require.NoError(t, err)
	assert.InDelta(t, 22, mean.At(0, 0), 1e-12)

	median, err := Collapse(c, Options{Method: Median})
	require.NoError(t, err)
	assert.Equal(t, 3.0, median.At(0, 0))

	even, err := Collapse(c, Options{Method: Median, Region: calibration.NewRegion(0, 4)})
	require.NoError(t, err)
	assert.Equal(t, 2.5, even.At(0, 0))
}

func TestCollapseLargeSigmaIsIdentity(t *testing.T) {
	c := randomCube(t, 3, 25, 4, 3)
	for _, m := range []Method{Sum, Mean, Median} {
		plain, err := Collapse(c, Options{Method: m})
		require.NoError(t, err)
		clipped, err := Collapse(c, Options{Method: m, Clip: &SigmaClip{Sigma: 1e6}})
		require.NoError(t, err)
		assert.True(t, mat.Equal(plain, clipped), "method %s", m)
	}
}

func TestCollapseClipRejectsOutlier(t *testing.T) {
	values := make([]float64, 21)
	for i := range values {
		values[i] = 10 + 0.1*float64(i%3)
	}
	values[7] = 1e4
	c := cube.MustFromData("spike", values, len(values), 1, 1)

	plain, err := Collapse(c, Options{Method: Mean})
	require.NoError(t, err)
	clipped, err := Collapse(c, Options{Method: Mean, Clip: &SigmaClip{Sigma: 3}})
	require.NoError(t, err)

	assert.Greater(t, plain.At(0, 0), 400.0)
	assert.InDelta(t, 10.1, clipped.At(0, 0), 0.05)

	sum, err := Collapse(c, Options{Method: Sum, Clip: &SigmaClip{Sigma: 3, MaxIters: 1}})
	require.NoError(t, err)
	assert.Less(t, sum.At(0, 0), 1e4)
}

func TestCollapseClipMasksNaN(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = 10 + 0.1*float64(i%3)
	}
	values[4] = math.NaN()
	c := cube.MustFromData("gap", values, len(values), 1, 1)

	for _, m := range []Method{Sum, Mean, Median} {
		plain, err := Collapse(c, Options{Method: m})
		require.NoError(t, err)
		assert.True(t, math.IsNaN(plain.At(0, 0)), "unclipped %s should propagate NaN", m)
	}

	median, err := Collapse(c, Options{Method: Median, Clip: &SigmaClip{Sigma: 3}})
	require.NoError(t, err)
	assert.InDelta(t, 10.1, median.At(0, 0), 0.05)

	mean, err := Collapse(c, Options{Method: Mean, Clip: &SigmaClip{Sigma: 3}})
	require.NoError(t, err)
	assert.InDelta(t, 10.1, mean.At(0, 0), 0.05)

	sum, err := Collapse(c, Options{Method: Sum, Clip: &SigmaClip{Sigma: 3}})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(sum.At(0, 0)))
	assert.Greater(t, sum.At(0, 0), 80.0)
}

func TestClipMasksNonFinite(t *testing.T) {
	kept, n, err := SigmaClip{Sigma: 3}.clip([]float64{1, math.Inf(1), 1, math.NaN(), 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, kept)
	assert.Equal(t, 2, n)
}

func TestCollapseTwoDimensional(t *testing.T) {
	c := cube.MustFromData("image", []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	img, err := Collapse(c, Options{Method: Median})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, img.RawMatrix().Data)
}

func TestCollapseErrors(t *testing.T) {
	c := frameIndexCube(t, 10, 2, 2)

	_, err := Collapse(c, Options{Method: Method(42)})
	assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument)

	for _, s := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = Collapse(c, Options{Method: Sum, Clip: &SigmaClip{Sigma: s}})
		assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument, "sigma %g", s)
	}

	_, err = Collapse(c, Options{Method: Sum, Region: calibration.NewRegion(3, 11)})
	assert.ErrorIs(t, err, ifuerr.ErrOutOfRange)

	_, err = Collapse(c, Options{Method: Sum, Region: calibration.NewRegion(6, 2)})
	assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument)
}

func TestParseMethod(t *testing.T) {
	for name, want := range map[string]Method{"sum": Sum, "Mean": Mean, " median ": Median} {
		got, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMethod("mode")
	assert.ErrorIs(t, err, ifuerr.ErrInvalidArgument)

	var m Method
	require.NoError(t, m.UnmarshalText([]byte("median")))
	assert.Equal(t, Median, m)
	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "median", string(text))
}
