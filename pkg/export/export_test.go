package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ifucube/pkg/ifuerr"
	"ifucube/pkg/linefit"
	"ifucube/pkg/spectrum"
)

func sampleSpectrum() *spectrum.Spectrum {
	return &spectrum.Spectrum{
		Wavelength: []float64{2.0, 2.5, 3.0},
		Frame:      []float64{10, 11, 12},
		Flux:       [][]float64{{1, 2, 3}, {4, 5, 6}},
		Spaxels:    []spectrum.Spaxel{{X: 1, Y: 2}, {X: 3, Y: 4}},
	}
}

func sampleResult() *linefit.Result {
	return &linefit.Result{
		Wavelength: []float64{2.0, 2.5, 3.0},
		Flux:       []float64{0.5, 2, 0.5},
		Frame:      []float64{10, 11, 12},
		Params:     linefit.Params{Amplitude: 2, Center: 2.5, StdDev: 0.3},
		Initial:    linefit.Params{Amplitude: 2, Center: 2.5, StdDev: 0.25},
	}
}

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteSpectrumCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSpectrumCSV(&buf, sampleSpectrum()))

	records := readCSV(t, &buf)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"wavelength", "frame", "flux [1, 2]", "flux [3, 4]"}, records[0])
	assert.Equal(t, []string{"2.5", "11", "2", "5"}, records[2])
}

func TestWriteLineCSV(t *testing.T) {
	res := sampleResult()

	var buf bytes.Buffer
	require.NoError(t, WriteLineCSV(&buf, res))
	records := readCSV(t, &buf)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"wavelength", "frame", "flux", "model"}, records[0])

	model, err := strconv.ParseFloat(records[2][3], 64)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, model, 1e-12)

	res.Frame = nil
	res.Continuum = []float64{1, 1, 1}
	buf.Reset()
	require.NoError(t, WriteLineCSV(&buf, res))
	records = readCSV(t, &buf)
	assert.Equal(t, []string{"wavelength", "flux", "continuum", "model"}, records[0])
}

func TestWriteFitCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFitCSV(&buf, sampleResult()))

	records := readCSV(t, &buf)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"center", "2.5", "2.5"}, records[2])
	assert.Equal(t, "fwhm", records[4][0])
}

func TestFitTableLabels(t *testing.T) {
	res := sampleResult()
	table := FitTable(res)
	assert.Equal(t, []string{"amplitude", "center", "stddev", "fwhm"}, table.Labels)
	require.Len(t, table.Rows, len(table.Labels))
	for _, row := range table.Rows {
		assert.Len(t, row, len(table.Headers)-1)
	}
	assert.Equal(t, []float64{res.Params.Center, res.Initial.Center}, table.Rows[1])
	assert.Equal(t, []float64{res.Params.FWHM(), res.Initial.FWHM()}, table.Rows[3])

	var buf bytes.Buffer
	bad := Table{Headers: []string{"name", "value"}, Labels: []string{"a"}, Rows: [][]float64{{1}, {2}}}
	assert.ErrorIs(t, writeCSV(&buf, bad), ifuerr.ErrShapeMismatch)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables", "result.xlsx")
	require.NoError(t, WriteXLSX(path, sampleSpectrum(), sampleResult()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SpectrumSheet, LineSheet, FitSheet}, f.GetSheetList())

	rows, err := f.GetRows(SpectrumSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "flux [3, 4]", rows[0][3])
	assert.Equal(t, "6", rows[3][3])

	fit, err := f.GetRows(FitSheet)
	require.NoError(t, err)
	require.Len(t, fit, 5)
	assert.Equal(t, "stddev", fit[3][0])
}

func TestWriteXLSXSpectrumOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectrum.xlsx")
	require.NoError(t, WriteXLSX(path, sampleSpectrum(), nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SpectrumSheet}, f.GetSheetList())
}

func TestWriteXLSXNothing(t *testing.T) {
	err := WriteXLSX(filepath.Join(t.TempDir(), "empty.xlsx"), nil, nil)
	assert.True(t, errors.Is(err, ifuerr.ErrInvalidArgument))
}
