// Package export writes extracted spectra and line measurements as CSV or
// XLSX tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"ifucube/pkg/ifuerr"
	"ifucube/pkg/linefit"
	"ifucube/pkg/spectrum"
)

// Sheet names used by WriteXLSX.
const (
	SpectrumSheet = "Spectrum"
	LineSheet     = "Line"
	FitSheet      = "Fit"
)

// Table is a header row plus numeric rows. When Labels is set, row i starts
// with the text Labels[i] and Headers names that column too.
type Table struct {
	Headers []string
	Labels  []string
	Rows    [][]float64
}

// SpectrumTable lays out a spectrum as wavelength, frame and one flux column
// per spaxel.
func SpectrumTable(spec *spectrum.Spectrum) Table {
	t := Table{Headers: []string{"wavelength", "frame"}}
	for _, sp := range spec.Spaxels {
		t.Headers = append(t.Headers, "flux "+sp.String())
	}
	t.Rows = make([][]float64, spec.Len())
	for i := range t.Rows {
		row := make([]float64, 0, len(t.Headers))
		row = append(row, spec.Wavelength[i], spec.Frame[i])
		for _, flux := range spec.Flux {
			row = append(row, flux[i])
		}
		t.Rows[i] = row
	}
	return t
}

// LineTable lays out the windowed samples of a line measurement with the
// fitted model. Frame and continuum columns appear only when present.
func LineTable(res *linefit.Result) Table {
	hasFrame := len(res.Frame) == len(res.Wavelength)
	hasCont := len(res.Continuum) == len(res.Wavelength)

	t := Table{Headers: []string{"wavelength"}}
	if hasFrame {
		t.Headers = append(t.Headers, "frame")
	}
	t.Headers = append(t.Headers, "flux")
	if hasCont {
		t.Headers = append(t.Headers, "continuum")
	}
	t.Headers = append(t.Headers, "model")

	model := res.Model()
	t.Rows = make([][]float64, len(res.Wavelength))
	for i, w := range res.Wavelength {
		row := []float64{w}
		if hasFrame {
			row = append(row, res.Frame[i])
		}
		row = append(row, res.Flux[i])
		if hasCont {
			row = append(row, res.Continuum[i])
		}
		t.Rows[i] = append(row, model[i])
	}
	return t
}

// FitTable lists the fitted and initial Gaussian parameters, one labelled
// row per parameter.
func FitTable(res *linefit.Result) Table {
	return Table{
		Headers: []string{"parameter", "fitted", "initial"},
		Labels:  []string{"amplitude", "center", "stddev", "fwhm"},
		Rows: [][]float64{
			{res.Params.Amplitude, res.Initial.Amplitude},
			{res.Params.Center, res.Initial.Center},
			{res.Params.StdDev, res.Initial.StdDev},
			{res.Params.FWHM(), res.Initial.FWHM()},
		},
	}
}

// record formats row r of t as text, label first.
func (t Table) record(r int) []string {
	row := t.Rows[r]
	out := make([]string, 0, len(row)+1)
	if t.Labels != nil {
		out = append(out, t.Labels[r])
	}
	for _, v := range row {
		out = append(out, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return out
}

func (t Table) validate() error {
	if t.Labels != nil && len(t.Labels) != len(t.Rows) {
		return fmt.Errorf("%w: %d labels for %d rows", ifuerr.ErrShapeMismatch, len(t.Labels), len(t.Rows))
	}
	return nil
}

// WriteSpectrumCSV writes spec as CSV.
func WriteSpectrumCSV(w io.Writer, spec *spectrum.Spectrum) error {
	return writeCSV(w, SpectrumTable(spec))
}

// WriteLineCSV writes the windowed samples of res as CSV.
func WriteLineCSV(w io.Writer, res *linefit.Result) error {
	return writeCSV(w, LineTable(res))
}

// WriteFitCSV writes the fitted parameters of res as CSV.
func WriteFitCSV(w io.Writer, res *linefit.Result) error {
	return writeCSV(w, FitTable(res))
}

func writeCSV(w io.Writer, t Table) error {
	if err := t.validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	for r := range t.Rows {
		if err := cw.Write(t.record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with a Spectrum sheet for spec and Line and
// Fit sheets for res. Either may be nil, but not both.
func WriteXLSX(path string, spec *spectrum.Spectrum, res *linefit.Result) error {
	if spec == nil && res == nil {
		return fmt.Errorf("%w: nothing to export", ifuerr.ErrInvalidArgument)
	}

	f := excelize.NewFile()
	defer f.Close()

	var sheets []string
	if spec != nil {
		sheets = append(sheets, SpectrumSheet)
	}
	if res != nil {
		sheets = append(sheets, LineSheet, FitSheet)
	}

	// The default workbook starts with Sheet1; reuse it for the first table.
	if err := f.SetSheetName("Sheet1", sheets[0]); err != nil {
		return err
	}
	for _, name := range sheets[1:] {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	if spec != nil {
		if err := writeSheet(f, SpectrumSheet, SpectrumTable(spec)); err != nil {
			return err
		}
	}
	if res != nil {
		if err := writeSheet(f, LineSheet, LineTable(res)); err != nil {
			return err
		}
		if err := writeSheet(f, FitSheet, FitTable(res)); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving workbook %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t Table) error {
	if err := t.validate(); err != nil {
		return err
	}

	// Header row
	for i, h := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	// Data rows
	for r, row := range t.Rows {
		rowIdx := r + 2
		col := 1
		if t.Labels != nil {
			cell, _ := excelize.CoordinatesToCellName(col, rowIdx)
			if err := f.SetCellValue(sheet, cell, t.Labels[r]); err != nil {
				return err
			}
			col++
		}
		for _, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col, rowIdx)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
			col++
		}
	}
	return nil
}
