package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"batteryflow/domain/core"
	"batteryflow/domain/dataset"
	"batteryflow/internal"

	"github.com/xuri/excelize/v2"
)

// nullTokens are read as missing values
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"none": true,
}

// DataReader reads CSV files and Excel workbooks into frames
type DataReader struct {
	logger  *internal.Logger
	numeric map[string]bool // columns that must parse as numbers
}

// NewDataReader creates a reader. Cells of the named numeric columns must parse as numbers;
// any other column holding text is left out of the frame.
func NewDataReader(logger *internal.Logger, numeric ...string) *DataReader {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	set := make(map[string]bool, len(numeric))
	for _, c := range numeric {
		set[c] = true
	}
	return &DataReader{logger: logger, numeric: set}
}

// Read loads the whole file at path. The file type follows the extension; anything other
// than .xlsx is read as comma-delimited text.
func (r *DataReader) Read(ctx context.Context, path string) (*dataset.Frame, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, core.NewDataFormatError(path, fmt.Sprintf("cannot open input: %v", err))
	}

	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = r.readExcelRows(path)
	default:
		rows, err = r.readCSVRows(path)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := r.processRows(path, rows)
	if err != nil {
		return nil, err
	}
	r.logger.Info("[DataReader] %s read in %.2fms (%d rows, %d columns)",
		path, float64(time.Since(start).Nanoseconds())/1e6, frame.NumRows(), frame.NumCols())
	return frame, nil
}

// readExcelRows reads the first sheet of a workbook
func (r *DataReader) readExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, core.NewDataFormatError(path, fmt.Sprintf("failed to open workbook: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.NewDataFormatError(path, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, core.NewDataFormatError(path, fmt.Sprintf("failed to read sheet %s: %v", sheets[0], err))
	}
	return rows, nil
}

func (r *DataReader) readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, core.NewDataFormatError(path, fmt.Sprintf("cannot open input: %v", err))
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	var rows [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewDataFormatError(path, fmt.Sprintf("malformed CSV: %v", err))
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// processRows converts raw string rows into a column-major frame
func (r *DataReader) processRows(path string, rows [][]string) (*dataset.Frame, error) {
	if len(rows) == 0 {
		return nil, core.NewDataFormatError(path, "file has no header row")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers[i] = h
	}

	body := rows[1:]
	cols := make([][]float64, len(headers))
	for j := range cols {
		cols[j] = make([]float64, len(body))
	}
	textual := make([]bool, len(headers))

	for i, row := range body {
		if len(row) > len(headers) {
			return nil, core.NewDataFormatError(path, fmt.Sprintf("row %d has %d fields, header has %d", i+1, len(row), len(headers)))
		}
		for j := range headers {
			if j >= len(row) {
				cols[j][i] = math.NaN()
				continue
			}
			cell := strings.TrimSpace(row[j])
			if nullTokens[strings.ToLower(cell)] {
				cols[j][i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				if r.numeric[headers[j]] {
					return nil, core.NewDataFormatError(headers[j], fmt.Sprintf("row %d: %q is not numeric", i, cell))
				}
				textual[j] = true
				continue
			}
			cols[j][i] = v
		}
	}

	var (
		names   []string
		values  [][]float64
		skipped []string
	)
	for j, h := range headers {
		if textual[j] {
			skipped = append(skipped, h)
			continue
		}
		names = append(names, h)
		values = append(values, cols[j])
	}
	if len(skipped) > 0 {
		r.logger.Warn("[DataReader] ignoring non-numeric columns in %s: %s", path, strings.Join(skipped, ", "))
	}

	return dataset.NewFrame(names, values)
}
