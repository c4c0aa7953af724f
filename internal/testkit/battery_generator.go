package testkit

import (
	"encoding/csv"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"batteryflow/domain/dataset"
)

// BatteryGeneratorConfig configures the synthetic cycling table
type BatteryGeneratorConfig struct {
	Rows        int     `json:"rows"`
	Cycles      int     `json:"cycles"` // distinct cycle_index values, assigned round-robin
	Cells       int     `json:"cells"`
	OutlierRate float64 `json:"outlier_rate"` // share of rows with a spiked temperature
	NullRate    float64 `json:"null_rate"`    // share of internal_resistance cells left empty
	Seed        int64   `json:"seed"`
}

// DefaultBatteryConfig returns 1000 rows over two cycles
func DefaultBatteryConfig() BatteryGeneratorConfig {
	return BatteryGeneratorConfig{
		Rows:        1000,
		Cycles:      2,
		Cells:       4,
		OutlierRate: 0.01,
		Seed:        42,
	}
}

// BatteryColumns is the column order of generated tables
var BatteryColumns = []string{
	dataset.ColumnIndex,
	dataset.ColumnCellIndex,
	dataset.ColumnCycleIndex,
	dataset.ColumnTestTime,
	dataset.ColumnVoltage,
	dataset.ColumnCurrent,
	dataset.ColumnDischargeCapacity,
	dataset.ColumnInternalResistance,
	dataset.ColumnTemperature,
}

// BatteryDataGenerator produces tables whose discharge capacity tracks voltage
type BatteryDataGenerator struct {
	config BatteryGeneratorConfig
	rng    *rand.Rand
}

// NewBatteryDataGenerator creates a generator for config
func NewBatteryDataGenerator(config BatteryGeneratorConfig) *BatteryDataGenerator {
	if config.Cycles <= 0 {
		config.Cycles = 1
	}
	if config.Cells <= 0 {
		config.Cells = 1
	}
	return &BatteryDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Values generates the table as column-major values in BatteryColumns order
func (g *BatteryDataGenerator) Values() [][]float64 {
	n := g.config.Rows
	cols := make([][]float64, len(BatteryColumns))
	for j := range cols {
		cols[j] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		cycle := i%g.config.Cycles + 1
		t := float64(i) * 2.5
		voltage := 3.2 + 0.9*g.rng.Float64()
		current := -1.1 + 0.05*g.rng.NormFloat64()
		capacity := 0.4 + 0.8*(voltage-3.2) - 0.01*float64(cycle) + 0.02*g.rng.NormFloat64()
		resistance := 0.015 + 0.001*g.rng.NormFloat64()
		temperature := 30 + 0.5*g.rng.NormFloat64()
		if g.rng.Float64() < g.config.OutlierRate {
			temperature += 25
		}
		if g.rng.Float64() < g.config.NullRate {
			resistance = math.NaN()
		}

		cols[0][i] = float64(i)
		cols[1][i] = float64(i % g.config.Cells)
		cols[2][i] = float64(cycle)
		cols[3][i] = t
		cols[4][i] = voltage
		cols[5][i] = current
		cols[6][i] = capacity
		cols[7][i] = resistance
		cols[8][i] = temperature
	}
	return cols
}

// Frame generates the table as a frame
func (g *BatteryDataGenerator) Frame() (*dataset.Frame, error) {
	return dataset.NewFrame(BatteryColumns, g.Values())
}

// WriteCSV generates the table and writes it to path with a header row. Nulls are empty cells.
func (g *BatteryDataGenerator) WriteCSV(path string) error {
	cols := g.Values()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(BatteryColumns); err != nil {
		return err
	}
	row := make([]string, len(cols))
	for i := 0; i < g.config.Rows; i++ {
		for j := range cols {
			if math.IsNaN(cols[j][i]) {
				row[j] = ""
			} else {
				row[j] = strconv.FormatFloat(cols[j][i], 'g', -1, 64)
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
