package dataset

import "batteryflow/domain/core"

// Column names of the battery cycling table
const (
	ColumnCycleIndex         = "cycle_index"
	ColumnVoltage            = "voltage"
	ColumnDischargeCapacity  = "discharge_capacity"
	ColumnCurrent            = "current"
	ColumnInternalResistance = "internal_resistance"
	ColumnTemperature        = "temperature"
	ColumnTestTime           = "test_time"
	ColumnCellIndex          = "cell_index"
	ColumnIndex              = "index"
	ColumnAnomaly            = "anomaly"
)

// FeatureSet is an ordered set of column names shared by both outlier filters
type FeatureSet []string

// BatteryFeatures is the feature set used for outlier removal
var BatteryFeatures = FeatureSet{
	ColumnVoltage,
	ColumnDischargeCapacity,
	ColumnCurrent,
	ColumnInternalResistance,
	ColumnTemperature,
}

// IdentifierColumns are dropped before computing correlations
var IdentifierColumns = []string{ColumnCellIndex, ColumnIndex, ColumnCycleIndex}

// RequiredColumns lists the columns every input file must carry
var RequiredColumns = []string{
	ColumnCycleIndex,
	ColumnVoltage,
	ColumnDischargeCapacity,
	ColumnCurrent,
	ColumnInternalResistance,
	ColumnTemperature,
	ColumnTestTime,
	ColumnCellIndex,
	ColumnIndex,
}

// Names returns the feature names as a plain slice
func (fs FeatureSet) Names() []string {
	return append([]string(nil), fs...)
}

// Validate checks that every feature exists in the frame
func (fs FeatureSet) Validate(f *Frame) error {
	for _, name := range fs {
		if !f.HasColumn(name) {
			return core.NewMissingColumnError(name)
		}
	}
	return nil
}
