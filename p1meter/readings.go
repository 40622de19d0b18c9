package p1meter

// Reading holds a single named value from a snapshot.
type Reading struct {
	// Name holds the name of the value as used by the meter API.
	Name string
	// Unit holds the unit the value is measured in.
	Unit string
	// Value holds the value itself: a float64 or an int64.
	Value interface{}
}

// Readings returns the electricity readings in s, which are present
// in every snapshot, in the order that the meter API documents them.
func (s *Snapshot) Readings() []Reading {
	return []Reading{
		{"wifi_strength", "percentage", s.WifiStrength},
		{"total_power_import_t1_kwh", "kwh", s.TotalPowerImportT1},
		{"total_power_import_t2_kwh", "kwh", s.TotalPowerImportT2},
		{"total_power_export_t1_kwh", "kwh", s.TotalPowerExportT1},
		{"total_power_export_t2_kwh", "kwh", s.TotalPowerExportT2},
		{"active_power_w", "watt", s.ActivePower},
		{"active_power_l1_w", "watt", s.ActivePowerL1},
		{"active_power_l2_w", "watt", s.ActivePowerL2},
		{"active_power_l3_w", "watt", s.ActivePowerL3},
	}
}

// GasReadings returns the gas readings in s, or nil
// if there's no gas meter.
func (s *Snapshot) GasReadings() []Reading {
	if s.Gas == nil {
		return nil
	}
	return []Reading{
		{"total_gas_m3", "m3", s.Gas.TotalM3},
		{"gas_timestamp", "timestamp", s.Gas.Timestamp},
	}
}
