// Package p1meter reads live values from a HomeWizard P1 meter
// through its local HTTP API.
package p1meter

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/errgo.v1"
	"gopkg.in/httprequest.v1"
)

// DataPath holds the path of the meter's telemetry endpoint.
const DataPath = "/api/v1/data"

// client is used to talk to the meter.
var client = &httprequest.Client{}

// Generation holds the smart meter specification revision
// reported by the meter (the "smr_version" field), for example
// 42 for DSMR 4.2 or 50 for DSMR 5.0.
type Generation int

// UnmarshalJSON implements json.Unmarshaler. The meter
// usually sends an integer but some firmware sends a string,
// so both are accepted.
func (g *Generation) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if n, err := strconv.Atoi(s); err == nil {
		*g = Generation(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return errgo.Newf("invalid protocol generation %s", data)
	}
	*g = Generation(int(f))
	return nil
}

// Snapshot holds all the values read from the meter at one instant.
type Snapshot struct {
	Generation   Generation
	MeterModel   string
	WifiSSID     string
	WifiStrength float64

	// Total energy counters in kWh, by tariff.
	TotalPowerImportT1 float64
	TotalPowerImportT2 float64
	TotalPowerExportT1 float64
	TotalPowerExportT2 float64

	// Instantaneous power in W, in total and by phase.
	ActivePower   float64
	ActivePowerL1 float64
	ActivePowerL2 float64
	ActivePowerL3 float64

	// Gas holds the most recent gas meter reading.
	// It's nil when there's no gas meter attached.
	Gas *GasReading
}

// GasReading holds a reading from the gas meter attached to the
// P1 meter. Gas meters report much less often than the electricity
// meter, so the reading may be older than the rest of the snapshot.
type GasReading struct {
	// TotalM3 holds the cumulative gas volume in m³.
	TotalM3 float64
	// Timestamp holds the time of the reading as sent by the meter,
	// encoded as the decimal digits YYMMDDhhmmss.
	Timestamp int64
}

// dataResponse holds the JSON sent by the meter. Pointers
// are used so that we can tell when a field is missing.
type dataResponse struct {
	SMRVersion         *Generation  `json:"smr_version"`
	MeterModel         string       `json:"meter_model"`
	WifiSSID           string       `json:"wifi_ssid"`
	WifiStrength       *float64     `json:"wifi_strength"`
	TotalPowerImportT1 *float64     `json:"total_power_import_t1_kwh"`
	TotalPowerImportT2 *float64     `json:"total_power_import_t2_kwh"`
	TotalPowerExportT1 *float64     `json:"total_power_export_t1_kwh"`
	TotalPowerExportT2 *float64     `json:"total_power_export_t2_kwh"`
	ActivePower        *float64     `json:"active_power_w"`
	ActivePowerL1      *float64     `json:"active_power_l1_w"`
	ActivePowerL2      *float64     `json:"active_power_l2_w"`
	ActivePowerL3      *float64     `json:"active_power_l3_w"`
	TotalGasM3         *float64     `json:"total_gas_m3"`
	GasTimestamp       *json.Number `json:"gas_timestamp"`
}

// Get reads the current values from the meter at the given host.
// The context should normally carry a deadline, because the
// meter can stop responding without closing the connection.
func Get(ctx context.Context, host string) (*Snapshot, error) {
	var resp dataResponse
	if err := getData(ctx, host, &resp); err != nil {
		return nil, errgo.Mask(err)
	}
	s, err := resp.snapshot()
	if err != nil {
		return nil, errgo.Notef(err, "bad data from meter at %s", host)
	}
	return s, nil
}

// GetGeneration reads the protocol generation from the meter
// at the given host.
func GetGeneration(ctx context.Context, host string) (Generation, error) {
	var resp struct {
		SMRVersion *Generation `json:"smr_version"`
	}
	if err := getData(ctx, host, &resp); err != nil {
		return 0, errgo.Mask(err)
	}
	if resp.SMRVersion == nil {
		return 0, errgo.Newf("no smr_version field in data from meter at %s", host)
	}
	return *resp.SMRVersion, nil
}

func getData(ctx context.Context, host string, resp interface{}) error {
	if err := client.Get(ctx, "http://"+host+DataPath, resp); err != nil {
		return errgo.Notef(err, "cannot fetch data from meter at %s", host)
	}
	return nil
}

func (r *dataResponse) snapshot() (*Snapshot, error) {
	s := &Snapshot{
		MeterModel: r.MeterModel,
		WifiSSID:   r.WifiSSID,
	}
	if r.SMRVersion != nil {
		s.Generation = *r.SMRVersion
	}
	fields := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"wifi_strength", r.WifiStrength, &s.WifiStrength},
		{"total_power_import_t1_kwh", r.TotalPowerImportT1, &s.TotalPowerImportT1},
		{"total_power_import_t2_kwh", r.TotalPowerImportT2, &s.TotalPowerImportT2},
		{"total_power_export_t1_kwh", r.TotalPowerExportT1, &s.TotalPowerExportT1},
		{"total_power_export_t2_kwh", r.TotalPowerExportT2, &s.TotalPowerExportT2},
		{"active_power_w", r.ActivePower, &s.ActivePower},
		{"active_power_l1_w", r.ActivePowerL1, &s.ActivePowerL1},
		{"active_power_l2_w", r.ActivePowerL2, &s.ActivePowerL2},
		{"active_power_l3_w", r.ActivePowerL3, &s.ActivePowerL3},
	}
	for _, f := range fields {
		if f.src == nil {
			return nil, errgo.Newf("missing %s field", f.name)
		}
		*f.dst = *f.src
	}
	if r.TotalGasM3 != nil && r.GasTimestamp != nil {
		ts, err := r.GasTimestamp.Int64()
		if err != nil {
			return nil, errgo.Newf("invalid gas_timestamp %q", *r.GasTimestamp)
		}
		s.Gas = &GasReading{
			TotalM3:   *r.TotalGasM3,
			Timestamp: ts,
		}
	}
	return s, nil
}
