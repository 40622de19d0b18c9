package influxsink_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/rogpeppe/p1influx/influxsink"
	"github.com/rogpeppe/p1influx/p1meter"
)

var epoch = time.Unix(946814400, 0) // 2000-01-02 12:00:00Z

var testSnapshot = &p1meter.Snapshot{
	Generation:         50,
	WifiStrength:       100,
	TotalPowerImportT1: 10830.5,
	TotalPowerImportT2: 2948.25,
	TotalPowerExportT1: 1285.75,
	TotalPowerExportT2: 2876.5,
	ActivePower:        -543,
	ActivePowerL1:      -676,
	ActivePowerL2:      133,
	ActivePowerL3:      0,
	Gas: &p1meter.GasReading{
		TotalM3:   2569.5,
		Timestamp: 210606140010,
	},
}

var electricityLines = []string{
	"wifi_strength percentage=100 946814400000000000",
	"total_power_import_t1_kwh kwh=10830.5 946814400000000000",
	"total_power_import_t2_kwh kwh=2948.25 946814400000000000",
	"total_power_export_t1_kwh kwh=1285.75 946814400000000000",
	"total_power_export_t2_kwh kwh=2876.5 946814400000000000",
	"active_power_w watt=-543 946814400000000000",
	"active_power_l1_w watt=-676 946814400000000000",
	"active_power_l2_w watt=133 946814400000000000",
	"active_power_l3_w watt=0 946814400000000000",
}

var gasLines = []string{
	"total_gas_m3 m3=2569.5 946814400000000000",
	"gas_timestamp timestamp=210606140010i 946814400000000000",
}

var pointsTests = []struct {
	testName string
	snapshot *p1meter.Snapshot
	slow     bool
	expect   []string
}{{
	testName: "fast",
	snapshot: testSnapshot,
	slow:     false,
	expect:   electricityLines,
}, {
	testName: "slow",
	snapshot: testSnapshot,
	slow:     true,
	expect:   append(append([]string(nil), electricityLines...), gasLines...),
}, {
	testName: "slow-without-gas",
	snapshot: withoutGas(testSnapshot),
	slow:     true,
	expect:   electricityLines,
}}

func TestPoints(t *testing.T) {
	c := qt.New(t)
	for _, test := range pointsTests {
		c.Run(test.testName, func(c *qt.C) {
			points := influxsink.Points(test.snapshot, test.slow, epoch)
			lines := make([]string, len(points))
			for i, p := range points {
				lines[i] = pointLine(c, p)
			}
			c.Assert(lines, qt.DeepEquals, test.expect)
		})
	}
}

// pointLine formats an untagged single-field point in the
// same form the server receives it.
func pointLine(c *qt.C, p *write.Point) string {
	c.Assert(p.TagList(), qt.HasLen, 0)
	fields := p.FieldList()
	c.Assert(fields, qt.HasLen, 1)
	var value string
	switch v := fields[0].Value.(type) {
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		value = strconv.FormatInt(v, 10) + "i"
	default:
		c.Fatalf("unexpected field type %T", v)
	}
	return fmt.Sprintf("%s %s=%s %d", p.Name(), fields[0].Key, value, p.Time().UnixNano())
}

func TestWriteSnapshot(t *testing.T) {
	c := qt.New(t)
	db := newFakeInflux()
	defer db.Close()

	sink, err := influxsink.New(influxsink.Params{
		URL:    db.URL,
		Token:  "sometoken",
		Org:    "home",
		Bucket: "p1",
		Now: func() time.Time {
			return epoch
		},
	})
	c.Assert(err, qt.IsNil)
	defer sink.Close()

	err = sink.WriteSnapshot(context.Background(), testSnapshot, false)
	c.Assert(err, qt.IsNil)
	err = sink.WriteSnapshot(context.Background(), testSnapshot, true)
	c.Assert(err, qt.IsNil)

	reqs := db.requests()
	c.Assert(reqs, qt.HasLen, 2)
	for _, req := range reqs {
		c.Assert(req.org, qt.Equals, "home")
		c.Assert(req.bucket, qt.Equals, "p1")
		c.Assert(req.auth, qt.Equals, "Token sometoken")
	}
	c.Assert(bodyLines(reqs[0]), qt.DeepEquals, electricityLines)
	c.Assert(bodyLines(reqs[1]), qt.HasLen, len(electricityLines)+len(gasLines))
	c.Assert(bodyLines(reqs[1])[len(electricityLines):], qt.DeepEquals, gasLines)
}

func TestWriteSnapshotError(t *testing.T) {
	c := qt.New(t)
	db := newFakeInflux()
	defer db.Close()
	db.setFail(true)

	sink, err := influxsink.New(influxsink.Params{
		URL:    db.URL,
		Token:  "sometoken",
		Org:    "home",
		Bucket: "p1",
	})
	c.Assert(err, qt.IsNil)
	defer sink.Close()

	err = sink.WriteSnapshot(context.Background(), testSnapshot, false)
	c.Assert(err, qt.ErrorMatches, `cannot write 9 points to InfluxDB: (.|\n)*`)
}

func TestNewError(t *testing.T) {
	c := qt.New(t)
	_, err := influxsink.New(influxsink.Params{
		Org:    "home",
		Bucket: "p1",
	})
	c.Assert(err, qt.ErrorMatches, `no InfluxDB URL set`)

	_, err = influxsink.New(influxsink.Params{
		URL: "http://localhost:8086",
		Org: "home",
	})
	c.Assert(err, qt.ErrorMatches, `InfluxDB organization and bucket must both be set`)
}

func withoutGas(s *p1meter.Snapshot) *p1meter.Snapshot {
	s1 := *s
	s1.Gas = nil
	return &s1
}

func bodyLines(r writeRequest) []string {
	return strings.Split(strings.TrimSpace(r.body), "\n")
}

type writeRequest struct {
	org    string
	bucket string
	auth   string
	body   string
}

// fakeInflux implements just enough of the InfluxDB v2
// HTTP API to accept writes.
type fakeInflux struct {
	*httptest.Server
	mu   sync.Mutex
	reqs []writeRequest
	fail bool
}

func newFakeInflux() *fakeInflux {
	db := &fakeInflux{}
	db.Server = httptest.NewServer(http.HandlerFunc(db.serveHTTP))
	return db
}

func (db *fakeInflux) serveHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != "POST" || req.URL.Path != "/api/v2/write" {
		http.NotFound(w, req)
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"invalid","message":"bucket not found"}`)
		return
	}
	db.reqs = append(db.reqs, writeRequest{
		org:    req.URL.Query().Get("org"),
		bucket: req.URL.Query().Get("bucket"),
		auth:   req.Header.Get("Authorization"),
		body:   string(body),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (db *fakeInflux) setFail(fail bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail = fail
}

func (db *fakeInflux) requests() []writeRequest {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]writeRequest(nil), db.reqs...)
}
