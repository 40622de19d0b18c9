// Package p1metertest provides a fake P1 meter for tests.
package p1metertest

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/juju/loggo"
	"github.com/julienschmidt/httprouter"
	"gopkg.in/httprequest.v1"
)

var logger = loggo.GetLogger("p1influx.p1metertest")

// Data returns a set of meter values as a meter
// with the given protocol generation might send them.
// When gas is true, gas readings are included.
func Data(generation int, gas bool) map[string]interface{} {
	d := map[string]interface{}{
		"smr_version":               generation,
		"meter_model":               "ISKRA  2M550T-101",
		"wifi_ssid":                 "home",
		"wifi_strength":             100,
		"total_power_import_t1_kwh": 10830.511,
		"total_power_import_t2_kwh": 2948.827,
		"total_power_export_t1_kwh": 1285.951,
		"total_power_export_t2_kwh": 2876.51,
		"active_power_w":            -543,
		"active_power_l1_w":         -676,
		"active_power_l2_w":         133,
		"active_power_l3_w":         0,
	}
	if gas {
		d["total_gas_m3"] = 2569.646
		d["gas_timestamp"] = int64(210606140010)
	}
	return d
}

// Server is a fake P1 meter. Its address is in Addr.
type Server struct {
	Addr string
	lis  net.Listener

	mu       sync.Mutex
	data     map[string]interface{}
	body     []byte
	failures int
	requests int
}

var reqServer = &httprequest.Server{}

// NewServer starts a fake meter listening on addr that
// serves the data returned by Data(50, true).
func NewServer(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		Addr: lis.Addr().String(),
		lis:  lis,
		data: Data(50, true),
	}
	router := httprouter.New()
	for _, h := range reqServer.Handlers(srv.handler) {
		router.Handle(h.Method, h.Path, h.Handle)
	}
	go http.Serve(lis, router)
	return srv, nil
}

// SetData sets the values that the meter will send.
func (srv *Server) SetData(data map[string]interface{}) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.data = data
	srv.body = nil
}

// SetField sets a single value sent by the meter.
// If v is nil, the field is removed.
func (srv *Server) SetField(name string, v interface{}) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	data := make(map[string]interface{})
	for k, v := range srv.data {
		data[k] = v
	}
	if v == nil {
		delete(data, name)
	} else {
		data[name] = v
	}
	srv.data = data
}

// SetBody makes the meter send the given body verbatim
// instead of the JSON-encoded data.
func (srv *Server) SetBody(body string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.body = []byte(body)
}

// FailNext causes the next n requests to fail
// with an internal server error.
func (srv *Server) FailNext(n int) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.failures = n
}

// Requests returns the number of data requests
// that the meter has received.
func (srv *Server) Requests() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.requests
}

func (srv *Server) Close() {
	srv.lis.Close()
}

func (srv *Server) handler(p httprequest.Params) (handler, context.Context, error) {
	return handler{srv}, p.Context, nil
}

type handler struct {
	srv *Server
}

type dataReq struct {
	httprequest.Route `httprequest:"GET /api/v1/data"`
}

func (h handler) Data(p httprequest.Params, req *dataReq) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	h.srv.requests++
	if h.srv.failures > 0 {
		h.srv.failures--
		http.Error(p.Response, "meter unavailable", http.StatusInternalServerError)
		return
	}
	body := h.srv.body
	if body == nil {
		data, err := json.Marshal(h.srv.data)
		if err != nil {
			logger.Errorf("cannot marshal meter data: %v", err)
			http.Error(p.Response, err.Error(), http.StatusInternalServerError)
			return
		}
		body = data
	}
	p.Response.Header().Set("Content-Type", "application/json")
	p.Response.Write(body)
}
