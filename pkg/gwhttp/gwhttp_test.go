package gwhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-pvaccess/pva/pkg/provider"
	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/sharedpv"
)

func testStructure() *pvdata.Structure {
	return &pvdata.Structure{
		ID: "epics:nt/NTScalar:1.0",
		Fields: []pvdata.Field{
			{Name: "value", Type: pvdata.KindFloat64},
			{Name: "name", Type: pvdata.KindString},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *sharedpv.SharedPV) {
	t.Helper()
	st := testStructure()
	initial := pvdata.NewPVStructure(st)
	initial.Values["value"] = 1.5
	initial.Values["name"] = "gauge"

	valid := pvdata.NewBitSet(len(st.Fields))
	for i := range st.Fields {
		valid.Set(i)
	}
	pv := sharedpv.NewMailbox(sharedpv.Config{})
	require.NoError(t, pv.Open(initial, valid))

	reg := provider.NewRegistry()
	sp := provider.NewStaticProvider("test")
	sp.Add("test:gauge", pv)
	reg.Register(sp)

	return New(reg, nil), pv
}

func TestListChannels(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	var body struct {
		Channels []string `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, []string{"test:gauge"}, body.Channels)
}

func TestGetChannelReturnsCurrentValues(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/channels/test:gauge", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var values map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &values))
	require.Equal(t, 1.5, values["value"])
	require.Equal(t, "gauge", values["name"])
}

func TestGetUnknownChannelReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/channels/nope", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPutChannelAppliesChangedFields(t *testing.T) {
	s, pv := newTestServer(t)

	body := strings.NewReader(`{"value": 42.5}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/channels/test:gauge", body)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)

	value, _ := pv.Fetch()
	require.Equal(t, 42.5, value.Values["value"])
	require.Equal(t, "gauge", value.Values["name"], "fields absent from the PUT body are left untouched")
}

func TestPutChannelRejectsWrongType(t *testing.T) {
	s, _ := newTestServer(t)

	body := strings.NewReader(`{"value": "not-a-number"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/channels/test:gauge", body)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatsReportsChannelCountAndInjectedStats(t *testing.T) {
	reg := provider.NewRegistry()
	sp := provider.NewStaticProvider("test")
	reg.Register(sp)

	s := New(reg, func() map[string]int {
		return map[string]int{"connections": 3, "operations": 7}
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var stats map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, 0, stats["channels"])
	require.Equal(t, 3, stats["connections"])
	require.Equal(t, 7, stats["operations"])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/channels/test:gauge", nil)
	s.ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
