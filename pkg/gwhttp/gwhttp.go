// Package gwhttp implements an HTTP introspection/debug gateway over a
// channel provider registry: list channel names, fetch or put a PV's
// fields as JSON, and report a caller-supplied summary of in-flight
// operations. It is a debug/ops surface alongside the pvAccess wire
// protocol itself, not a channel-access bridge. JSON encoding uses
// jsoniter.ConfigFastest, the same drop-in replacement for encoding/json
// an HTTP API package elsewhere in this codebase's lineage reaches for;
// request tracing ids use rs/xid, the same package pkg/discovery already
// uses for transaction correlation.
package gwhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/xid"

	"github.com/go-pvaccess/pva/pkg/provider"
	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/sharedpv"

	pva "github.com/go-pvaccess/pva"
)

var js = jsoniter.ConfigFastest

// StatsFunc returns a snapshot of whatever process-wide counters the
// caller wants exposed on /stats (live connections, in-flight operations).
// Server works fine with a nil StatsFunc; /stats then reports only the
// channel count, which it already knows from the provider registry.
type StatsFunc func() map[string]int

// Server is an http.Handler answering channel introspection requests
// against a provider Registry.
type Server struct {
	reg   *provider.Registry
	stats StatsFunc
	log   *slog.Logger
	mux   *http.ServeMux
}

// New builds a gateway Server over reg. stats may be nil.
func New(reg *provider.Registry, stats StatsFunc) *Server {
	s := &Server{
		reg:   reg,
		stats: stats,
		log:   slog.Default().With("component", "gwhttp"),
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/channels", s.handleChannels)
	s.mux.HandleFunc("/channels/", s.handleChannel)
	s.mux.HandleFunc("/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler, stamping every request with a
// correlation id before dispatching to the route table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := xid.New()
	w.Header().Set("X-Request-Id", reqID.String())
	s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "request_id", reqID.String())
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.reg.AllChannelNames()})
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/channels/")
	if name == "" {
		http.NotFound(w, r)
		return
	}
	pv, ok := s.reg.Find(name)
	if !ok {
		http.Error(w, "no such channel", http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getChannel(w, pv)
	case http.MethodPut:
		s.putChannel(w, r, pv)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getChannel(w http.ResponseWriter, pv *sharedpv.SharedPV) {
	value, _ := pv.Fetch()
	if value == nil {
		http.Error(w, "channel not open", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, value.Values)
}

func (s *Server) putChannel(w http.ResponseWriter, r *http.Request, pv *sharedpv.SharedPV) {
	var fields map[string]any
	if err := js.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	template := pv.Build()
	if template == nil {
		http.Error(w, "channel not open", http.StatusServiceUnavailable)
		return
	}
	changed := pvdata.NewBitSet(len(template.Struct.Fields))
	for name, raw := range fields {
		idx := template.Struct.FieldIndex(name)
		if idx < 0 {
			continue
		}
		v, err := coerceJSON(template.Struct.Fields[idx].Type, raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		template.Values[name] = v
		changed.Set(idx)
	}

	done := make(chan pva.Status, 1)
	pv.Put(template, changed, func(status pva.Status) { done <- status })
	status := <-done
	if !status.IsOK() {
		http.Error(w, status.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := map[string]int{"channels": len(s.reg.AllChannelNames())}
	if s.stats != nil {
		for k, v := range s.stats() {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// coerceJSON converts a decoded JSON value (jsoniter decodes numbers as
// float64, same as encoding/json) into the Go type a field of kind k
// stores, mirroring pkg/provider/wire.go's wire-string coerce for the
// JSON transport instead of the sized-string one.
func coerceJSON(k pvdata.Kind, v any) (any, error) {
	switch k {
	case pvdata.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.New("gwhttp: expected bool")
		}
		return b, nil
	case pvdata.KindByte:
		n, ok := v.(float64)
		if !ok {
			return nil, errors.New("gwhttp: expected number")
		}
		return byte(n), nil
	case pvdata.KindInt32:
		n, ok := v.(float64)
		if !ok {
			return nil, errors.New("gwhttp: expected number")
		}
		return int32(n), nil
	case pvdata.KindInt64:
		n, ok := v.(float64)
		if !ok {
			return nil, errors.New("gwhttp: expected number")
		}
		return int64(n), nil
	case pvdata.KindFloat64:
		n, ok := v.(float64)
		if !ok {
			return nil, errors.New("gwhttp: expected number")
		}
		return n, nil
	case pvdata.KindString:
		str, ok := v.(string)
		if !ok {
			return nil, errors.New("gwhttp: expected string")
		}
		return str, nil
	default:
		return v, nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = js.NewEncoder(w).Encode(v)
}
