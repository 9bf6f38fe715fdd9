// Command pvaserver hosts a fixed set of process variables and answers
// the pvAccess wire protocol over TCP: a flag-configured network
// endpoint backed by one in-process object graph, no subcommands, no
// daemon framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-pvaccess/pva/internal/config"
	"github.com/go-pvaccess/pva/pkg/discovery"
	"github.com/go-pvaccess/pva/pkg/gwhttp"
	"github.com/go-pvaccess/pva/pkg/metrics"
	"github.com/go-pvaccess/pva/pkg/provider"
	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/sharedpv"
	"github.com/go-pvaccess/pva/pkg/transport"
)

func main() {
	log.SetLevel(log.DebugLevel)

	configPath := flag.String("config", "", "ini config file layered over environment defaults")
	httpAddr := flag.String("http", ":8080", "debug/metrics HTTP listen address")
	flag.Parse()

	cfg := config.FromEnviron()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(cfg, *configPath)
		if err != nil {
			panic(err)
		}
	}

	reg := provider.NewRegistry()
	sp := provider.NewStaticProvider("pvaserver")
	names := cfg.Providers
	if len(names) == 0 {
		names = []string{"demo:counter"}
	}
	for _, name := range names {
		sp.Add(name, newDemoPV())
	}
	reg.Register(sp)

	collector := metrics.NewCollector()
	prometheus.MustRegister(collector)

	gw := gwhttp.New(reg, collector.Snapshot)
	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	httpMux.Handle("/", gw)
	go func() {
		if err := http.ListenAndServe(*httpAddr, httpMux); err != nil {
			log.WithError(err).Error("debug http server stopped")
		}
	}()
	log.WithField("addr", *httpAddr).Info("debug http server listening")

	if cfg.AutoBeacon {
		targets := make([]string, 0, len(cfg.BeaconAddresses))
		for _, addr := range cfg.BeaconAddresses {
			targets = append(targets, fmt.Sprintf("%s:%d", addr, cfg.BroadcastPort))
		}
		emitter, err := discovery.NewEmitter(discovery.EmitterConfig{
			ServerPort: uint16(cfg.ServerPort),
			Targets:    targets,
			Period:     cfg.BeaconPeriod,
		})
		if err != nil {
			panic(err)
		}
		go emitter.Run(context.Background())
	}

	responder, err := discovery.NewResponder(fmt.Sprintf(":%d", cfg.BroadcastPort), reg, discovery.ResponderConfig{
		ServerPort: uint16(cfg.ServerPort),
	})
	if err != nil {
		panic(err)
	}
	go func() {
		if err := responder.Serve(); err != nil {
			log.WithError(err).Error("discovery responder stopped")
		}
	}()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		panic(err)
	}
	log.WithField("addr", ln.Addr()).Info("pvaccess server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Error("accept failed")
			continue
		}
		t := transport.New(conn, transport.Config{
			Role:              transport.RoleServer,
			ConnectionTimeout: cfg.ConnectionTimeout,
			RecvBufferSize:    cfg.TCPReceiveBuffer,
			SendBufferSize:    cfg.TCPReceiveBuffer,
		})
		provider.Install(t, reg)
		collector.Track(t)
		t.Start()
		log.WithField("remote", conn.RemoteAddr()).Info("accepted connection")
	}
}

// newDemoPV builds a single-field NTScalar-shaped mailbox PV so a freshly
// started server has something to serve without any external
// configuration.
func newDemoPV() *sharedpv.SharedPV {
	st := &pvdata.Structure{
		ID: "epics:nt/NTScalar:1.0",
		Fields: []pvdata.Field{
			{Name: "value", Type: pvdata.KindFloat64},
		},
	}
	initial := pvdata.NewPVStructure(st)
	initial.Values["value"] = 0.0

	valid := pvdata.NewBitSet(len(st.Fields))
	for i := range st.Fields {
		valid.Set(i)
	}

	pv := sharedpv.NewMailbox(sharedpv.Config{DropOnFull: true})
	if err := pv.Open(initial, valid); err != nil {
		panic(err)
	}
	return pv
}
