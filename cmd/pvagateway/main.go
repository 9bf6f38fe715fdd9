// Command pvagateway runs only the HTTP introspection gateway against a
// fixed demo channel set: one flag-configured network endpoint, no
// pvAccess TCP listener alongside it. Use cmd/pvaserver instead when the
// pvAccess wire protocol itself needs to be served.
package main

import (
	"flag"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/go-pvaccess/pva/pkg/gwhttp"
	"github.com/go-pvaccess/pva/pkg/provider"
	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/sharedpv"
)

var defaultHTTPPort = 8090

func main() {
	log.SetLevel(log.DebugLevel)
	addr := flag.String("addr", fmt.Sprintf(":%d", defaultHTTPPort), "HTTP listen address")
	channelName := flag.String("channel", "demo:counter", "name of the single demo channel this gateway serves")
	flag.Parse()

	reg := provider.NewRegistry()
	sp := provider.NewStaticProvider("pvagateway")
	sp.Add(*channelName, newDemoPV())
	reg.Register(sp)

	gw := gwhttp.New(reg, nil)
	log.WithField("addr", *addr).Info("gateway listening")
	if err := http.ListenAndServe(*addr, gw); err != nil {
		panic(err)
	}
}

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

	pv := sharedpv.NewMailbox(sharedpv.Config{})
	if err := pv.Open(initial, valid); err != nil {
		panic(err)
	}
	return pv
}
