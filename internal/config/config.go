// Package config loads the process-wide settings spec.md section 6 lists
// as configuration: connection timeout, beacon period, beacon/ignore
// address lists, auto-beacon flag, broadcast port, server port, TCP
// receive buffer size, and provider name list. It is grounded on
// pkg/od/parser.go's environment-then-file loading style (the teacher
// resolves an EDS path from an argument with an env var fallback) and
// pkg/od/parser_v1.go's use of gopkg.in/ini.v1 for structured static
// configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	pva "github.com/go-pvaccess/pva"
)

// Config holds every setting a pvaserver/pvaclient/pvagateway process
// needs at startup.
type Config struct {
	ConnectionTimeout time.Duration
	BeaconPeriod      time.Duration
	BeaconAddresses   []string
	IgnoreAddresses   []string
	AutoBeacon        bool
	BroadcastPort     int
	ServerPort        int
	TCPReceiveBuffer  int
	Providers         []string
}

// Default returns the sensible-defaults Config spec.md section 6 promises
// before any environment variable or file is consulted.
func Default() Config {
	return Config{
		ConnectionTimeout: 30 * time.Second,
		BeaconPeriod:      15 * time.Second,
		BeaconAddresses:   []string{"255.255.255.255"},
		IgnoreAddresses:   nil,
		AutoBeacon:        true,
		BroadcastPort:     pva.DefaultUDPPort,
		ServerPort:        pva.DefaultTCPPort,
		TCPReceiveBuffer:  pva.DefaultTCPReceiveBufferSize,
		Providers:         nil,
	}
}

// env variable names, matching the PVA_ prefix convention real pvAccess
// deployments use for EPICS_PVA_* settings.
const (
	envConnectionTimeout = "PVA_CONNECTION_TIMEOUT"
	envBeaconPeriod      = "PVA_BEACON_PERIOD"
	envBeaconAddrList    = "PVA_BEACON_ADDR_LIST"
	envIgnoreAddrList    = "PVA_IGNORE_ADDR_LIST"
	envAutoBeacon        = "PVA_AUTO_BEACON_ADDR_LIST"
	envBroadcastPort     = "PVA_BROADCAST_PORT"
	envServerPort        = "PVA_SERVER_PORT"
	envTCPReceiveBuffer  = "PVA_TCP_RECEIVE_BUFFER"
	envProviders         = "PVA_PROVIDER_NAMES"
)

// FromEnviron starts from Default and overrides whatever of the above
// environment variables are set. A malformed value is ignored and the
// default for that one field is kept.
func FromEnviron() Config {
	cfg := Default()

	if v := os.Getenv(envConnectionTimeout); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.ConnectionTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv(envBeaconPeriod); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.BeaconPeriod = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv(envBeaconAddrList); v != "" {
		cfg.BeaconAddresses = splitList(v)
	}
	if v := os.Getenv(envIgnoreAddrList); v != "" {
		cfg.IgnoreAddresses = splitList(v)
	}
	if v := os.Getenv(envAutoBeacon); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoBeacon = b
		}
	}
	if v := os.Getenv(envBroadcastPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.BroadcastPort = p
		}
	}
	if v := os.Getenv(envServerPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = p
		}
	}
	if v := os.Getenv(envTCPReceiveBuffer); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TCPReceiveBuffer = n
		}
	}
	if v := os.Getenv(envProviders); v != "" {
		cfg.Providers = splitList(v)
	}
	return cfg
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFile layers an ini-format file (server listen addresses, provider
// list, timeouts — the protocol's equivalent of an EDS file) on top of
// base, the way pkg/od/parser_v1.go layers an EDS file on top of a
// NewOD() default. Keys not present in the file leave base's value
// untouched.
func LoadFile(base Config, path string) (Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return base, err
	}
	cfg := base
	sec := f.Section("pva")

	if k := sec.Key("connection_timeout"); k.String() != "" {
		if secs, err := k.Int(); err == nil {
			cfg.ConnectionTimeout = time.Duration(secs) * time.Second
		}
	}
	if k := sec.Key("beacon_period"); k.String() != "" {
		if secs, err := k.Int(); err == nil {
			cfg.BeaconPeriod = time.Duration(secs) * time.Second
		}
	}
	if k := sec.Key("beacon_addr_list"); k.String() != "" {
		cfg.BeaconAddresses = splitList(k.String())
	}
	if k := sec.Key("ignore_addr_list"); k.String() != "" {
		cfg.IgnoreAddresses = splitList(k.String())
	}
	if k := sec.Key("auto_beacon"); k.String() != "" {
		if b, err := k.Bool(); err == nil {
			cfg.AutoBeacon = b
		}
	}
	if k := sec.Key("broadcast_port"); k.String() != "" {
		if p, err := k.Int(); err == nil {
			cfg.BroadcastPort = p
		}
	}
	if k := sec.Key("server_port"); k.String() != "" {
		if p, err := k.Int(); err == nil {
			cfg.ServerPort = p
		}
	}
	if k := sec.Key("tcp_receive_buffer"); k.String() != "" {
		if n, err := k.Int(); err == nil {
			cfg.TCPReceiveBuffer = n
		}
	}
	if k := sec.Key("providers"); k.String() != "" {
		cfg.Providers = splitList(k.String())
	}
	return cfg, nil
}
