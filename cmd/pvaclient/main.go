// Command pvaclient is a minimal get/put/monitor/rpc CLI against a
// pvaserver process: one TCP connection, one channel, one or more
// requests, plain fmt output. Flag-parsed subcommands, no CLI framework.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/go-pvaccess/pva/pkg/codec"
	"github.com/go-pvaccess/pva/pkg/transport"

	pva "github.com/go-pvaccess/pva"
)

func main() {
	log.SetLevel(log.InfoLevel)
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "get":
		runGet(os.Args[2:])
	case "put":
		runPut(os.Args[2:])
	case "monitor":
		runMonitor(os.Args[2:])
	case "rpc":
		runRPC(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pvaclient <get|put|monitor|rpc> -addr host:port -channel name [field=value ...]")
}

// client wraps one connected, channel-open Transport and the in-flight
// request bookkeeping every subcommand needs: a reply channel per
// outstanding ioid, keyed the same way the server keys Operations.
type client struct {
	t   *transport.Transport
	sid uint32

	mu       sync.Mutex
	nextIOID uint32
	pending  map[uint32]chan reply
	monitors map[uint32]*monitorSession
}

type reply struct {
	status string
	fields map[string]string
}

// monitorSession tracks one MONITOR subscription's wire state: the
// server answers the INIT subcommand with a status-only ack (handled by
// provider.handleMonitor's replyStatusOnly) and every later push carries
// a snapshot of the fields that update changed, or of every field when it
// names none (monitorSub.Notify) — both arrive tagged with the same
// CmdMonitor command, so the client has to remember whether it has seen
// the ack yet to know which shape to expect next.
type monitorSession struct {
	acked   bool
	ack     chan reply
	updates chan reply
}

func dial(addr, channelName string) (*client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	t := transport.New(conn, transport.Config{Role: transport.RoleClient})

	c := &client{t: t, pending: make(map[uint32]chan reply), monitors: make(map[uint32]*monitorSession)}
	t.SetHandler(pva.CmdGet, c.handleReply(pva.CmdGet))
	t.SetHandler(pva.CmdPut, c.handleReply(pva.CmdPut))
	t.SetHandler(pva.CmdRPC, c.handleReply(pva.CmdRPC))
	t.SetHandler(pva.CmdMonitor, c.handleMonitorUpdate)

	createDone := make(chan struct {
		sid    uint32
		status string
	}, 1)
	t.SetHandler(pva.CmdCreateChannel, func(t *transport.Transport, h codec.Header) error {
		r := t.Reader()
		if _, err := r.GetUint32(); err != nil { // cid, echoed back
			return err
		}
		sid, err := r.GetUint32()
		if err != nil {
			return err
		}
		status, err := readStatus(r)
		if err != nil {
			return err
		}
		createDone <- struct {
			sid    uint32
			status string
		}{sid, status}
		return nil
	})

	t.Start()
	t.WaitVerified()

	const cid = 1
	t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdCreateChannel); err != nil {
			return err
		}
		if err := w.PutUint32(cid); err != nil {
			return err
		}
		return putSizedString(w, channelName)
	}))

	result := <-createDone
	if result.status != "" {
		t.Close(true)
		return nil, fmt.Errorf("pvaclient: create channel %q: %s", channelName, result.status)
	}
	c.sid = result.sid
	return c, nil
}

func (c *client) handleReply(command byte) transport.HandlerFunc {
	return func(t *transport.Transport, h codec.Header) error {
		r := t.Reader()
		ioid, err := r.GetUint32()
		if err != nil {
			return err
		}
		status, err := readStatus(r)
		if err != nil {
			return err
		}
		var fields map[string]string
		if status == "" && command != pva.CmdPut {
			fields, err = readSnapshot(r)
			if err != nil {
				return err
			}
		}
		c.mu.Lock()
		ch, ok := c.pending[ioid]
		delete(c.pending, ioid)
		c.mu.Unlock()
		if ok {
			ch <- reply{status: status, fields: fields}
		}
		return nil
	}
}

func (c *client) handleMonitorUpdate(t *transport.Transport, h codec.Header) error {
	r := t.Reader()
	ioid, err := r.GetUint32()
	if err != nil {
		return err
	}
	status, err := readStatus(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sess, ok := c.monitors[ioid]
	wasAcked := ok && sess.acked
	if ok {
		sess.acked = true
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if !wasAcked {
		sess.ack <- reply{status: status}
		return nil
	}

	var fields map[string]string
	if status == "" {
		fields, err = readSnapshot(r)
		if err != nil {
			return err
		}
	}
	sess.updates <- reply{status: status, fields: fields}
	return nil
}

func (c *client) allocIOID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextIOID++
	return c.nextIOID
}

func (c *client) get() (map[string]string, error) {
	ioid := c.allocIOID()
	ch := make(chan reply, 1)
	c.mu.Lock()
	c.pending[ioid] = ch
	c.mu.Unlock()

	c.t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdGet); err != nil {
			return err
		}
		if err := w.PutUint32(c.sid); err != nil {
			return err
		}
		if err := w.PutUint32(ioid); err != nil {
			return err
		}
		return putSizedString(w, "")
	}))

	r := <-ch
	if r.status != "" {
		return nil, fmt.Errorf("pvaclient: get: %s", r.status)
	}
	return r.fields, nil
}

func (c *client) put(fields map[string]string) error {
	ioid := c.allocIOID()
	ch := make(chan reply, 1)
	c.mu.Lock()
	c.pending[ioid] = ch
	c.mu.Unlock()

	c.t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdPut); err != nil {
			return err
		}
		if err := w.PutUint32(c.sid); err != nil {
			return err
		}
		if err := w.PutUint32(ioid); err != nil {
			return err
		}
		if err := putSizedString(w, ""); err != nil {
			return err
		}
		return writeSnapshot(w, fields)
	}))

	r := <-ch
	if r.status != "" {
		return fmt.Errorf("pvaclient: put: %s", r.status)
	}
	return nil
}

func (c *client) rpc(args map[string]string) (map[string]string, error) {
	ioid := c.allocIOID()
	ch := make(chan reply, 1)
	c.mu.Lock()
	c.pending[ioid] = ch
	c.mu.Unlock()

	c.t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdRPC); err != nil {
			return err
		}
		if err := w.PutUint32(c.sid); err != nil {
			return err
		}
		if err := w.PutUint32(ioid); err != nil {
			return err
		}
		if err := putSizedString(w, ""); err != nil {
			return err
		}
		return writeSnapshot(w, args)
	}))

	r := <-ch
	if r.status != "" {
		return nil, fmt.Errorf("pvaclient: rpc: %s", r.status)
	}
	return r.fields, nil
}

// monitor starts a MONITOR subscription and returns the channel every
// update is delivered on. The subscription itself is never torn down
// explicitly; closing the connection (Ctrl-C) is this CLI's only exit.
func (c *client) monitor() (<-chan reply, error) {
	ioid := c.allocIOID()
	sess := &monitorSession{ack: make(chan reply, 1), updates: make(chan reply, 16)}
	c.mu.Lock()
	c.monitors[ioid] = sess
	c.mu.Unlock()

	const subInit = 0x08
	c.t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdMonitor); err != nil {
			return err
		}
		if err := w.PutUint32(c.sid); err != nil {
			return err
		}
		if err := w.PutUint32(ioid); err != nil {
			return err
		}
		if err := w.PutByte(subInit); err != nil {
			return err
		}
		return putSizedString(w, "")
	}))

	ack := <-sess.ack
	if ack.status != "" {
		return nil, fmt.Errorf("pvaclient: monitor: %s", ack.status)
	}
	return sess.updates, nil
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:5075", "pvaserver address")
	channelName := fs.String("channel", "", "channel name")
	fs.Parse(args)
	if *channelName == "" {
		usage()
		os.Exit(1)
	}

	c, err := dial(*addr, *channelName)
	if err != nil {
		log.WithError(err).Fatal("connect failed")
	}
	fields, err := c.get()
	if err != nil {
		log.WithError(err).Fatal("get failed")
	}
	fmt.Println(formatFields(fields))
}

func runPut(args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:5075", "pvaserver address")
	channelName := fs.String("channel", "", "channel name")
	fs.Parse(args)
	if *channelName == "" {
		usage()
		os.Exit(1)
	}
	assignments := parseAssignments(fs.Args())
	if len(assignments) == 0 {
		fmt.Fprintln(os.Stderr, "pvaclient put: no field=value assignments given")
		os.Exit(1)
	}

	c, err := dial(*addr, *channelName)
	if err != nil {
		log.WithError(err).Fatal("connect failed")
	}
	if err := c.put(assignments); err != nil {
		log.WithError(err).Fatal("put failed")
	}
	fmt.Println("ok")
}

func runRPC(args []string) {
	fs := flag.NewFlagSet("rpc", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:5075", "pvaserver address")
	channelName := fs.String("channel", "", "channel name")
	fs.Parse(args)
	if *channelName == "" {
		usage()
		os.Exit(1)
	}
	argValues := parseAssignments(fs.Args())

	c, err := dial(*addr, *channelName)
	if err != nil {
		log.WithError(err).Fatal("connect failed")
	}
	result, err := c.rpc(argValues)
	if err != nil {
		log.WithError(err).Fatal("rpc failed")
	}
	fmt.Println(formatFields(result))
}

func runMonitor(args []string) {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:5075", "pvaserver address")
	channelName := fs.String("channel", "", "channel name")
	fs.Parse(args)
	if *channelName == "" {
		usage()
		os.Exit(1)
	}

	c, err := dial(*addr, *channelName)
	if err != nil {
		log.WithError(err).Fatal("connect failed")
	}
	updates, err := c.monitor()
	if err != nil {
		log.WithError(err).Fatal("monitor failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	for {
		select {
		case u := <-updates:
			if u.status != "" {
				fmt.Fprintln(os.Stderr, "monitor error:", u.status)
				return
			}
			fmt.Println(formatFields(u.fields))
		case <-sigCh:
			return
		}
	}
}
