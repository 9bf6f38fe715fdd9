package sharedpv

import (
	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/pvrequest"

	pva "github.com/go-pvaccess/pva"
)

// ChannelState is delivered to a ChannelSubscriber when the PV it names
// closes (ChannelDisconnected) or is destroyed (ChannelDestroyed); opening
// the PV does not notify channels.
type ChannelState int

const (
	ChannelConnected ChannelState = iota
	ChannelDisconnected
	ChannelDestroyed
)

// ChannelSubscriber is the requester side of a created channel, such as
// pkg/provider's server-side channel, which unhooks itself from the PV on
// these notifications without sending anything to the client.
type ChannelSubscriber interface {
	StateChange(state ChannelState)
}

// PutSubscriber is the requester side of a channel-put operation's
// connect phase.
type PutSubscriber interface {
	Request() pvrequest.Request
	Connect(status pva.Status, structType *pvdata.Structure)
	Disconnect()
}

// RPCSubscriber is the requester side of an RPC operation's connect
// phase.
type RPCSubscriber interface {
	Connect(status pva.Status)
}

// MonitorSubscriber is the requester side of a monitor operation.
type MonitorSubscriber interface {
	Request() pvrequest.Request
	Notify()
	Unlisten()
}

type putEntry struct {
	sub    PutSubscriber
	mapped bool
}

type rpcEntry struct {
	sub       RPCSubscriber
	connected bool
}

type channelEntry struct {
	sub ChannelSubscriber
}
