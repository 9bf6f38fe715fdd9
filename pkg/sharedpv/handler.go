package sharedpv

import pva "github.com/go-pvaccess/pva"

// Handler is the four-entry-point contract SharedPV invokes its owner
// through: connection lifecycle notifications plus the put/rpc plumbing.
// Every entry point is called without the PV's mutex held (spec.md
// section 4.E, "Locking discipline").
type Handler interface {
	// OnFirstConnect fires once, when the first channel is created
	// against this PV.
	OnFirstConnect(pv *SharedPV)
	// OnLastDisconnect fires when the last channel goes away. It may
	// call Close.
	OnLastDisconnect(pv *SharedPV)
	// OnPut is called for every put operation; the handler must
	// eventually call op.Complete.
	OnPut(pv *SharedPV, op *PutOperation)
	// OnRPC is called for every RPC operation; the handler must
	// eventually call op.Complete.
	OnRPC(pv *SharedPV, op *RPCOperation)
}

// DefaultHandler completes every put and RPC with an unsupported-access
// status and ignores connect/disconnect notifications. Embed it to pick
// up just the entry points you don't want to implement.
type DefaultHandler struct{}

func (DefaultHandler) OnFirstConnect(*SharedPV)  {}
func (DefaultHandler) OnLastDisconnect(*SharedPV) {}

func (DefaultHandler) OnPut(_ *SharedPV, op *PutOperation) {
	op.Complete(pva.StatusOf(pva.ErrUnsupported))
}

func (DefaultHandler) OnRPC(_ *SharedPV, op *RPCOperation) {
	op.Complete(pva.StatusOf(pva.ErrUnsupported), nil)
}

// readOnlyHandler is identical to DefaultHandler; it exists as a distinct
// type so NewReadOnly's intent reads clearly at the call site.
type readOnlyHandler struct{ DefaultHandler }

// mailboxHandler posts whatever a put operation carries straight into the
// cache and completes it; RPC stays unsupported.
type mailboxHandler struct{ DefaultHandler }

func (mailboxHandler) OnPut(pv *SharedPV, op *PutOperation) {
	status := pva.StatusOf(pv.Post(op.Value(), op.Changed()))
	op.Complete(status)
}
