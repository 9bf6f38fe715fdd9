package sharedpv

import (
	"github.com/go-pvaccess/pva/pkg/pvdata"

	pva "github.com/go-pvaccess/pva"
)

// PutOperation carries a single put request through the handler.
type PutOperation struct {
	pv      *SharedPV
	value   *pvdata.PVStructure
	changed *pvdata.BitSet
	done    func(pva.Status)
}

func (op *PutOperation) Value() *pvdata.PVStructure { return op.value }
func (op *PutOperation) Changed() *pvdata.BitSet     { return op.changed }

// Complete finishes the operation. The handler contract requires every
// OnPut to call this exactly once.
func (op *PutOperation) Complete(status pva.Status) {
	if op.done != nil {
		op.done(status)
	}
}

// RPCOperation carries a single RPC request through the handler.
type RPCOperation struct {
	pv   *SharedPV
	args *pvdata.PVStructure
	done func(pva.Status, *pvdata.PVStructure)
}

func (op *RPCOperation) Args() *pvdata.PVStructure { return op.args }

// Complete finishes the operation. The handler contract requires every
// OnRPC to call this exactly once.
func (op *RPCOperation) Complete(status pva.Status, result *pvdata.PVStructure) {
	if op.done != nil {
		op.done(status, result)
	}
}
