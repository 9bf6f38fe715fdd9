package sharedpv

import (
	"github.com/go-pvaccess/pva/internal/fifo"
	"github.com/go-pvaccess/pva/pkg/pvdata"
)

// defaultMonitorQueueDepth bounds a monitor's FIFO before the congestion
// window configuration (drop-on-full vs. stop-posting) takes over.
const defaultMonitorQueueDepth = 16

type monitorEntry struct {
	sub   MonitorSubscriber
	queue *fifo.FIFO[*pvdata.PVStructure]
}
