package pva

// StatusType mirrors the severity levels carried on the wire inside a
// Status: every operation completion (get/put/monitor/rpc) and the
// CONNECTION_VALIDATED handshake message carry one of these.
type StatusType uint8

const (
	StatusOK StatusType = iota
	StatusWarning
	StatusError
	StatusFatal
)

var statusTypeNames = map[StatusType]string{
	StatusOK:      "OK",
	StatusWarning: "WARNING",
	StatusError:   "ERROR",
	StatusFatal:   "FATAL",
}

func (t StatusType) String() string {
	if name, ok := statusTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Status is the serialized success/failure envelope used throughout the
// protocol: CONNECTION_VALIDATED, and the completion of every get/put/
// monitor/rpc/process operation.
type Status struct {
	Type    StatusType
	Message string
	// StackTrace is optional extra diagnostic text, mirrors the source
	// Status message/stackDump pair.
	StackTrace string
}

// StatusOf builds an error Status from a Go error, or an OK Status when
// err is nil.
func StatusOf(err error) Status {
	if err == nil {
		return Status{Type: StatusOK}
	}
	return Status{Type: StatusError, Message: err.Error()}
}

func (s Status) IsOK() bool {
	return s.Type == StatusOK || s.Type == StatusWarning
}

func (s Status) Error() string {
	if s.Message == "" {
		return s.Type.String()
	}
	return s.Type.String() + ": " + s.Message
}
