package metrics

// Label values shared by the collectors.
const (
	SideWrite = "write"
	SideRead  = "read"

	StatusSuccess   = "success"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// Operation names recorded through Recorder.
const (
	OpProduce   = "produce"
	OpConsume   = "consume"
	OpCalibrate = "calibrate"
	OpForward   = "forward"
	OpEncode    = "encode"
	OpDecode    = "decode"
)

// Lifecycle status values for create and delete.
const (
	StatusInvalidParam  = "invalid_param"
	StatusInvalidHandle = "invalid_handle"
	StatusNoMemory      = "no_memory"
)
