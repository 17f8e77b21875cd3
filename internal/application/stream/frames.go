package stream

// Frame kinds. Every feed ends with exactly one of answer, error, or
// cancelled; progress frames are advisory.
const (
	FrameProgress  = "progress"
	FrameAnswer    = "answer"
	FrameError     = "error"
	FrameCancelled = "cancelled"
)

// Frame is one message pushed to the caller during a run.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// FrameWriter delivers frames to the caller. The HTTP API implements it
// over a flushed server-sent-events response; tests implement it over a
// slice.
type FrameWriter interface {
	WriteFrame(frame Frame) error
}

func terminal(kind string) bool {
	return kind == FrameAnswer || kind == FrameError || kind == FrameCancelled
}
