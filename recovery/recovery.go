package recovery

// Strategy decides how an operation reacts to a recoverable defect in the
// file being read. Resource and I/O failures never reach a Strategy; they
// always abort the operation.
type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

// Location pinpoints where a defect was found.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

type Context interface{ Done() <-chan struct{} }
