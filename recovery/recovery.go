package recovery

// Strategy decides how the codec reacts to a recoverable defect found in
// the input bytes. Fatal structural errors are never routed through a
// Strategy; only defects with a defined keep-going behavior are.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pinpoints where a defect was observed.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)
