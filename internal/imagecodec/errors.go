package imagecodec

import "fmt"

type Kind int

const (
	Malformed Kind = iota + 1
	UnsupportedFormat
	TooSmall
	TooLarge
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case UnsupportedFormat:
		return "unsupported format"
	case TooSmall:
		return "too small"
	case TooLarge:
		return "too large"
	default:
		return "unknown"
	}
}

// DecodeError reports why a payload could not become a Raster.
type DecodeError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, &DecodeError{Kind: TooSmall}).
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}
