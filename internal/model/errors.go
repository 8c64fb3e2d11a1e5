package model

import "fmt"

type ErrorKind int

const (
	ModelUnavailable ErrorKind = iota + 1
	InferenceFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ModelUnavailable:
		return "model unavailable"
	case InferenceFailed:
		return "inference failed"
	default:
		return "unknown"
	}
}

type DetectionError struct {
	Kind ErrorKind
	Err  error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

func (e *DetectionError) Is(target error) bool {
	t, ok := target.(*DetectionError)
	return ok && t.Kind == e.Kind
}
