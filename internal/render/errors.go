package render

import (
	"errors"
	"fmt"

	dErrors "certifier/pkg/domain-errors"
)

// Kind classifies a render failure so the caller can decide on recovery.
type Kind string

const (
	KindAssetUnavailable Kind = "AssetUnavailable"
	KindInvalidTemplate  Kind = "InvalidTemplate"
	KindInternal         Kind = "Internal"
)

// Error is returned by the renderer for every failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render failed (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("render failed (%s): %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the render failure kind carried by err, or "" if err is not a
// render error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsAssetUnavailable reports whether err is a retriable asset fetch failure.
func IsAssetUnavailable(err error) bool {
	return KindOf(err) == KindAssetUnavailable
}

// ToDomain converts a render failure into the domain error recorded on the
// credential: invalid templates are input errors, everything else RenderFailed.
func ToDomain(err error) error {
	switch KindOf(err) {
	case KindInvalidTemplate:
		return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	case "":
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeRenderFailed, err.Error())
	}
}
