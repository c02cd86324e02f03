package jobengine

import "errors"

// PermanentError marks a handler failure that must not be retried: the job
// transitions straight to failed regardless of remaining attempts. Handlers
// wrap semantic payload rejections with Permanent; transport and upstream
// errors stay retryable by default.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as non-retryable. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
