package errors

// Wrap provides a convenience helper to wrap errors with consistent Op and
// Code propagation. If err is nil, returns nil.
func Wrap(err error, op Operation, code ErrorCode) error {
	if err == nil {
		return nil
	}
	return New(op, code, err)
}

// WrapComponent wraps an error with Op, Code and Component information.
// If err is nil, returns nil.
func WrapComponent(err error, op Operation, code ErrorCode, component string) error {
	if err == nil {
		return nil
	}
	return NewWithComponent(op, code, component, err)
}
