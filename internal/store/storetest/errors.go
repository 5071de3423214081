package storetest

import "errors"

var (
	errNotFound   = errors.New("record not found")
	errNotStarted = errors.New("operation is not in started state")
)
