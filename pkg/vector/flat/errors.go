package flat

import "errors"

// ErrIndexOutOfRange is returned by Get for a row index outside [0, Len()).
var ErrIndexOutOfRange = errors.New("row index out of range")
