package serialmux

import "io"

// SerialPorter is the part of a serial port the mux needs. Tests and the
// simulator provide their own implementations.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
