package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the serial device at path with the given line
// settings and wraps it in a SerialMux.
func NewRealSerialMux(name, path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("invalid %s port options: %w", name, err)
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s port %s: %w", name, path, err)
	}

	return NewSerialMux[serial.Port](port, name), nil
}
