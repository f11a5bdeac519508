package source

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the SBUS line rate.
const DefaultBaudRate = 100000

// SerialMode returns the SBUS line settings: 8 data bits, even parity,
// 2 stop bits. A baud of 0 selects DefaultBaudRate.
func SerialMode(baud int) *serial.Mode {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.TwoStopBits,
	}
}

// OpenSerial opens a UART for SBUS and wraps it in a Buffered source.
// Stale bytes in the driver input buffer are discarded.
func OpenSerial(path string, baud int) (*Buffered, serial.Port, error) {
	port, err := serial.Open(path, SerialMode(baud))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err = port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("reset %s: %w", path, err)
	}
	// a read timeout lets the read loop observe Close promptly.
	if err = port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("set timeout %s: %w", path, err)
	}
	return NewBuffered(port), port, nil
}
