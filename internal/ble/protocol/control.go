// Package protocol defines the wire elements of the Pybricks REPL upload
// over the Nordic UART Service: the single-byte control codes and the
// payload chunker.
package protocol

import "fmt"

// Control is a single-byte REPL control code. Each is written as its own
// one-byte packet.
type Control byte

const (
	// Interrupt (Ctrl+C) stops the running program.
	Interrupt Control = 0x03
	// SoftReboot (Ctrl+D) leaves paste mode and executes the pending input.
	SoftReboot Control = 0x04
	// PasteMode (Ctrl+E) disables the line editor so pasted code keeps its
	// indentation.
	PasteMode Control = 0x05
)

// Packet returns the control code as a standalone packet.
func (c Control) Packet() []byte {
	return []byte{byte(c)}
}

func (c Control) String() string {
	switch c {
	case Interrupt:
		return "interrupt"
	case SoftReboot:
		return "soft-reboot"
	case PasteMode:
		return "paste-mode"
	default:
		return fmt.Sprintf("control(0x%02x)", byte(c))
	}
}
