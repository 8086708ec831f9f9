// Package device describes the hardware a script can reach through the native
// table, and provides Sim, an in-memory board for hosts without real pins.
package device

import "errors"

// Pin modes accepted by PinMode.
const (
	Input       int32 = 0
	Output      int32 = 1
	InputPullup int32 = 2
)

var ErrNoFilesystem = errors.New("device: no filesystem root configured")

// Device is the capability surface behind the native functions. Every method
// is synchronous; Sleep may block the calling goroutine.
type Device interface {
	PinMode(pin, mode int32)
	DigitalWrite(pin, level int32)
	DigitalRead(pin int32) int32

	Sleep(ms int32)
	Millis() int32

	AnalogRead(pin int32) int32
	AnalogWrite(pin, duty int32)

	UARTBegin(baud int32)
	// UARTWrite returns the number of bytes written.
	UARTWrite(b byte) int32
	// UARTRead returns -1 when no byte is available.
	UARTRead() int32

	I2CBegin(clock int32)
	// I2CWrite returns 0 on success, like Wire.endTransmission.
	I2CWrite(addr, reg, val int32) int32
	// I2CRead returns -1 when the device does not answer.
	I2CRead(addr, reg int32) int32

	SPIBegin()
	SPITransfer(b byte) int32

	WriteFile(path, data string) error
	ReadFile(path string) (string, error)

	// Yield raises the cooperative scheduling flag for the host.
	Yield()
}
