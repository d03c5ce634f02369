// Package gpio provides digital input and output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// IO reads the controller's inputs and drives its lamp outputs.
type IO interface {
	// Read returns the logical level of an input line.
	// Inputs are pulled up and idle high: raw low = logical active (true).
	Read(line int) (bool, error)

	// Write drives an output line. true = lamp on.
	Write(line int, on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default input lines (BCM numbering)
const (
	DefaultPinPedestrian         = 17 // Pedestrian push button
	DefaultPinVehicle            = 27 // Secondary road vehicle loop
	DefaultPinAmbulancePrimary   = 22
	DefaultPinAmbulanceSecondary = 23
)

// Default output lines (BCM numbering)
const (
	DefaultPinPrimaryGreen    = 5
	DefaultPinPrimaryYellow   = 6
	DefaultPinPrimaryRed      = 13
	DefaultPinSecondaryGreen  = 19
	DefaultPinSecondaryYellow = 26
	DefaultPinSecondaryRed    = 21
	DefaultPinPedestrianRed   = 20
	DefaultPinPedestrianGreen = 16
)
