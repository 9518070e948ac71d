package dessmon

import (
	"fmt"
	"time"
)

// Device identifies one inverter on the DESS Monitor platform. All four
// fields are required by the control API.
type Device struct {
	PN      string
	SN      string
	Devcode string
	Devaddr string
}

// OutputPriority selects which source the inverter feeds the load from first.
type OutputPriority int

const (
	// PrioritySolar uses solar first, falling back to the grid
	PrioritySolar OutputPriority = 1

	// PrioritySBU (solar-battery-utility) uses battery before the grid
	PrioritySBU OutputPriority = 2
)

func (p OutputPriority) String() string {
	switch p {
	case PrioritySolar:
		return "SOLAR"
	case PrioritySBU:
		return "SBU"
	default:
		return fmt.Sprintf("OutputPriority(%d)", int(p))
	}
}

// CtrlValue is the decoded reply to a control-field query
type CtrlValue struct {
	ID    string `json:"id"`
	Value string `json:"val"`
}

// DeviceControl is the control surface of the vendor cloud
type DeviceControl interface {
	WithTimeout(d time.Duration) DeviceControl
	WithAccount(username, password string) DeviceControl
	WithSession(token, secret string) DeviceControl
	OutputPriority() (*CtrlValue, error)
	SetOutputPriority(p OutputPriority) error
}
