package call

// Phase is the call-session phase. At most one session exists at a time and
// its phase only moves forward through the transition table in fsm.go.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRegistering
	PhaseRegistered
	PhaseIncoming
	PhaseOutgoing
	PhaseActive
	PhaseTransferring
	PhaseTerminating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseRegistering:
		return "Registering"
	case PhaseRegistered:
		return "Registered"
	case PhaseIncoming:
		return "Incoming"
	case PhaseOutgoing:
		return "Outgoing"
	case PhaseActive:
		return "Active"
	case PhaseTransferring:
		return "Transferring"
	case PhaseTerminating:
		return "Terminating"
	default:
		return "Unknown"
	}
}

// Direction of the call relative to the local user.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)
