package events

type Type string

const (
	TypeConnected         Type = "connected"
	TypeNewLead           Type = "new_lead"
	TypeStatusChange      Type = "status_change"
	TypeNewCall           Type = "new_call"
	TypeAppointmentBooked Type = "appointment_booked"
)

// ChangeEvent describes one change between two snapshots. Only the fields relevant
// to the event type are set.
type ChangeEvent struct {
	Type            Type   `json:"type"`
	ID              string `json:"id,omitempty"`
	Name            string `json:"name,omitempty"`
	OldStatus       string `json:"oldStatus,omitempty"`
	NewStatus       string `json:"newStatus,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
	AgentName       string `json:"agentName,omitempty"`
	LastCallDate    string `json:"lastCallDate,omitempty"`
	AppointmentDate string `json:"appointmentDate,omitempty"`
}
