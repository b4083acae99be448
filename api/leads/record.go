package leads

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/malbeclabs/calldash/api/crm"
)

// Upstream field names.
const (
	FieldName            = "Name"
	FieldPhone           = "Phone"
	FieldEmail           = "Email"
	FieldAddress         = "Address"
	FieldStatus          = "Status"
	FieldOutcome         = "Call Outcome"
	FieldTranscript      = "Transcript"
	FieldRecordingURL    = "Recording URL"
	FieldDuration        = "Call Duration"
	FieldAttempts        = "Attempts"
	FieldLastCallDate    = "Last Call Date"
	FieldAppointmentDate = "Appointment Date"
	FieldNotes           = "Notes"
	FieldSummary         = "Summary"
	FieldAgentID         = "Agent ID"
)

const (
	StatusNew           = "New"
	StatusContacted     = "Contacted"
	StatusBooked        = "Booked"
	StatusCallback      = "Callback"
	StatusNotInterested = "Not Interested"
	StatusDoNotCall     = "Do Not Call"
)

const (
	OutcomeBooked            = "Booked"
	OutcomeVoicemail         = "Voicemail"
	OutcomeNoAnswer          = "No Answer"
	OutcomeNotInterested     = "Not Interested"
	OutcomeCallbackRequested = "Callback Requested"
	OutcomeWrongNumber       = "Wrong Number"
	OutcomeBusy              = "Busy"
)

// UnknownAgent is the display name for records with no agent id.
const UnknownAgent = "Unknown"

// Record is a normalized lead. Records are never mutated once part of a snapshot.
type Record struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	Email           string  `json:"email"`
	Address         string  `json:"address"`
	Status          string  `json:"status"`
	Outcome         string  `json:"outcome"`
	Transcript      string  `json:"transcript"`
	RecordingURL    string  `json:"recordingUrl"`
	Notes           string  `json:"notes"`
	Summary         string  `json:"summary"`
	AgentID         string  `json:"agentId"`
	AgentName       string  `json:"agentName"`
	LastCallDate    string  `json:"lastCallDate"`
	AppointmentDate string  `json:"appointmentDate"`
	CreatedTime     string  `json:"createdTime"`
	Duration        float64 `json:"duration"`
	Attempts        int     `json:"attempts"`
	ProbedDuration  float64 `json:"probedDuration"`

	Raw map[string]any `json:"-"`
}

// NeedsProbe reports whether the duration has to be inferred from the recording.
func (r Record) NeedsProbe() bool {
	return r.RecordingURL != "" && r.Duration <= 0
}

// Normalize maps an upstream record onto Record. Missing text fields become "" and
// missing numbers 0. agents resolves agent ids to display names.
func Normalize(raw crm.Record, agents map[string]string) Record {
	f := raw.Fields
	rec := Record{
		ID:              raw.ID,
		Name:            text(f, FieldName),
		Phone:           text(f, FieldPhone),
		Email:           text(f, FieldEmail),
		Address:         text(f, FieldAddress),
		Status:          text(f, FieldStatus),
		Outcome:         text(f, FieldOutcome),
		Transcript:      text(f, FieldTranscript),
		RecordingURL:    recordingURL(f[FieldRecordingURL]),
		Notes:           text(f, FieldNotes),
		Summary:         text(f, FieldSummary),
		AgentID:         text(f, FieldAgentID),
		LastCallDate:    text(f, FieldLastCallDate),
		AppointmentDate: text(f, FieldAppointmentDate),
		CreatedTime:     raw.CreatedTime,
		Duration:        number(f, FieldDuration),
		Attempts:        int(number(f, FieldAttempts)),
		Raw:             f,
	}
	rec.AgentName = agentName(rec.AgentID, agents)
	if rec.Duration > 0 {
		rec.ProbedDuration = rec.Duration
	}
	return rec
}

func agentName(id string, agents map[string]string) string {
	if name := agents[id]; name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return UnknownAgent
}

func text(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func number(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0
		}
		return n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// recordingURL accepts a plain url or an attachment list, taking the first attachment.
func recordingURL(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		if len(v) == 0 {
			return ""
		}
		if att, ok := v[0].(map[string]any); ok {
			if u, ok := att["url"].(string); ok {
				return u
			}
		}
	}
	return ""
}
