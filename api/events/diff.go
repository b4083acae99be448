package events

import "github.com/malbeclabs/calldash/api/leads"

// Diff compares two record sets by id and returns the resulting events in the order
// of next. A record yields at most one category: a status change takes priority over
// a new call. Records missing from next produce nothing.
func Diff(prev, next []leads.Record) []ChangeEvent {
	byID := make(map[string]*leads.Record, len(prev))
	for i := range prev {
		byID[prev[i].ID] = &prev[i]
	}

	var out []ChangeEvent
	for _, rec := range next {
		old, ok := byID[rec.ID]
		switch {
		case !ok:
			out = append(out, ChangeEvent{
				Type:      TypeNewLead,
				ID:        rec.ID,
				Name:      rec.Name,
				NewStatus: rec.Status,
				AgentName: rec.AgentName,
			})
		case old.Status != rec.Status:
			out = append(out, ChangeEvent{
				Type:      TypeStatusChange,
				ID:        rec.ID,
				Name:      rec.Name,
				OldStatus: old.Status,
				NewStatus: rec.Status,
				AgentName: rec.AgentName,
			})
			if rec.Status == leads.StatusBooked {
				out = append(out, ChangeEvent{
					Type:            TypeAppointmentBooked,
					ID:              rec.ID,
					Name:            rec.Name,
					AgentName:       rec.AgentName,
					AppointmentDate: rec.AppointmentDate,
				})
			}
		case old.LastCallDate != rec.LastCallDate:
			out = append(out, ChangeEvent{
				Type:         TypeNewCall,
				ID:           rec.ID,
				Name:         rec.Name,
				Outcome:      rec.Outcome,
				AgentName:    rec.AgentName,
				LastCallDate: rec.LastCallDate,
			})
		}
	}
	return out
}
