package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/malbeclabs/calldash/api/leads"
)

// Columns is the header row of the export.
var Columns = []string{
	"ID", "Name", "Phone", "Email", "Address", "Status", "Outcome", "Agent",
	"Last Call Date", "Duration", "Attempts", "Appointment Date", "Notes",
}

// WriteCSV renders records as RFC 4180 CSV with a header row.
func WriteCSV(w io.Writer, records []leads.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Name,
			r.Phone,
			r.Email,
			r.Address,
			r.Status,
			r.Outcome,
			r.AgentName,
			r.LastCallDate,
			strconv.FormatFloat(r.ProbedDuration, 'f', -1, 64),
			strconv.Itoa(r.Attempts),
			r.AppointmentDate,
			r.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
