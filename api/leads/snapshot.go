package leads

import (
	"time"

	"github.com/malbeclabs/calldash/api/crm"
)

// Snapshot is a complete point-in-time copy of the record set. It is shared read-only.
type Snapshot struct {
	Records    []Record
	Raw        []crm.Record
	CapturedAt time.Time
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Find returns the record with the given id.
func (s *Snapshot) Find(id string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	for _, r := range s.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}
