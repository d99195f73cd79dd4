package queue

import "github.com/mchuluq/whatsapp-microservice/pkg/kernel"

// Stats are the live counts of one unit's jobs. Total covers jobs still
// owed work: waiting + active + delayed.
type Stats struct {
	UnitID    kernel.UnitID `json:"unitId"`
	Waiting   int           `json:"waiting"`
	Active    int           `json:"active"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Delayed   int           `json:"delayed"`
	Total     int           `json:"total"`
}

func newStats(unitID kernel.UnitID, c Counts) Stats {
	return Stats{
		UnitID:    unitID,
		Waiting:   c.Waiting,
		Active:    c.Active,
		Completed: c.Completed,
		Failed:    c.Failed,
		Delayed:   c.Delayed,
		Total:     c.Total(),
	}
}
