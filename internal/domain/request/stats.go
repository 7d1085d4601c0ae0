package request

// Statistics is the request dashboard aggregate.
type Statistics struct {
	TotalRequests          int           `json:"total_requests"`
	ByStatus               StatusCounts  `json:"by_status"`
	UrgentRequests         int           `json:"urgent_requests"`
	RequestsByCity         []Count       `json:"requests_by_city"`
	RequestsByBloodGroup   []Count       `json:"requests_by_blood_group"`
	RequestsByUrgencyLevel []Count       `json:"requests_by_urgency_level"`
	Summary                StatusSummary `json:"summary"`
}

type StatusCounts struct {
	Pending            int `json:"pending"`
	Active             int `json:"active"`
	PartiallyFulfilled int `json:"partially_fulfilled"`
	Fulfilled          int `json:"fulfilled"`
	Expired            int `json:"expired"`
	Cancelled          int `json:"cancelled"`
}

type StatusSummary struct {
	ActiveRequests    int `json:"active_requests"`
	CompletedRequests int `json:"completed_requests"`
	FailedRequests    int `json:"failed_requests"`
}

// NewStatusCounts folds a per-status map into StatusCounts and returns the
// total alongside.
func NewStatusCounts(m map[Status]int) (StatusCounts, int) {
	c := StatusCounts{
		Pending:            m[StatusPending],
		Active:             m[StatusActive],
		PartiallyFulfilled: m[StatusPartiallyFulfilled],
		Fulfilled:          m[StatusFulfilled],
		Expired:            m[StatusExpired],
		Cancelled:          m[StatusCancelled],
	}
	total := 0
	for _, n := range m {
		total += n
	}
	return c, total
}

func (c StatusCounts) Summary() StatusSummary {
	return StatusSummary{
		ActiveRequests:    c.Pending + c.Active + c.PartiallyFulfilled,
		CompletedRequests: c.Fulfilled,
		FailedRequests:    c.Expired + c.Cancelled,
	}
}
