package report

// DefaultDailyJobLimit is the number of report jobs a run may create before
// the quota cutoff applies.
const DefaultDailyJobLimit = 10

// QuotaCounter counts job creations within one orchestration run.
// It is owned by a single Run call and is never decremented.
type QuotaCounter struct {
	limit   int
	created int
}

// NewQuotaCounter returns a counter with the given ceiling.
func NewQuotaCounter(limit int) *QuotaCounter {
	return &QuotaCounter{limit: limit}
}

// Exhausted reports whether the jobs already created exceed the limit.
// The check runs before a chunk is admitted, so a limit of L admits L+1
// creations.
func (q *QuotaCounter) Exhausted() bool {
	return q.created > q.limit
}

// Record counts one successful creation.
func (q *QuotaCounter) Record() {
	q.created++
}

// Created returns the number of recorded creations.
func (q *QuotaCounter) Created() int {
	return q.created
}

// Limit returns the configured ceiling.
func (q *QuotaCounter) Limit() int {
	return q.limit
}
