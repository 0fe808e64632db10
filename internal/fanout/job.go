package fanout

import (
	"time"

	"github.com/google/uuid"
)

// Delivery is one (job, recipient) pair, the unit the worker pool
// dequeues — "each worker takes ONE (job, recipient) pair at a time so slow
// destinations do not block others" (§4.G).
type Delivery struct {
	JobID           uuid.UUID
	ActivityJSON    []byte
	OriginDomain    string
	RecipientDomain string
	RecipientInbox  string
	Attempt         int
	NextDue         time.Time
}

// backoffSeconds implements §4.G's "min(60 * 2^attempt, 3600)".
func backoffSeconds(attempt int) time.Duration {
	seconds := 60 * (1 << attempt)
	if seconds > 3600 {
		seconds = 3600
	}
	return time.Duration(seconds) * time.Second
}

// maxAttempts is the cap named in §4.G: "capped at 6 attempts, then drop".
const maxAttempts = 6
