package model

import "time"

// Job is one asynchronous analysis request carried by the queue.
type Job struct {
	ID          string
	Ticket      uint64
	Image       []byte
	SubmittedAt time.Time
}
