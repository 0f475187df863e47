package testevents

import "time"

// HTTP status code constants.
const (
	StatusOK              = 200
	StatusAccepted        = 202
	StatusTooManyRequests = 429
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PollInterval         = 500 * time.Millisecond
	PercentageMultiplier = 100
	maxSubmitTries       = 5
	displayLimit         = 10
)

// Journey kinds.
const (
	KindBrowser  = "browser"
	KindResearch = "research"
	KindBuyer    = "buyer"
)
