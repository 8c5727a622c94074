package pipeline

import "time"

// Log field constants
const (
	LogFieldEventID   = "event_id"
	LogFieldDedupKey  = "dedup_key"
	LogFieldURL       = "url"
	LogFieldSource    = "source"
	LogFieldState     = "state"
	LogFieldAttempts  = "attempts"
	LogFieldClip      = "clip"
	LogFieldReason    = "reason"
	LogFieldRetryIn   = "retry_in"
	LogFieldTransport = "transport"
)

// Defaults used when the pipeline config leaves a value unset.
const (
	DefaultWorkers        = 4
	DefaultPerHost        = 2
	DefaultRecordTimeout  = 10 * time.Second
	DefaultNotifyTimeout  = 60 * time.Second
	unknownHostSemaphores = "unknown"
)
