package domain

import "time"

// UsageLog is one accounting row per successful job.
type UsageLog struct {
	UserID          string
	JobID           string
	PixelsProcessed int64
	BytesIn         int64
	BytesOut        int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
