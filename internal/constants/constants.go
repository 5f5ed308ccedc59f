package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	RemoteStoreTimeout = 15 * time.Second
	DatabaseTimeout    = 5 * time.Second
)

const (
	DefaultPollIntervalSeconds    = 900
	DefaultBatchSize              = 50
	DefaultLookbackDays           = 7
	DefaultMaxConcurrentRequests  = 4
	DefaultMaxRecordsPerPartition = 1000
	DefaultRetentionDays          = 90
	DefaultCacheIDBudget          = 5000
)

const (
	// roster players inactive longer than this are skipped by discovery
	RosterActivityDays = 90
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DedupIndexBlob  = "dedup/index.json"
	MatchBlobPrefix = "matches/"
)
