package config

import "time"

// Application constants
const (
	// Application Info
	AppName     = "Strait Pulse"
	AppVersion  = "1.0.0"
	ServiceName = "strait-pulse"

	// Dashboard
	DefaultRangeDays = 30

	// Export
	DefaultExportConcurrency = 4
	DefaultExportPrefix      = "strait-pulse"
	ExportContentType        = "text/csv; charset=utf-8"

	// Rate Limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Timeouts
	DefaultRequestTimeout = 60 * time.Second
	WebSocketPingPeriod   = 30 * time.Second
	WebSocketPongWait     = 60 * time.Second

	// File Paths (relative to the base directory)
	DefaultDataDir    = "data"
	DefaultExportsDir = "data/exports"
	DefaultLogsDir    = "logs"

	// Cache Settings
	DataCacheDuration = 5 * time.Minute
	DataCacheSize     = 512
)
