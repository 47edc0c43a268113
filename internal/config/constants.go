package config

import "time"

// Application constants
const (
	AppName    = "uao-etl"
	AppVersion = "1.0.0"

	// Pipeline defaults
	DefaultWorkers           = 4
	DefaultYearMin           = 2015
	DefaultYearMax           = 2022
	DefaultHeartbeatInterval = 30 * time.Second

	// File Paths (relative to BaseDir)
	DefaultRawDir       = "data/raw"
	DefaultProcessedDir = "data/processed"
	DefaultLogsDir      = "logs"
	DefaultHistoryDB    = "data/etl_history.db"
	DefaultAppLogFile   = "logs/etl.log"

	// OutputTimestampLayout is appended to every processed file name
	OutputTimestampLayout = "20060102_150405"
	// DatasetLogPrefix prefixes per-dataset log file names
	DatasetLogPrefix = "etl_"
)
