// Package config provides configuration management for the ETL pipeline.
// It loads settings from several sources, validates them and resolves the
// file system layout used by a run.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file (etl.yaml, configs/etl.yaml or ETL_CONFIG_FILE)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern ETL_<SECTION>_<FIELD>:
//
//	ETL_PIPELINE_WORKERS=4
//	ETL_PIPELINE_YEAR_MIN=2015
//	ETL_PATHS_PROCESSED_DIR=data/processed
//	ETL_LOGGING_LEVEL=debug
//	ETL_TELEMETRY_TRACE_EXPORTER=stdout
//
// # Dataset Overrides
//
// The YAML file may redirect or disable individual datasets:
//
//	datasets:
//	  internet_fijo:
//	    input: /mnt/share/internet_fijo_2023.csv
//	  revistas_indexadas:
//	    enabled: false
//
// # Path Management
//
// GetPaths resolves every configured location against paths.base_dir
// (the working directory by default):
//
//	paths, err := config.GetPaths(cfg)
//	out := paths.GetProcessedPath("cobertura_movil_procesado", time.Now())
package config
