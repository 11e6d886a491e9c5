// Package config provides centralized configuration management for the
// schema mapping pipeline. It handles loading configuration from multiple
// sources, validation, and provides a type-safe API for accessing
// configuration values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration files (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern SP_* for namespacing:
//
//	SP_SERVER_PORT=8080
//	SP_LOGGING_LEVEL=info
//	SP_PIPELINE_SIMILARITY_THRESHOLD=0.8
//	SP_TEMPLATES_BACKEND=postgres
//	SP_PATHS_ROOT=/srv/schemapipe
//
// # Paths
//
// The Paths type is the single source of truth for every file location the
// application touches: the input/archive/quarantine/output directories, the
// template store, the layered synonym configuration and the audit log. All
// components receive a *Paths rather than composing their own paths.
package config
