// Package constants defines shared default values used throughout the project.
package constants

import "time"

// ProjectName is the name of the project.
const ProjectName = "guomen"

// Version is the current version.
const Version = "0.1.0"

// DefaultConfigPath is the default path to the configuration file.
const DefaultConfigPath = "./configs/guomen.yaml"

// DefaultMySQLPort is the default port for MySQL backend connections.
const DefaultMySQLPort = 3306

// DefaultConnectTimeout is the default timeout for backend connections.
const DefaultConnectTimeout = 3 * time.Second

// DefaultReadTimeout is the default timeout for backend reads.
const DefaultReadTimeout = 10 * time.Second

// DefaultWriteTimeout is the default timeout for backend writes.
const DefaultWriteTimeout = 10 * time.Second

// DefaultRefreshInterval is how often user grants are reloaded from the
// backends.
const DefaultRefreshInterval = 30 * time.Second

// DefaultSnapshotPath is where the user catalog is persisted between runs.
const DefaultSnapshotPath = "./data/users.db"

// DefaultDNSCacheSize bounds the reverse-DNS lookup cache.
const DefaultDNSCacheSize = 1024

// DefaultObservabilityAddress is where metrics and health endpoints listen.
const DefaultObservabilityAddress = ":9104"

// DefaultMetricsPath is the HTTP path serving Prometheus metrics.
const DefaultMetricsPath = "/metrics"
