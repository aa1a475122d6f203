package schema

// Custom string types for type safety.
type (
	// DatabaseBackend represents the database backend for the cache storage.
	DatabaseBackend string

	// Strategy represents how the worker answers an intercepted fetch.
	Strategy string

	// ResponseType classifies a network response relative to the worker origin.
	ResponseType string

	// WorkerState represents a lifecycle state of a worker version.
	WorkerState string
)

// All cache backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// All fetch strategies supported.
const (
	CacheFirst   Strategy = "cache-first" // default
	NetworkFirst Strategy = "network-first"
)

// All response types a fetch can produce.
const (
	BasicResponse  ResponseType = "basic"  // same origin
	CORSResponse   ResponseType = "cors"   // cross origin, shared via CORS headers
	OpaqueResponse ResponseType = "opaque" // cross origin, not shared
	ErrorResponse  ResponseType = "error"
)

// Worker lifecycle states.
const (
	StateParsed     WorkerState = "parsed"
	StateInstalling WorkerState = "installing"
	StateInstalled  WorkerState = "installed"
	StateActivating WorkerState = "activating"
	StateActivated  WorkerState = "activated"
	StateRedundant  WorkerState = "redundant"
)

// ValidDatabaseBackends lists all valid cache backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidStrategies lists all valid fetch strategies.
var ValidStrategies = map[Strategy]struct{}{
	CacheFirst:   {},
	NetworkFirst: {},
}
