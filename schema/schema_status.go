package schema

import "time"

// CacheStatus represents the status of the cache storage.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	CacheNames      []string  `json:"cache_names"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// CacheEntryInfo describes a stored entry without its body.
type CacheEntryInfo struct {
	CacheName string       `json:"cache_name"`
	Method    string       `json:"method"`
	URL       string       `json:"url"`
	Status    int          `json:"status"`
	Type      ResponseType `json:"type"`
	BodyBytes int64        `json:"body_bytes"`
	StoredAt  time.Time    `json:"stored_at"`
}
