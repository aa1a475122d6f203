// Package parquet provides data structures and functions for exporting cache
// entry metadata to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/huangsam/offcache/schema"
	"github.com/parquet-go/parquet-go"
)

// CacheEntry describes one stored response without its body.
// This struct maps to the offcache_entries database table.
type CacheEntry struct {
	// CacheName is the versioned cache holding the entry
	CacheName string `parquet:"cache_name,snappy,dict"`

	// Method is the request method, always GET for stored entries
	Method string `parquet:"method,snappy,dict"`

	// URL is the absolute request URL without fragment
	URL string `parquet:"url,snappy"`

	// Status is the HTTP status code of the stored response
	Status int32 `parquet:"status,snappy"`

	// ResponseType is basic, cors, opaque or error
	ResponseType string `parquet:"response_type,snappy,dict"`

	// BodyBytes is the size of the stored body
	BodyBytes int64 `parquet:"body_bytes,snappy"`

	// StoredAt is when the entry was written (stored as TIMESTAMP with nanosecond precision)
	StoredAt time.Time `parquet:"stored_at,snappy"`
}

// WriteCacheEntriesParquet writes a slice of CacheEntry structs to a Parquet file.
func WriteCacheEntriesParquet(data []CacheEntry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// The schema is derived from the CacheEntry struct tags
	writer := parquet.NewGenericWriter[CacheEntry](file)

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}

	// Close flushes the footer, so its error matters
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ConvertCacheEntryInfos converts schema.CacheEntryInfo to CacheEntry for Parquet export.
func ConvertCacheEntryInfos(infos []schema.CacheEntryInfo) []CacheEntry {
	result := make([]CacheEntry, len(infos))
	for i, info := range infos {
		result[i] = CacheEntry{
			CacheName:    info.CacheName,
			Method:       info.Method,
			URL:          info.URL,
			Status:       int32(info.Status),
			ResponseType: string(info.Type),
			BodyBytes:    info.BodyBytes,
			StoredAt:     info.StoredAt,
		}
	}
	return result
}
