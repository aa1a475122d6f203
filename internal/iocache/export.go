package iocache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/internal/parquet"
)

// ExecuteCacheExport writes the entry metadata of one cache, or of every cache
// when cacheName is empty, to a Parquet file.
func ExecuteCacheExport(ctx context.Context, w io.Writer, storage contract.CacheStorage, cacheName, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if storage == nil {
		return errors.New("cache storage is not initialized")
	}

	status, err := storage.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get cache status: %w", err)
	}

	entries, err := storage.Entries(ctx, cacheName)
	if err != nil {
		return fmt.Errorf("failed to retrieve cache entries: %w", err)
	}
	if len(entries) == 0 {
		return errors.New("no cache entries found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)

	records := parquet.ConvertCacheEntryInfos(entries)
	if err := parquet.WriteCacheEntriesParquet(records, outputFile); err != nil {
		return fmt.Errorf("failed to write cache entries: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d cache entries to: %s\n", len(records), outputFile)
	return nil
}
