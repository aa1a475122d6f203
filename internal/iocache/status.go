package iocache

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/huangsam/offcache/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintCacheStatus prints cache status information.
func PrintCacheStatus(w io.Writer, status schema.CacheStatus) {
	_, _ = fmt.Fprintf(w, "Cache Backend: %s\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	_, _ = fmt.Fprintf(w, "Caches: %d\n", len(status.CacheNames))
	for _, name := range status.CacheNames {
		_, _ = fmt.Fprintf(w, "  %s\n", name)
	}
	_, _ = fmt.Fprintf(w, "Total Entries: %d\n", status.TotalEntries)
	if status.TotalEntries > 0 {
		_, _ = fmt.Fprintf(w, "Last Entry: %s\n", status.LastEntryTime.Format("2006-01-02 15:04:05"))
		_, _ = fmt.Fprintf(w, "Oldest Entry: %s\n", status.OldestEntryTime.Format("2006-01-02 15:04:05"))
	}
	_, _ = fmt.Fprintf(w, "Table Size: %s\n", humanize.IBytes(uint64(max(status.TableSizeBytes, 0))))
}

// PrintCacheEntries renders the entries as a table.
func PrintCacheEntries(w io.Writer, entries []schema.CacheEntryInfo) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Cache", "Method", "URL", "Status", "Type", "Size", "Stored"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for _, e := range entries {
		data = append(data, []string{
			e.CacheName,
			e.Method,
			e.URL,
			strconv.Itoa(e.Status),
			string(e.Type),
			humanize.IBytes(uint64(max(e.BodyBytes, 0))),
			e.StoredAt.Format("2006-01-02 15:04:05"),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%d entries\n", len(entries))
	return nil
}
