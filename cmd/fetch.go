package cmd

import (
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/huangsam/offcache/core/host"
	"github.com/huangsam/offcache/internal/contract"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// fetchCmd sends one request as a controlled page would.
var fetchCmd = &cobra.Command{
	Use:   "fetch <url-or-path>",
	Short: "Fetch a URL through the worker's fetch handler",
	Long: `Dispatch a single GET fetch event to the worker and write the response body.

No install runs first, so this shows what the worker answers from its current
cache. Requests the worker does not intercept go to the network.

Examples:
  # Is the home page served from the cache?
  offcache fetch / --origin https://example.com --include

  # Save a cached asset
  offcache fetch /app.js --origin https://example.com --output-file app.js`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWorker(newConsole())
		if err != nil {
			return err
		}

		u, err := cfg.ResolvePath(args[0])
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(rootCtx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}

		resp, intercepted, err := w.Fetch(rootCtx, req)
		if err != nil {
			return err
		}
		if !intercepted {
			if resp, err = host.NewPassthroughClient(cfg.FetchTimeout).Do(req); err != nil {
				return err
			}
		}
		defer func() { _ = resp.Body.Close() }()

		out, err := contract.SelectOutputFile(cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		if cfg.OutputFile != "" {
			defer func() { _ = out.Close() }()
		}

		if viper.GetBool("include") {
			writeHead(cmd.ErrOrStderr(), resp)
		}
		_, err = io.Copy(out, resp.Body)
		return err
	},
}

// writeHead prints the status line and headers in a stable order.
func writeHead(w io.Writer, resp *http.Response) {
	_, _ = fmt.Fprintf(w, "HTTP/%d.%d %s\n", resp.ProtoMajor, resp.ProtoMinor, resp.Status)
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			_, _ = fmt.Fprintf(w, "%s: %s\n", k, v)
		}
	}
	_, _ = fmt.Fprintln(w)
}
