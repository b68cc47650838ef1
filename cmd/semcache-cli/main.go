// Command semcache-cli is a small client for a running semcached daemon and
// a validator for cache config files.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/semcache"
	"github.com/ferro-labs/semcache/internal/version"
)

var addr string

func main() {
	root := &cobra.Command{
		Use:     "semcache-cli",
		Short:   "Client for the semcached daemon",
		Version: version.String(),
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "base URL of the semcached daemon")

	root.AddCommand(
		newValidateCmd(),
		newStatsCmd(),
		newLookupCmd(),
		newFlushCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a cache configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := semcache.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := semcache.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Printf("OK: dimension=%d threshold=%v ttl=%v capacity=%d\n",
				cfg.Dimension, cfg.Threshold, cfg.TTL, cfg.Capacity)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache counters from the daemon",
		RunE: func(*cobra.Command, []string) error {
			resp, err := httpClient().Get(addr + "/v1/stats")
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			var stats semcache.Stats
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				return fmt.Errorf("decode stats: %w", err)
			}
			fmt.Printf("entries:      %d\n", stats.Entries)
			fmt.Printf("hits (exact): %d\n", stats.HitsExact)
			fmt.Printf("hits (sim):   %d\n", stats.HitsSimilar)
			fmt.Printf("misses:       %d\n", stats.Misses)
			fmt.Printf("shared:       %d\n", stats.Shared)
			return nil
		},
	}
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <query>",
		Short: "Probe the cache for a query without computing on miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{"query": args[0]})
			if err != nil {
				return err
			}
			resp, err := httpClient().Post(addr+"/v1/lookup", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode == http.StatusNotFound {
				fmt.Println("miss")
				return nil
			}
			if resp.StatusCode != http.StatusOK {
				raw, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, raw)
			}
			var hit semcache.Hit
			if err := json.NewDecoder(resp.Body).Decode(&hit); err != nil {
				return fmt.Errorf("decode hit: %w", err)
			}
			fmt.Printf("hit (score %.4f, exact %v)\n%s\n", hit.Score, hit.Exact, hit.Response.Text)
			return nil
		},
	}
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove every cached entry",
		RunE: func(*cobra.Command, []string) error {
			req, err := http.NewRequest(http.MethodDelete, addr+"/v1/entries", nil)
			if err != nil {
				return err
			}
			resp, err := httpClient().Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusNoContent {
				raw, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, raw)
			}
			fmt.Println("flushed")
			return nil
		},
	}
}
