package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	imgcache "github.com/Borislavv/go-ash-imgcache"
	"github.com/Borislavv/go-ash-imgcache/internal/shared/bytes"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/spf13/cobra"
)

func openCache(cmd *cobra.Command) (*imgcache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return imgcache.New(cmd.Context(), cfg, newLogger())
}

func warmCmd() *cobra.Command {
	var (
		file     string
		priority string
	)

	cmd := &cobra.Command{
		Use:   "warm [url...]",
		Short: "Download images into the cache",
		Long:  "Download every given url, and every line of --file, into the cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			prio, err := model.ParsePriority(priority)
			if err != nil {
				return err
			}

			keys := args
			if file != "" {
				fromFile, err := readLines(file)
				if err != nil {
					return err
				}
				keys = append(keys, fromFile...)
			}
			if len(keys) == 0 {
				return fmt.Errorf("nothing to warm: pass urls or --file")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			// a cli run has no platform signal, assume a good link
			c.UpdateNetwork(model.QualityWifi)

			ok := c.PreloadAll(ctx, keys, prio)
			fmt.Fprintf(cmd.OutOrStdout(), "warmed %d of %d images into %s\n", ok, len(keys), c.Dir())
			if ok < len(keys) {
				return fmt.Errorf("%d images failed", len(keys)-ok)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File with one url per line")
	cmd.Flags().StringVarP(&priority, "priority", "p", "medium", "Priority: low, medium, high, critical")
	return cmd
}

func statsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print cache occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			st := c.Stats()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintf(out, "dir:     %s\n", c.Dir())
			fmt.Fprintf(out, "disk:    %d entries, %s\n", st.Disk.Entries, bytes.FmtSigned(st.Disk.Bytes))
			fmt.Fprintf(out, "memory:  %d entries, %s\n", st.Memory.Entries, bytes.FmtSigned(st.Memory.Bytes))
			fmt.Fprintf(out, "expired: %d\n", st.Expirations)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as json")
	return cmd
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [url...]",
		Short: "Remove images from the cache",
		Long:  "Remove the given urls, or everything when no url is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if len(args) == 0 {
				if err = c.ClearAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			}
			for _, key := range args {
				c.Clear(key)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d images removed\n", len(args))
			return nil
		},
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err = sc.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return out, nil
}

