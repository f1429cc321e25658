package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agleyzer/segstitch/internal/config"
	"github.com/agleyzer/segstitch/internal/fetch"
	"github.com/agleyzer/segstitch/internal/series"
)

type fetchOptions struct {
	configPath string

	label    string
	prefix   string
	suffix   string
	stop     int
	playlist string

	root       string
	httpProxy  string
	socksProxy string
	chunkSize  int
	timeout    time.Duration
	userAgent  string
}

func newFetchCmd(a *app) *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download numbered segment series into fragment directories",
		Example: `  segstitch fetch --config batch.yaml
  segstitch fetch --label lecture1 --prefix 'https://cdn.example.com/l1/seg' --suffix '.ts?token=abc'
  segstitch fetch --label lecture2 --prefix 'https://cdn.example.com/l2/' --playlist 'https://cdn.example.com/l2/index.m3u8'`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, all, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runFetch(cmd, a, c, all)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML batch file listing series to fetch")
	f.StringVarP(&opts.label, "label", "l", "", "Label of an ad-hoc series (names its fragment directory)")
	f.StringVarP(&opts.prefix, "prefix", "p", "", "URL text before the segment index")
	f.StringVarP(&opts.suffix, "suffix", "s", "", "URL text after the segment index")
	f.IntVar(&opts.stop, "stop", 0, "Last segment index to fetch (0 runs until a failing response)")
	f.StringVar(&opts.playlist, "playlist", "", "Playlist URL whose segment count bounds the series")
	f.StringVarP(&opts.root, "root", "r", "", "Directory holding the fragment directories (default \".\")")
	f.StringVar(&opts.httpProxy, "http-proxy", "", "HTTP proxy URL, e.g. http://127.0.0.1:3128")
	f.StringVar(&opts.socksProxy, "socks-proxy", "", "SOCKS5 proxy address, e.g. 127.0.0.1:1080")
	f.IntVar(&opts.chunkSize, "chunk-size", fetch.DefaultChunkSize, "Bytes read from a response body at a time")
	f.DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout, e.g. 45s (0 disables it)")
	f.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header sent with every request")

	return cmd
}

// resolve merges the config file with the command line flags. Flags override
// file values, and an ad-hoc series given by flags is fetched after the
// series of the file.
func (o *fetchOptions) resolve(cmd *cobra.Command) (*config.Config, []series.Series, error) {
	c := &config.Config{}
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, nil, err
		}
		c = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("http-proxy") && flags.Changed("socks-proxy") {
		return nil, nil, usagef("only one of --http-proxy and --socks-proxy may be set")
	}
	if flags.Changed("root") {
		c.Root = o.root
	}
	if flags.Changed("chunk-size") {
		c.ChunkSize = o.chunkSize
	}
	if flags.Changed("timeout") {
		c.Timeout = o.timeout
	}
	if flags.Changed("user-agent") {
		c.UserAgent = o.userAgent
	}
	if flags.Changed("http-proxy") {
		c.Proxy = config.Proxy{HTTP: o.httpProxy}
	}
	if flags.Changed("socks-proxy") {
		c.Proxy = config.Proxy{SOCKS: o.socksProxy}
	}

	adhoc := o.label != "" || o.prefix != "" || flags.Changed("suffix") || flags.Changed("stop") || o.playlist != ""
	if adhoc {
		if o.label == "" || o.prefix == "" {
			return nil, nil, usagef("--label and --prefix are required for an ad-hoc series")
		}
		c.Series = append(c.Series, config.Series{
			Label:     o.label,
			Prefix:    o.prefix,
			Suffix:    o.suffix,
			StopIndex: o.stop,
			Playlist:  o.playlist,
		})
	}

	if len(c.Series) == 0 {
		return nil, nil, usagef("no series to fetch: pass --config or --label and --prefix")
	}

	if err := c.Validate(); err != nil {
		return nil, nil, usagef("%v", err)
	}

	return c, c.SeriesList(), nil
}

func runFetch(cmd *cobra.Command, a *app, c *config.Config, all []series.Series) error {
	client, err := fetch.NewClient(c.ProxyConfig(), c.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create http client: %w", err)
	}

	fetcher := fetch.New(client, c.Root, fetch.Options{
		ChunkSize: c.ChunkSize,
		UserAgent: c.UserAgent,
		Progress:  a.progressFor(),
	}, a.logger)

	a.logger.Info("fetching series", "count", len(all), "root", c.Root)

	reports, err := fetcher.FetchAll(cmd.Context(), all)

	var total int64
	for _, r := range reports {
		total += r.Bytes
	}
	a.logger.Info("fetch finished",
		"series", len(reports),
		"bytes", humanize.Bytes(uint64(total)),
	)

	if err != nil {
		return fmt.Errorf("fetch aborted: %w", err)
	}
	return nil
}
