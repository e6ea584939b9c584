// Command wikiprobe runs wiki discovery and CSRF token acquisition outside
// the MCP server, for checking a wiki before adding it to the config.
//
// Usage:
//
//	wikiprobe discover https://en.wikipedia.org/wiki/Main_Page
//	wikiprobe token https://wiki.example.org --username Bot@probe --password ...
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/olgasafonova/mediawiki-mcp-server/internal/csrf"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/discovery"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/site"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/transport"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// probeOptions are the flags shared by every subcommand.
type probeOptions struct {
	timeout    time.Duration
	maxRetries int
	verbose    bool
}

func (o *probeOptions) transport(stderr io.Writer) (*transport.Transport, *slog.Logger) {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	t := transport.New(
		transport.WithLogger(logger),
		transport.WithTimeout(o.timeout),
		transport.WithMaxRetries(o.maxRetries),
	)
	return t, logger
}

func newRootCmd() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:          "wikiprobe",
		Short:        "Probe MediaWiki sites the way the MCP server does",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", transport.DefaultTimeout, "HTTP timeout per request")
	cmd.PersistentFlags().IntVar(&opts.maxRetries, "max-retries", 1, "Retries for network errors")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log each request to stderr")

	cmd.AddCommand(discoverCmd(opts), tokenCmd(opts))
	return cmd
}

// discoverOutput is printed by the discover command.
type discoverOutput struct {
	Key        string          `json:"key"`
	ServerName string          `json:"servername"`
	Descriptor site.Descriptor `json:"descriptor"`
}

func discoverCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <url>",
		Short: "Discover the wiki behind any of its URLs and print its descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, logger := opts.transport(cmd.ErrOrStderr())
			d := discovery.New(t, discovery.WithLogger(logger))

			res, err := d.DiscoverURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(discoverOutput{
				Key:        res.Key,
				ServerName: res.ServerName,
				Descriptor: res.Descriptor,
			})
		},
	}
}

func tokenCmd(opts *probeOptions) *cobra.Command {
	var cred site.Credential

	c := &cobra.Command{
		Use:   "token <url>",
		Short: "Check that a CSRF token can be obtained with the given credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cred.Kind() == site.CredentialNone {
				return fmt.Errorf("a credential is required: use --token or --username and --password")
			}

			t, logger := opts.transport(cmd.ErrOrStderr())
			d := discovery.New(t, discovery.WithLogger(logger))
			res, err := d.DiscoverURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			desc := res.Descriptor
			desc.Credential = cred
			target := &site.Site{Key: res.Key, Descriptor: desc}

			tokens := csrf.New(t, csrf.WithLogger(logger))
			defer tokens.Close()

			if _, ok := tokens.Token(cmd.Context(), target); !ok {
				return fmt.Errorf("no CSRF token from %s using %s credential", target.APIURL(), cred.Kind())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: CSRF token obtained from %s (%s credential)\n", target.APIURL(), cred.Kind())
			return nil
		},
	}

	c.Flags().StringVar(&cred.Token, "token", "", "OAuth 2 bearer token")
	c.Flags().StringVar(&cred.Username, "username", "", "Bot password username (User@bot)")
	c.Flags().StringVar(&cred.Password, "password", "", "Bot password")
	c.MarkFlagsRequiredTogether("username", "password")
	return c
}
