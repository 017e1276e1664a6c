package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/lavaplayer/internal/music/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <query or url>",
	Short: "Resolve input through the catalog and the audio node and print the tracks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

var (
	resolveSource string
	resolveRadio  bool
)

func init() {
	resolveCmd.Flags().StringVar(&resolveSource, "source", "", "search backend for text input: youtube or soundcloud")
	resolveCmd.Flags().BoolVar(&resolveRadio, "radio", false, "validate the argument as a live radio stream")
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	catalog := newCatalog()
	if catalog.Enabled() {
		if err := catalog.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("catalog unavailable")
		}
	}

	// loadtracks needs no websocket session or voice gateway
	res := resolver.New(newNode(nil), catalog, nil, nil, logger)
	input := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if resolveRadio {
		t, ok := res.ResolveRadio(ctx, input)
		if !ok {
			fmt.Fprintln(out, "not a playable stream")
			return nil
		}
		fmt.Fprintf(out, "radio: %s %s\n", t.Title, t.URI)
		return nil
	}

	result, ok := res.ResolveFrom(ctx, input, resolver.Source(resolveSource))
	if !ok {
		fmt.Fprintln(out, "nothing found")
		return nil
	}

	if result.PlaylistName != "" {
		fmt.Fprintf(out, "playlist: %s\n", result.PlaylistName)
	}
	for i, t := range result.Tracks {
		fmt.Fprintf(out, "%3d. %s - %s [%s] %s\n", i+1, t.Author, t.Title, t.DurationText(), t.URI)
	}
	return nil
}
