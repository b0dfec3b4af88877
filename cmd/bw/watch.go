package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/client"
	"github.com/alfredjeanlab/baywatch/internal/events"
	"github.com/alfredjeanlab/baywatch/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch [topic-pattern...]",
	Short:   "Stream live events",
	GroupID: "query",
	Long: `Stream live events from the daemon's SSE endpoint.

Patterns use NATS-style wildcards, e.g. "baywatch.tag.*" or "baywatch.>".
With --nats, events are read straight from the bus instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		natsURL, _ := cmd.Flags().GetString("nats")
		out := cmd.OutOrStdout()
		if natsURL != "" {
			return watchNATS(ctx, out, natsURL, args)
		}
		return bwClient.StreamEvents(ctx, args, func(ev client.StreamEvent) error {
			printStreamEvent(out, ev.Topic, ev.Data, time.Now())
			return nil
		})
	},
}

// watchNATS subscribes to each pattern, or to every baywatch topic when none
// is given, and prints messages until ctx is done.
func watchNATS(ctx context.Context, out io.Writer, url string, patterns []string) error {
	nc, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	defer nc.Close()

	if len(patterns) == 0 {
		patterns = []string{events.TopicAll}
	}
	msgs := make(chan *nats.Msg, 64)
	for _, p := range patterns {
		sub, err := nc.ChanSubscribe(p, msgs)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", p, err)
		}
		defer sub.Unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			printStreamEvent(out, m.Subject, m.Data, time.Now())
		}
	}
}

// printStreamEvent writes one event line. JSON mode writes the payload as
// received, one object per line.
func printStreamEvent(w io.Writer, topic string, data []byte, now time.Time) {
	if jsonOutput {
		fmt.Fprintf(w, "{\"topic\":%q,\"data\":%s}\n", topic, compactJSON(data))
		return
	}
	fmt.Fprintf(w, "%s  %s  %s\n", ui.RenderMuted(now.Local().Format("15:04:05")), ui.RenderTopic(topic), compactJSON(data))
}

func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		b, _ := json.Marshal(string(data))
		return string(b)
	}
	return buf.String()
}

func init() {
	watchCmd.Flags().String("nats", "", "read events from this NATS URL instead of the daemon")
}
