package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func formatDwell(s *model.Session, now time.Time) string {
	return s.Duration(now).Round(100 * time.Millisecond).String()
}

func formatEnded(s *model.Session) string {
	if s.EndedAt == nil {
		return ui.RenderOK("open")
	}
	return s.EndedAt.Local().Format(timeLayout)
}

func printSessionTable(w io.Writer, s *model.Session, now time.Time) {
	fmt.Fprintf(w, "ID:          %s\n", ui.RenderAccent(s.ID))
	fmt.Fprintf(w, "Target:      %s (%.2f)\n", s.TargetLabel, s.Confidence)
	fmt.Fprintf(w, "Started At:  %s\n", s.StartedAt.Local().Format(timeLayout))
	fmt.Fprintf(w, "Ended At:    %s\n", formatEnded(s))
	fmt.Fprintf(w, "Dwell:       %s\n", formatDwell(s, now))
	if ip := s.SourceIPString(); ip != "" {
		fmt.Fprintf(w, "Source IP:   %s\n", ip)
	}
	if len(s.Tags) == 0 {
		fmt.Fprintf(w, "Tags:        %s\n", ui.RenderMuted("none"))
		return
	}
	fmt.Fprintf(w, "Tags:        %d\n", len(s.Tags))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range s.Reads {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.TagID, r.SourceIP, r.AcceptedAt.Local().Format(timeLayout))
	}
	tw.Flush()
}

func printSessionListTable(w io.Writer, sessions []*model.Session, total int, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tENDED\tDWELL\tTAGS")
	for _, s := range sessions {
		tags := strings.Join(s.Tags, ",")
		if len(tags) > 60 {
			tags = tags[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.StartedAt.Local().Format(timeLayout),
			formatEnded(s),
			formatDwell(s, now),
			tags,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d sessions (%d total)\n", len(sessions), total)
}

func printEventsTable(w io.Writer, evts []*model.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTOPIC")
	for _, e := range evts {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format(timeLayout), ui.RenderTopic(e.Topic))
	}
	tw.Flush()
}

func printStatusTable(w io.Writer, st *model.Status, now time.Time) {
	fmt.Fprintf(w, "Target:     %s\n", st.TargetLabel)
	fmt.Fprintf(w, "Presence:   %s\n", ui.RenderPresence(st.Present))
	if st.OpenSession != nil {
		fmt.Fprintf(w, "Session:    %s (%s, %d tags)\n",
			ui.RenderAccent(st.OpenSession.ID), formatDwell(st.OpenSession, now), len(st.OpenSession.Tags))
	} else {
		fmt.Fprintf(w, "Session:    %s\n", ui.RenderMuted("none"))
	}
	fmt.Fprintf(w, "Closed:     %d\n", st.SessionsClosed)
	fmt.Fprintf(w, "Window:     %s (%d tags tracked)\n", st.BufferWindow, st.DedupEntries)
	fmt.Fprintln(w)

	r := st.Reader
	switch {
	case r.Connected:
		fmt.Fprintf(w, "Reader:     %s %s since %s\n", ui.RenderOK("connected"), r.RemoteAddr, r.ConnectedAt.Local().Format(timeLayout))
	case r.Listening:
		fmt.Fprintf(w, "Reader:     %s on %s\n", ui.RenderWarn("waiting"), r.Addr)
	default:
		fmt.Fprintf(w, "Reader:     %s\n", ui.RenderWarn("disconnected"))
	}
	fmt.Fprintf(w, "Frames:     %d read, %d malformed\n", r.FramesRead, r.FramesMalformed)
	fmt.Fprintln(w)

	d := st.Detector
	fmt.Fprintf(w, "Detector:   %s\n", d.Source)
	fmt.Fprintf(w, "Frames:     %d seen, %d with target, %d skipped\n", d.FramesSeen, d.FramesPresent, d.FramesSkipped)
	if !d.LastFrameAt.IsZero() {
		fmt.Fprintf(w, "Last Frame: %s\n", d.LastFrameAt.Local().Format(timeLayout))
	}
}
