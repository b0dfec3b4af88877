package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/client"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List dwell sessions",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := sessionsRequest(cmd)
		if err != nil {
			return err
		}
		resp, err := bwClient.ListSessions(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printSessionListTable(cmd.OutOrStdout(), resp.Sessions, resp.Total, time.Now())
		return nil
	},
}

// sessionsRequest builds the list request from the command's flags. --since
// takes either an RFC 3339 time or a duration counted back from now.
func sessionsRequest(cmd *cobra.Command) (*client.ListSessionsRequest, error) {
	flags := cmd.Flags()
	tag, _ := flags.GetString("tag")
	open, _ := flags.GetBool("open")
	closed, _ := flags.GetBool("closed")
	since, _ := flags.GetString("since")
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")

	if open && closed {
		return nil, errors.New("--open and --closed are mutually exclusive")
	}
	if limit < 0 || offset < 0 {
		return nil, errors.New("--limit and --offset must not be negative")
	}

	req := &client.ListSessionsRequest{Tag: tag, Limit: limit, Offset: offset}
	if open || closed {
		req.Open = &open
	}
	if since != "" {
		t, err := parseSince(since, time.Now())
		if err != nil {
			return nil, err
		}
		req.Since = &t
	}
	return req, nil
}

func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want an RFC 3339 time or a duration like 2h", s)
	}
	return now.Add(-d), nil
}

var showCmd = &cobra.Command{
	Use:     "show <session-id>",
	Short:   "Show a session and its tags",
	GroupID: "query",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := bwClient.GetSession(cmd.Context(), args[0])
		if err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("session %s not found", args[0])
			}
			return fmt.Errorf("getting session: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}
		printSessionTable(cmd.OutOrStdout(), s, time.Now())
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events <session-id>",
	Short:   "List the events recorded for a session",
	GroupID: "query",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := bwClient.GetSessionEvents(cmd.Context(), args[0])
		if err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("session %s not found", args[0])
			}
			return fmt.Errorf("getting events: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		printEventsTable(cmd.OutOrStdout(), evts)
		return nil
	},
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("tag", "", "only sessions containing this tag ID")
	cmd.Flags().Bool("open", false, "only the open session")
	cmd.Flags().Bool("closed", false, "only closed sessions")
	cmd.Flags().String("since", "", "only sessions started after this time (RFC 3339 or duration)")
	cmd.Flags().Int("limit", 0, "maximum number of sessions (0 for the server default)")
	cmd.Flags().Int("offset", 0, "number of sessions to skip")
}

func init() {
	addSessionFlags(sessionsCmd)
}
