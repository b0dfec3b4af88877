package model

import "time"

// ReaderStatus describes the tag-reader transport.
type ReaderStatus struct {
	Listening       bool      `json:"listening"`
	Addr            string    `json:"addr"`
	Connected       bool      `json:"connected"`
	RemoteAddr      string    `json:"remote_addr,omitempty"`
	ConnectionID    string    `json:"connection_id,omitempty"`
	ConnectedAt     time.Time `json:"connected_at,omitempty"`
	FramesRead      uint64    `json:"frames_read"`
	FramesMalformed uint64    `json:"frames_malformed"`
}

// DetectorStatus describes the frame loop.
type DetectorStatus struct {
	Source        string    `json:"source"`
	FramesSeen    uint64    `json:"frames_seen"`
	FramesSkipped uint64    `json:"frames_skipped"`
	FramesPresent uint64    `json:"frames_present"`
	LastFrameAt   time.Time `json:"last_frame_at,omitempty"`
}

// Status is a point-in-time snapshot of the correlator.
type Status struct {
	Present        bool           `json:"present"`
	TargetLabel    string         `json:"target_label"`
	OpenSession    *Session       `json:"open_session,omitempty"`
	SessionsClosed uint64         `json:"sessions_closed"`
	DedupEntries   int            `json:"dedup_entries"`
	BufferWindow   string         `json:"buffer_window"`
	Reader         ReaderStatus   `json:"reader"`
	Detector       DetectorStatus `json:"detector"`
}
