// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogRecord represents one discovered combat log file and its upload state.
//
// The filename (base name with both the container and log extensions
// stripped) is the stable identity used to deduplicate scans across
// process restarts. Upload-derived fields stay zero until Uploaded is
// set by the upload worker; once Uploaded is true the record is never
// uploaded again, even when Error is also set.
type LogRecord struct {
	ID        int64
	Filename  string
	Path      string
	Time      time.Time
	HumanTime string

	Uploaded      bool
	Error         bool
	ReportID      string
	Permalink     string
	BossID        int
	BossName      string
	PlayersJSON   string
	JSONAvailable bool
	Success       bool

	roster map[string]Player
}

// Player is one roster entry from an uploaded encounter report.
type Player struct {
	DisplayName   string `json:"display_name"`
	CharacterName string `json:"character_name"`
	Profession    int    `json:"profession"`
	EliteSpec     int    `json:"elite_spec"`
}

// Roster returns the player roster keyed by account name, parsed from
// PlayersJSON. The parse result is cached on the record; records are
// immutable once uploaded, so the cache is never invalidated.
func (l *LogRecord) Roster() (map[string]Player, error) {
	if l.roster != nil {
		return l.roster, nil
	}
	if l.PlayersJSON == "" {
		return nil, nil
	}
	var roster map[string]Player
	if err := json.Unmarshal([]byte(l.PlayersJSON), &roster); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	l.roster = roster
	return roster, nil
}

// DisplayName is the name used in status and notification messages:
// the boss name when the upload reported one, the filename otherwise.
func (l *LogRecord) DisplayName() string {
	if l.BossName != "" {
		return l.BossName
	}
	return l.Filename
}

// WebhookRule is a user-configured fan-out destination. A rule fires
// for a completed upload only when its category gate, success gate,
// and roster gate all pass.
type WebhookRule struct {
	ID   int64
	Name string
	URL  string

	Raids    bool
	Fractals bool
	Strikes  bool
	Golems   bool
	WvW      bool

	// Filter is a comma-separated list of account names; FilterMin is
	// how many of them must appear in the log's roster for the rule
	// to fire.
	Filter      string
	FilterMin   int
	SuccessOnly bool
}
