// Package buildinfo carries version stamps set with -ldflags:
//
//	-X 'github.com/ltzehan/thermobot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/ltzehan/thermobot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/ltzehan/thermobot/core/buildinfo.Date=2025-08-30T12:00:00Z'
package buildinfo

import (
	"runtime/debug"
	"strings"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary renders "version (commit, date)". Unset stamps fall back to the VCS
// settings the go tool embeds, then to "local".
func Summary() string {
	commit, date := Commit, Date
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && date == "":
				date = s.Value
			}
		}
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if commit == "" {
		commit = "local"
	}
	parts := []string{commit}
	if date != "" {
		parts = append(parts, date)
	}
	return Version + " (" + strings.Join(parts, ", ") + ")"
}
