// Package version exposes build information baked into the container image.
package version

import (
	"encoding/json"
	"os"
	"time"
)

const defaultPath = "/etc/version.json"

type Information struct {
	GitCommit string    `json:"git_commit"`
	GitDate   string    `json:"git_date"`
	GitBranch string    `json:"git_branch"`
	Version   string    `json:"version"`
	Date      time.Time `json:"-"`
}

// Info is loaded once at start up. It stays empty outside of a built image.
var Info, _ = Load(defaultPath)

// Load reads build information from a JSON file.
func Load(path string) (Information, error) {
	var info Information
	data, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, err
	}
	if d, err := time.Parse(time.RFC3339, info.GitDate); err == nil {
		info.Date = d.UTC()
	}
	return info, nil
}
