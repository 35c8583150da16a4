package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

type trackingFile struct {
	Sessions []trackingEntry `yaml:"sessions"`
}

type trackingEntry struct {
	Owner   string `yaml:"owner"`
	ChatID  int64  `yaml:"chat_id"`
	Handle  string `yaml:"handle"`
	SheetID string `yaml:"sheet_id"`
}

// LoadTrackingFile reads pre-configured sessions from a YAML file:
//
//	sessions:
//	  - chat_id: 123456
//	    handle: tourist
//	    sheet_id: 1AbC...
//
// Owner defaults to "chat:<chat_id>".
func LoadTrackingFile(path string) ([]models.TrackRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file trackingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	requests := make([]models.TrackRequest, 0, len(file.Sessions))
	seen := make(map[string]bool)
	for i, e := range file.Sessions {
		if e.ChatID == 0 {
			return nil, fmt.Errorf("session %d: chat_id is required", i)
		}
		if e.Handle == "" {
			return nil, fmt.Errorf("session %d: handle is required", i)
		}
		if e.SheetID == "" {
			return nil, fmt.Errorf("session %d: sheet_id is required", i)
		}

		owner := e.Owner
		if owner == "" {
			owner = fmt.Sprintf("chat:%d", e.ChatID)
		}
		if seen[owner] {
			return nil, fmt.Errorf("session %d: duplicate owner %q", i, owner)
		}
		seen[owner] = true

		requests = append(requests, models.TrackRequest{
			Owner:   owner,
			ChatID:  e.ChatID,
			Handle:  e.Handle,
			SheetID: e.SheetID,
		})
	}

	return requests, nil
}
