// Package ingest implements the ingestion engine: it consumes batches of
// repository snapshots and maintains the run-length-encoded metric
// history in the leaderboard database.
package ingest

import (
	"strings"
	"time"
)

// Node is the raw repository node shape delivered by the upstream search
// API. Optional fields are pointers so that absent and null values
// survive decoding; SnapshotFromNode validates the rest.
type Node struct {
	DatabaseID     *int64  `json:"databaseId"`
	NameWithOwner  string  `json:"nameWithOwner"`
	StargazerCount int64   `json:"stargazerCount"`
	ForkCount      int64   `json:"forkCount"`
	Description    *string `json:"description"`
	Watchers       *struct {
		TotalCount int64 `json:"totalCount"`
	} `json:"watchers"`
	HomepageURL     *string `json:"homepageUrl"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
	PushedAt        string  `json:"pushedAt"`
	IsArchived      bool    `json:"isArchived"`
	DiskUsage       *int64  `json:"diskUsage"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	RepositoryTopics *struct {
		Nodes []struct {
			Topic *struct {
				Name string `json:"name"`
			} `json:"topic"`
		} `json:"nodes"`
	} `json:"repositoryTopics"`
}

// Snapshot is one repository observation, normalized for ingestion.
// Timestamps are Unix seconds; nil means the upstream omitted the field.
type Snapshot struct {
	ID            int64
	NameWithOwner string
	Description   *string
	HomepageURL   *string
	CreatedAt     *int64

	Stars     int64
	Forks     int64
	Watchers  int64
	DiskUsage *int64

	UpdatedAt  *int64
	PushedAt   *int64
	IsArchived bool

	PrimaryLanguage *string
	Topics          []string
}

// SnapshotFromNode converts a raw search node into a Snapshot. It
// returns ok=false for malformed nodes: a missing or non-positive
// databaseId, or an empty nameWithOwner. Such nodes are skipped rather
// than faulting the batch.
func SnapshotFromNode(n Node) (Snapshot, bool) {
	if n.DatabaseID == nil || *n.DatabaseID <= 0 {
		return Snapshot{}, false
	}
	if strings.TrimSpace(n.NameWithOwner) == "" {
		return Snapshot{}, false
	}

	s := Snapshot{
		ID:            *n.DatabaseID,
		NameWithOwner: n.NameWithOwner,
		Description:   n.Description,
		HomepageURL:   n.HomepageURL,
		CreatedAt:     isoToUnix(n.CreatedAt),
		Stars:         n.StargazerCount,
		Forks:         n.ForkCount,
		DiskUsage:     n.DiskUsage,
		UpdatedAt:     isoToUnix(n.UpdatedAt),
		PushedAt:      isoToUnix(n.PushedAt),
		IsArchived:    n.IsArchived,
	}
	if n.Watchers != nil {
		s.Watchers = n.Watchers.TotalCount
	}
	if n.PrimaryLanguage != nil && n.PrimaryLanguage.Name != "" {
		name := n.PrimaryLanguage.Name
		s.PrimaryLanguage = &name
	}
	if n.RepositoryTopics != nil {
		for _, tn := range n.RepositoryTopics.Nodes {
			if tn.Topic != nil && tn.Topic.Name != "" {
				s.Topics = append(s.Topics, tn.Topic.Name)
			}
		}
	}
	return s, true
}

// isoToUnix parses an RFC3339 timestamp to Unix seconds. Empty or
// unparseable input yields nil.
func isoToUnix(ts string) *int64 {
	if ts == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil
	}
	v := t.Unix()
	return &v
}
