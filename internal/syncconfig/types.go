package syncconfig

import (
	"strings"
	"time"
)

// MaxResults bounds each item's result history
const MaxResults = 50

// Status of a configuration item
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
)

// Outcome of a sync run
type Outcome string

const (
	Success Outcome = "success"
	Failed  Outcome = "failed"
)

// Mode is a sync type without its trigger provenance
type Mode string

const (
	PushForce Mode = "push-force"
	PullForce Mode = "pull-force"
	PushMerge Mode = "push-merge"
	PullMerge Mode = "pull-merge"
)

// SyncType is a mode plus whether it was triggered manually or automatically
type SyncType string

const (
	ManualPushForce SyncType = "manual-push-force"
	ManualPullForce SyncType = "manual-pull-force"
	ManualPushMerge SyncType = "manual-push-merge"
	ManualPullMerge SyncType = "manual-pull-merge"
	AutoPushForce   SyncType = "auto-push-force"
	AutoPullForce   SyncType = "auto-pull-force"
	AutoPushMerge   SyncType = "auto-push-merge"
	AutoPullMerge   SyncType = "auto-pull-merge"
)

// Valid reports whether t is one of the known sync types
func (t SyncType) Valid() bool {
	switch t {
	case ManualPushForce, ManualPullForce, ManualPushMerge, ManualPullMerge,
		AutoPushForce, AutoPullForce, AutoPushMerge, AutoPullMerge:
		return true
	}
	return false
}

// Mode strips the trigger prefix
func (t SyncType) Mode() Mode {
	s := string(t)
	s = strings.TrimPrefix(s, "manual-")
	s = strings.TrimPrefix(s, "auto-")
	return Mode(s)
}

// IsAuto reports whether t was triggered automatically
func (t SyncType) IsAuto() bool {
	return strings.HasPrefix(string(t), "auto-")
}

// IsPush reports whether t writes local state back to the remote
func (t SyncType) IsPush() bool {
	m := t.Mode()
	return m == PushForce || m == PushMerge
}

// Auto returns the automatic variant of t
func (t SyncType) Auto() SyncType {
	return SyncType("auto-" + string(t.Mode()))
}

// ResultItem records the outcome of one run
type ResultItem struct {
	SyncType SyncType  `json:"syncType"`
	SyncTime time.Time `json:"syncTime"`
	Outcome  Outcome   `json:"syncResult"`
	Reason   string    `json:"reason,omitempty"`
}

// Item is one registered backend configuration
type Item struct {
	Key        string       `json:"key"`
	Label      string       `json:"label"`
	Kind       string       `json:"kind"`
	Target     string       `json:"target"`
	Username   string       `json:"username,omitempty"`
	Password   string       `json:"password,omitempty"`
	SyncStatus Status       `json:"syncStatus"`
	SyncResult []ResultItem `json:"syncResult"`
}

// Configured reports whether the item has enough connection parameters to
// run. A gist item only needs its token since an empty target means the
// public GitHub API; every other kind needs a target.
func (i Item) Configured() bool {
	if i.Kind == "gist" {
		return strings.TrimSpace(i.Password) != ""
	}
	return strings.TrimSpace(i.Target) != ""
}

// Config is the unit of persistence: the full list of items
type Config struct {
	ConfigList []Item `json:"configList"`
}

func (c *Config) index(key string) int {
	for i := range c.ConfigList {
		if c.ConfigList[i].Key == key {
			return i
		}
	}
	return -1
}

// prependResult adds r as the newest entry and drops the oldest beyond MaxResults
func prependResult(history []ResultItem, r ResultItem) []ResultItem {
	out := make([]ResultItem, 0, min(len(history)+1, MaxResults))
	out = append(out, r)
	out = append(out, history...)
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out
}
