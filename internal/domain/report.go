package domain

import "time"

// BuildReport summarizes one build pass.
type BuildReport struct {
	Started        time.Time
	Finished       time.Time
	Processed      []string
	Built          []string
	Errored        []string
	Deleted        []string
	Disabled       []string
	Activated      bool
	ReloadWarnings string
}

// ReconcileReport summarizes one reconcile pass.
type ReconcileReport struct {
	Started     time.Time
	Finished    time.Time
	Desired     []string
	Active      []string
	Removed     []string
	LogsRemoved []string
	Failed      []string
	Reloaded    bool
}

// SetupReport lists what the bootstrap wrote.
type SetupReport struct {
	Directories []string
	Files       []string
	Version     string
	Reloaded    bool
}

// ProxyStatus is the parsed nginx stub_status output.
type ProxyStatus struct {
	ActiveConnections int64 `json:"active_connections"`
	Accepts           int64 `json:"accepts"`
	Handled           int64 `json:"handled"`
	Requests          int64 `json:"requests"`
	Reading           int64 `json:"reading"`
	Writing           int64 `json:"writing"`
	Waiting           int64 `json:"waiting"`
}

// RouteCounts summarizes the route store.
type RouteCounts struct {
	Total    int `json:"total"`
	Changed  int `json:"changed"`
	Errored  int `json:"errored"`
	Disabled int `json:"disabled"`
	Deleting int `json:"deleting"`
}
