// Package watch follows a running episim instance through its HTTP API.
package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/episim/internal/agents"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	RunID      string `json:"run_id"`
	Step       int    `json:"step"`
	Population int    `json:"population"`
	Healthy    int    `json:"healthy"`
	Sick       int    `json:"sick"`
	Immune     int    `json:"immune"`
	Over       bool   `json:"over"`
	Localised  bool   `json:"localised"`
	Restricted bool   `json:"restricted"`
	Quarantine bool   `json:"quarantine"`
	Seed       int64  `json:"seed"`
}

// Observation is one poll of the API: the status plus the history entries
// that appeared since the previous poll.
type Observation struct {
	Status Status
	New    []agents.Counts
}

type historyPage struct {
	Since   int             `json:"since"`
	History []agents.Counts `json:"history"`
}

// Observer polls the API and accumulates the full count history.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client

	history []agents.Counts
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches the status and any history entries not seen yet.
func (o *Observer) Observe() (*Observation, error) {
	obs := &Observation{}
	if err := o.fetchJSON("/api/v1/status", &obs.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}

	var page historyPage
	if err := o.fetchJSON(fmt.Sprintf("/api/v1/history?since=%d", len(o.history)), &page); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if page.Since != len(o.history) {
		return nil, fmt.Errorf("history restarted at step %d, expected %d", page.Since, len(o.history))
	}
	o.history = append(o.history, page.History...)
	obs.New = page.History
	return obs, nil
}

// History returns every count entry observed so far, indexed by step.
func (o *Observer) History() []agents.Counts {
	return o.history
}

// Ready reports whether the API is serving a simulation.
func (o *Observer) Ready() bool {
	resp, err := o.HTTPClient.Get(o.BaseURL + "/api/v1/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
