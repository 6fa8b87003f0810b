package client

import (
	"context"
	"fmt"
	"time"
)

// Host matches the server's host pool response
type Host struct {
	Hostname  string   `json:"hostname"`
	Platforms []string `json:"platforms"`
	Enabled   bool     `json:"enabled"`
	Slots     int      `json:"slots"`
	Occupied  int      `json:"occupied"`
}

// HostList matches the server's host list response
type HostList struct {
	Hosts []Host `json:"hosts"`
	Count int    `json:"count"`
}

// Lease is one occupied slot recorded in the ledger
type Lease struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LeaseList matches the server's host lease response
type LeaseList struct {
	Hostname string  `json:"hostname"`
	Leases   []Lease `json:"leases"`
}

// ReconcileResponse matches the server's reconcile response
type ReconcileResponse struct {
	Released int `json:"released"`
}

// ListHosts returns every pool host with its slot occupancy
func (c *Client) ListHosts(ctx context.Context) (*HostList, error) {
	var resp HostList
	if err := c.Get(ctx, "/v1/hosts", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHostLeases returns the active leases recorded for a host
func (c *Client) GetHostLeases(ctx context.Context, hostname string) (*LeaseList, error) {
	var resp LeaseList
	if err := c.Get(ctx, "/v1/hosts/"+hostname+"/leases", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reconcile drops slot leases older than maxAgeHours across all hosts.
// Admin only.
func (c *Client) Reconcile(ctx context.Context, maxAgeHours int) (*ReconcileResponse, error) {
	path := "/v1/hosts/reconcile"
	if maxAgeHours > 0 {
		path = fmt.Sprintf("%s?max_age_hours=%d", path, maxAgeHours)
	}
	var resp ReconcileResponse
	if err := c.Post(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
