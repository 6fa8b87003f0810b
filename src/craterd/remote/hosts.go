// Package remote manages the pool of remote build hosts: per-platform host
// configuration, durable slot accounting shared between orchestrator
// processes, and the dispatch protocol for worker builds.
package remote

import (
	"fmt"
	"sort"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the remote package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Host describes one remote build host. Host configuration is loaded once at
// process start and is read-only during a build.
type Host struct {
	// Hostname identifies the host; it is also the ledger record key
	Hostname string `json:"hostname" mapstructure:"hostname"`

	// Username is the SSH login user
	Username string `json:"username" mapstructure:"username"`

	// AuthPath is the path to the SSH private key used to reach the host
	AuthPath string `json:"auth" mapstructure:"auth"`

	// Endpoint is the connection endpoint (host:port); defaults to
	// Hostname:22 when empty
	Endpoint string `json:"endpoint,omitempty" mapstructure:"endpoint"`

	// Enabled excludes the host from selection when false; the host keeps
	// its ledger entry either way
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Slots is the host's build concurrency limit
	Slots int `json:"slots" mapstructure:"slots"`
}

// Addr returns the connection endpoint for the host
func (h Host) Addr() string {
	if h.Endpoint != "" {
		return h.Endpoint
	}
	return h.Hostname + ":22"
}

// HostConfig is the external configuration shape for one host entry
type HostConfig struct {
	Hostname string `json:"hostname" mapstructure:"hostname"`
	Username string `json:"username" mapstructure:"username"`
	Auth     string `json:"auth" mapstructure:"auth"`
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Enabled  *bool  `json:"enabled" mapstructure:"enabled"`
	Slots    int    `json:"slots" mapstructure:"slots"`
}

// Pool maps a platform to its ordered list of candidate hosts, most
// preferred first. The pool is configuration-derived and read-only during a
// build.
type Pool struct {
	hosts map[string][]Host
}

// NewPool builds a Pool from per-platform host configuration. Every entry is
// validated up front: a malformed pool is a configuration error, fatal
// before any build work begins.
func NewPool(config map[string][]HostConfig) (*Pool, error) {
	if len(config) == 0 {
		return nil, errors.ErrInvalidHostConfig.WithMessage("no platforms configured")
	}

	hosts := make(map[string][]Host, len(config))
	for platform, entries := range config {
		if len(entries) == 0 {
			return nil, errors.ErrInvalidHostConfig.WithMessagef(
				"platform %s has no hosts", platform)
		}
		seen := make(map[string]bool, len(entries))
		list := make([]Host, 0, len(entries))
		for _, entry := range entries {
			if entry.Hostname == "" {
				return nil, errors.ErrInvalidHostConfig.WithMessagef(
					"platform %s has a host with no hostname", platform)
			}
			if seen[entry.Hostname] {
				return nil, errors.ErrInvalidHostConfig.WithMessagef(
					"platform %s lists host %s twice", platform, entry.Hostname)
			}
			seen[entry.Hostname] = true
			if entry.Username == "" {
				return nil, errors.ErrInvalidHostConfig.WithMessagef(
					"host %s has no username", entry.Hostname)
			}
			if entry.Slots <= 0 {
				return nil, errors.ErrInvalidHostConfig.WithMessagef(
					"host %s has invalid slot count %d", entry.Hostname, entry.Slots)
			}

			// Hosts are enabled unless explicitly disabled
			enabled := true
			if entry.Enabled != nil {
				enabled = *entry.Enabled
			}

			list = append(list, Host{
				Hostname: entry.Hostname,
				Username: entry.Username,
				AuthPath: entry.Auth,
				Endpoint: entry.Endpoint,
				Enabled:  enabled,
				Slots:    entry.Slots,
			})
		}
		hosts[platform] = list
	}

	return &Pool{hosts: hosts}, nil
}

// Hosts returns the ordered host list for a platform
func (p *Pool) Hosts(platform string) ([]Host, error) {
	list, ok := p.hosts[platform]
	if !ok {
		return nil, errors.ErrUnknownPlatform.WithMessagef(
			"no host pool configured for platform %s", platform)
	}
	return list, nil
}

// Platforms returns the sorted list of platforms with a configured pool
func (p *Pool) Platforms() []string {
	platforms := make([]string, 0, len(p.hosts))
	for platform := range p.hosts {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// AllHosts returns every configured host exactly once, sorted by hostname.
// A host may serve multiple platforms but has a single ledger entry.
func (p *Pool) AllHosts() []Host {
	byName := make(map[string]Host)
	for _, list := range p.hosts {
		for _, h := range list {
			byName[h.Hostname] = h
		}
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	hosts := make([]Host, 0, len(names))
	for _, name := range names {
		hosts = append(hosts, byName[name])
	}
	return hosts
}

func (h Host) String() string {
	return fmt.Sprintf("%s (slots=%d, enabled=%t)", h.Hostname, h.Slots, h.Enabled)
}
