package remote

import (
	"github.com/craterbuild/crater/src/common/errors"
)

// Acquired pairs a selected host with the slot claimed on it
type Acquired struct {
	Host Host
	Slot *Slot
}

// Selector picks a host with free capacity for a platform. Selection and
// slot acquisition are a single operation: the first host whose acquisition
// succeeds is returned, so there is no window between choosing a host and
// claiming it.
type Selector struct {
	pool   *Pool
	ledger *Ledger
}

// NewSelector creates a host selector over the pool and ledger
func NewSelector(pool *Pool, ledger *Ledger) *Selector {
	return &Selector{pool: pool, ledger: ledger}
}

// Select walks the platform's host list in preference order and claims a
// slot on the first enabled host with free capacity. When every host is
// disabled or full it returns ErrNoHostAvailable, a retryable condition;
// callers are expected to poll with backoff. Ledger integrity errors
// propagate immediately: they indicate an accounting defect, not contention.
func (s *Selector) Select(platform string) (*Acquired, error) {
	hosts, err := s.pool.Hosts(platform)
	if err != nil {
		return nil, err
	}

	for _, host := range hosts {
		if !host.Enabled {
			log.Debug("Skipping disabled host", "platform", platform, "host", host.Hostname)
			continue
		}

		slot, err := s.ledger.TryAcquire(host)
		if err != nil {
			if errors.Is(err, errors.ErrSlotUnavailable) {
				log.Debug("Host fully occupied", "platform", platform, "host", host.Hostname)
				continue
			}
			return nil, err
		}

		log.Info("Selected build host",
			"platform", platform, "host", host.Hostname, "lease", slot.Lease.ID)
		return &Acquired{Host: host, Slot: slot}, nil
	}

	return nil, errors.ErrNoHostAvailable.WithMessagef(
		"platform %s: all hosts disabled or fully occupied", platform)
}
