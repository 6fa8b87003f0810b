package remote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/common/paths"
	"github.com/google/uuid"
)

const (
	recordSuffix = ".json"
	lockSuffix   = ".lock"

	// lockPollInterval is how often a contended lock is retried
	lockPollInterval = 25 * time.Millisecond
)

// LedgerConfig holds configuration for the slot ledger
type LedgerConfig struct {
	// Dir is the shared directory backing the ledger. Independent
	// orchestrator processes must point at the same directory to observe a
	// consistent view.
	Dir string

	// Owner identifies this orchestrator process in lease records. Defaults
	// to a random UUID per process.
	Owner string

	// LockWait bounds how long an acquire/release waits for the per-host
	// lock before giving up
	LockWait time.Duration

	// StaleLockAge is the age past which an abandoned lock file is broken
	StaleLockAge time.Duration
}

// DefaultLedgerConfig returns sensible default ledger configuration
func DefaultLedgerConfig(dir string) LedgerConfig {
	return LedgerConfig{
		Dir:          dir,
		Owner:        uuid.New().String(),
		LockWait:     10 * time.Second,
		StaleLockAge: 1 * time.Minute,
	}
}

// Lease records one occupied slot: who holds it and since when. Leases are
// the unit of crash-recovery reconciliation.
type Lease struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// hostRecord is the persisted per-host ledger record
type hostRecord struct {
	Hostname string  `json:"hostname"`
	Leases   []Lease `json:"leases"`
}

// Slot is the handle returned by a successful acquisition. It must be
// released exactly once.
type Slot struct {
	Hostname string
	Lease    Lease

	mu       sync.Mutex
	released bool
}

// Ledger provides mutually-exclusive slot accounting shared across
// concurrent orchestrator processes, backed by a directory of per-host
// record files. All mutation happens under an exclusive per-host lock file,
// so no observer ever sees a partial increment and no successful acquire is
// lost.
type Ledger struct {
	cfg LedgerConfig
}

// NewLedger creates a slot ledger over the configured shared directory
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Dir == "" {
		return nil, errors.ErrInvalidHostConfig.WithMessage("ledger directory not configured")
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.New().String()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultLedgerConfig(cfg.Dir).LockWait
	}
	if cfg.StaleLockAge <= 0 {
		cfg.StaleLockAge = DefaultLedgerConfig(cfg.Dir).StaleLockAge
	}
	if err := paths.EnsureDirPath(cfg.Dir); err != nil {
		return nil, errors.ErrInvalidHostConfig.WithMessagef(
			"cannot create ledger directory %s", cfg.Dir).WithCause(err)
	}
	return &Ledger{cfg: cfg}, nil
}

// Owner returns the owner ID this ledger stamps into leases
func (l *Ledger) Owner() string {
	return l.cfg.Owner
}

// TryAcquire atomically claims one slot on the host. It returns
// ErrSlotUnavailable, with no side effects, when the host is fully
// occupied. Safe against concurrent processes racing on the same host.
func (l *Ledger) TryAcquire(host Host) (*Slot, error) {
	var slot *Slot
	err := l.withHostLock(host.Hostname, func() error {
		rec, err := l.loadRecord(host.Hostname)
		if err != nil {
			return err
		}
		if len(rec.Leases) >= host.Slots {
			return errors.ErrSlotUnavailable.WithMessagef(
				"%s: %d/%d slots occupied", host.Hostname, len(rec.Leases), host.Slots)
		}

		lease := Lease{
			ID:         uuid.New().String(),
			Owner:      l.cfg.Owner,
			AcquiredAt: time.Now().UTC(),
		}
		rec.Leases = append(rec.Leases, lease)
		if err := l.storeRecord(rec); err != nil {
			return err
		}

		slot = &Slot{Hostname: host.Hostname, Lease: lease}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Acquired build slot",
		"host", slot.Hostname, "lease", slot.Lease.ID, "owner", l.cfg.Owner)
	return slot, nil
}

// Release returns the slot to the host's pool. Releasing the same handle
// twice is an accounting bug and returns ErrInvalidRelease, leaving the
// occupied count untouched. The handle is marked released only once the
// record update succeeds, so a release that lost the host lock can be
// retried.
func (l *Ledger) Release(slot *Slot) error {
	if slot == nil {
		return errors.ErrInvalidRelease.WithMessage("nil slot handle")
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.released {
		return errors.ErrInvalidRelease.WithMessagef(
			"%s: lease %s already released", slot.Hostname, slot.Lease.ID)
	}

	err := l.withHostLock(slot.Hostname, func() error {
		rec, err := l.loadRecord(slot.Hostname)
		if err != nil {
			return err
		}

		kept := rec.Leases[:0]
		found := false
		for _, lease := range rec.Leases {
			if lease.ID == slot.Lease.ID {
				found = true
				continue
			}
			kept = append(kept, lease)
		}
		if !found {
			return errors.ErrInvalidRelease.WithMessagef(
				"%s: lease %s not present in ledger", slot.Hostname, slot.Lease.ID)
		}
		rec.Leases = kept

		if err := l.storeRecord(rec); err != nil {
			return err
		}
		log.Debug("Released build slot", "host", slot.Hostname, "lease", slot.Lease.ID)
		return nil
	})
	if err != nil {
		return err
	}
	slot.released = true
	return nil
}

// Occupied returns the number of leases currently recorded for the host
func (l *Ledger) Occupied(hostname string) (int, error) {
	var occupied int
	err := l.withHostLock(hostname, func() error {
		rec, err := l.loadRecord(hostname)
		if err != nil {
			return err
		}
		occupied = len(rec.Leases)
		return nil
	})
	return occupied, err
}

// Leases returns a copy of the leases currently recorded for the host
func (l *Ledger) Leases(hostname string) ([]Lease, error) {
	var leases []Lease
	err := l.withHostLock(hostname, func() error {
		rec, err := l.loadRecord(hostname)
		if err != nil {
			return err
		}
		leases = append([]Lease(nil), rec.Leases...)
		return nil
	})
	return leases, err
}

// Reconcile drops stale leases across all recorded hosts: leases whose
// owner the liveness check reports dead, and leases older than maxAge when
// maxAge > 0. Run on orchestrator start so slots held by crashed processes
// are reclaimed. Returns the number of leases reclaimed.
func (l *Ledger) Reconcile(alive func(owner string) bool, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return 0, errors.ErrLedgerCorrupt.WithMessagef(
			"cannot read ledger directory %s", l.cfg.Dir).WithCause(err)
	}

	reclaimed := 0
	now := time.Now().UTC()
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		hostname := strings.TrimSuffix(name, recordSuffix)

		err := l.withHostLock(hostname, func() error {
			rec, err := l.loadRecord(hostname)
			if err != nil {
				return err
			}

			kept := rec.Leases[:0]
			for _, lease := range rec.Leases {
				expired := maxAge > 0 && now.Sub(lease.AcquiredAt) > maxAge
				dead := alive != nil && !alive(lease.Owner)
				if expired || dead {
					log.Warn("Reclaiming stale slot lease",
						"host", hostname, "lease", lease.ID, "owner", lease.Owner,
						"acquired_at", lease.AcquiredAt, "expired", expired, "owner_dead", dead)
					reclaimed++
					continue
				}
				kept = append(kept, lease)
			}
			rec.Leases = kept
			return l.storeRecord(rec)
		})
		if err != nil {
			return reclaimed, err
		}
	}

	return reclaimed, nil
}

// withHostLock runs fn while holding the host's exclusive lock file. The
// lock is created with O_EXCL so exactly one process wins; losers poll
// until LockWait elapses. Abandoned locks older than StaleLockAge are
// broken.
func (l *Ledger) withHostLock(hostname string, fn func() error) error {
	lockPath := filepath.Join(l.cfg.Dir, hostname+lockSuffix)
	deadline := time.Now().Add(l.cfg.LockWait)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%s %d\n", l.cfg.Owner, os.Getpid())
			f.Close()
			break
		}
		if !os.IsExist(err) {
			return errors.ErrLedgerLocked.WithMessagef(
				"%s: cannot create lock file", hostname).WithCause(err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > l.cfg.StaleLockAge {
				log.Warn("Breaking stale ledger lock", "host", hostname, "path", lockPath)
				os.Remove(lockPath)
				continue
			}
		}

		if time.Now().After(deadline) {
			return errors.ErrLedgerLocked.WithMessagef(
				"%s: lock held past %s", hostname, l.cfg.LockWait)
		}
		time.Sleep(lockPollInterval)
	}
	defer os.Remove(lockPath)

	return fn()
}

// loadRecord reads the host's ledger record; a missing file is an empty
// record. Corrupt records are surfaced, never silently reset.
func (l *Ledger) loadRecord(hostname string) (*hostRecord, error) {
	path := filepath.Join(l.cfg.Dir, hostname+recordSuffix)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &hostRecord{Hostname: hostname}, nil
	}
	if err != nil {
		return nil, errors.ErrLedgerCorrupt.WithMessagef(
			"%s: cannot read ledger record", hostname).WithCause(err)
	}

	var rec hostRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.ErrLedgerCorrupt.WithMessagef(
			"%s: cannot parse ledger record", hostname).WithCause(err)
	}
	for _, lease := range rec.Leases {
		if lease.ID == "" || lease.Owner == "" {
			return nil, errors.ErrLedgerCorrupt.WithMessagef(
				"%s: lease record missing id or owner", hostname)
		}
	}
	return &rec, nil
}

// storeRecord writes the record atomically (temp file + rename) so readers
// never observe a partial write.
func (l *Ledger) storeRecord(rec *hostRecord) error {
	path := filepath.Join(l.cfg.Dir, rec.Hostname+recordSuffix)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.ErrLedgerCorrupt.WithMessagef(
			"%s: cannot encode ledger record", rec.Hostname).WithCause(err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.ErrLedgerCorrupt.WithMessagef(
			"%s: cannot write ledger record", rec.Hostname).WithCause(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.ErrLedgerCorrupt.WithMessagef(
			"%s: cannot replace ledger record", rec.Hostname).WithCause(err)
	}
	return nil
}
