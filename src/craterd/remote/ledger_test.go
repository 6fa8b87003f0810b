package remote

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/craterbuild/crater/src/common/errors"
)

func testLedger(t *testing.T, dir, owner string) *Ledger {
	t.Helper()
	cfg := DefaultLedgerConfig(dir)
	if owner != "" {
		cfg.Owner = owner
	}
	l, err := NewLedger(cfg)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	return l
}

func testHost(hostname string, slots int) Host {
	return Host{
		Hostname: hostname,
		Username: "builder",
		Enabled:  true,
		Slots:    slots,
	}
}

func TestLedger_AcquireUpToCapacity(t *testing.T) {
	l := testLedger(t, t.TempDir(), "")
	host := testHost("worker-1", 2)

	s1, err := l.TryAcquire(host)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	s2, err := l.TryAcquire(host)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if s1.Lease.ID == s2.Lease.ID {
		t.Error("expected distinct lease IDs")
	}

	if _, err := l.TryAcquire(host); !errors.Is(err, errors.ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable past capacity, got %v", err)
	}

	occupied, err := l.Occupied(host.Hostname)
	if err != nil {
		t.Fatalf("occupied failed: %v", err)
	}
	if occupied != 2 {
		t.Errorf("expected 2 occupied slots, got %d", occupied)
	}
}

func TestLedger_ReleaseFreesSlot(t *testing.T) {
	l := testLedger(t, t.TempDir(), "")
	host := testHost("worker-1", 1)

	slot, err := l.TryAcquire(host)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if _, err := l.TryAcquire(host); !errors.Is(err, errors.ErrSlotUnavailable) {
		t.Fatalf("expected host full, got %v", err)
	}

	if err := l.Release(slot); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	if _, err := l.TryAcquire(host); err != nil {
		t.Errorf("expected acquire to succeed after release, got %v", err)
	}
}

func TestLedger_DoubleReleaseRejected(t *testing.T) {
	l := testLedger(t, t.TempDir(), "")
	host := testHost("worker-1", 1)

	slot, err := l.TryAcquire(host)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Release(slot); err != nil {
		t.Fatalf("first release failed: %v", err)
	}

	err = l.Release(slot)
	if !errors.Is(err, errors.ErrInvalidRelease) {
		t.Errorf("expected ErrInvalidRelease on second release, got %v", err)
	}

	// The double release must not free someone else's slot
	other, err := l.TryAcquire(host)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	_ = l.Release(slot)
	occupied, _ := l.Occupied(host.Hostname)
	if occupied != 1 {
		t.Errorf("expected 1 occupied slot after double release, got %d", occupied)
	}
	if err := l.Release(other); err != nil {
		t.Errorf("release of valid slot failed: %v", err)
	}
}

func TestLedger_ReleaseRetriesAfterLockTimeout(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultLedgerConfig(dir)
	cfg.LockWait = 50 * time.Millisecond
	cfg.StaleLockAge = time.Hour
	l, err := NewLedger(cfg)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	host := testHost("worker-1", 1)

	slot, err := l.TryAcquire(host)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Hold the host lock so the release cannot get in
	lockPath := filepath.Join(dir, host.Hostname+lockSuffix)
	if err := os.WriteFile(lockPath, []byte("other 1\n"), 0644); err != nil {
		t.Fatalf("planting lock file: %v", err)
	}
	if err := l.Release(slot); !errors.Is(err, errors.ErrLedgerLocked) {
		t.Fatalf("expected ErrLedgerLocked, got %v", err)
	}

	// A failed write must not consume the handle
	os.Remove(lockPath)
	if err := l.Release(slot); err != nil {
		t.Fatalf("retried release failed: %v", err)
	}
	occupied, _ := l.Occupied(host.Hostname)
	if occupied != 0 {
		t.Errorf("expected slot freed after retry, %d still occupied", occupied)
	}

	err = l.Release(slot)
	if !errors.Is(err, errors.ErrInvalidRelease) {
		t.Errorf("expected ErrInvalidRelease after successful release, got %v", err)
	}
}

func TestLedger_ConcurrentAcquireNeverOversubscribes(t *testing.T) {
	l := testLedger(t, t.TempDir(), "")
	host := testHost("worker-1", 3)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.TryAcquire(host)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	acquired := 0
	for err := range results {
		if err == nil {
			acquired++
		} else if !errors.Is(err, errors.ErrSlotUnavailable) {
			t.Errorf("unexpected acquire error: %v", err)
		}
	}
	if acquired != 3 {
		t.Errorf("expected exactly 3 successful acquires, got %d", acquired)
	}

	occupied, _ := l.Occupied(host.Hostname)
	if occupied != 3 {
		t.Errorf("expected 3 occupied slots, got %d", occupied)
	}
}

func TestLedger_SharedDirectoryVisibility(t *testing.T) {
	dir := t.TempDir()
	l1 := testLedger(t, dir, "orchestrator-a")
	l2 := testLedger(t, dir, "orchestrator-b")
	host := testHost("worker-1", 2)

	if _, err := l1.TryAcquire(host); err != nil {
		t.Fatalf("acquire on first ledger failed: %v", err)
	}

	// The second process sees the first one's lease
	occupied, err := l2.Occupied(host.Hostname)
	if err != nil {
		t.Fatalf("occupied on second ledger failed: %v", err)
	}
	if occupied != 1 {
		t.Errorf("expected second process to observe 1 lease, got %d", occupied)
	}

	if _, err := l2.TryAcquire(host); err != nil {
		t.Fatalf("acquire on second ledger failed: %v", err)
	}
	if _, err := l1.TryAcquire(host); !errors.Is(err, errors.ErrSlotUnavailable) {
		t.Errorf("expected host full across processes, got %v", err)
	}
}

func TestLedger_ReconcileDeadOwner(t *testing.T) {
	dir := t.TempDir()
	crashed := testLedger(t, dir, "crashed-orchestrator")
	host := testHost("worker-1", 1)

	if _, err := crashed.TryAcquire(host); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// A restarted orchestrator reclaims leases whose owner is gone
	restarted := testLedger(t, dir, "restarted-orchestrator")
	released, err := restarted.Reconcile(func(owner string) bool {
		return owner == restarted.Owner()
	}, 0)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if released != 1 {
		t.Errorf("expected 1 reclaimed lease, got %d", released)
	}

	if _, err := restarted.TryAcquire(host); err != nil {
		t.Errorf("expected acquire to succeed after reconcile, got %v", err)
	}
}

func TestLedger_ReconcileMaxAge(t *testing.T) {
	l := testLedger(t, t.TempDir(), "")
	host := testHost("worker-1", 2)

	if _, err := l.TryAcquire(host); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	released, err := l.Reconcile(nil, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if released != 1 {
		t.Errorf("expected 1 expired lease reclaimed, got %d", released)
	}

	// Fresh leases survive an age-based pass
	if _, err := l.TryAcquire(host); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	released, err = l.Reconcile(nil, time.Hour)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if released != 0 {
		t.Errorf("expected no leases reclaimed, got %d", released)
	}
}

func TestLedger_CorruptRecordSurfaced(t *testing.T) {
	dir := t.TempDir()
	l := testLedger(t, dir, "")
	host := testHost("worker-1", 1)

	if err := os.WriteFile(filepath.Join(dir, "worker-1.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt record: %v", err)
	}

	if _, err := l.TryAcquire(host); !errors.Is(err, errors.ErrLedgerCorrupt) {
		t.Errorf("expected ErrLedgerCorrupt, got %v", err)
	}
}

func TestLedger_Leases(t *testing.T) {
	l := testLedger(t, t.TempDir(), "owner-1")
	host := testHost("worker-1", 2)

	if _, err := l.TryAcquire(host); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	leases, err := l.Leases(host.Hostname)
	if err != nil {
		t.Fatalf("leases failed: %v", err)
	}
	if len(leases) != 1 {
		t.Fatalf("expected 1 lease, got %d", len(leases))
	}
	if leases[0].Owner != "owner-1" {
		t.Errorf("expected owner-1, got %s", leases[0].Owner)
	}
	if leases[0].AcquiredAt.IsZero() {
		t.Error("expected a non-zero acquisition timestamp")
	}
}
