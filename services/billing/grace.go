package billing

import (
	"log"
	"sync"
	"time"
)

// GracePeriodDays is how long a vendor's listing stays active after the
// first failed payment.
const GracePeriodDays = 7

// State of a vendor's failure tracking.
type State int

const (
	StateClean State = iota
	StateInGracePeriod
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateInGracePeriod:
		return "in_grace_period"
	case StateSuspended:
		return "suspended"
	}
	return "unknown"
}

// NoticeKind identifies which billing notice a failure produced.
type NoticeKind string

const (
	NoticeGraceStarted  NoticeKind = "grace_period_started"
	NoticeRetryReminder NoticeKind = "retry_reminder"
	NoticeSuspended     NoticeKind = "listing_suspended"
)

// Notice describes the outcome of a recorded payment failure. It is what
// gets enqueued for asynchronous delivery to the vendor.
type Notice struct {
	Kind           NoticeKind
	FailedAttempts int
	GracePeriodEnd time.Time
}

// FailureTrackerConfig configures a FailureTracker.
type FailureTrackerConfig struct {
	// GracePeriod is the window opened by the first failure. Zero means
	// the default of GracePeriodDays days.
	GracePeriod time.Duration

	// ResetOnSuccess clears the tracker when a payment goes through.
	// Off by default: a vendor who failed once stays in grace-period
	// accounting until suspended or externally reset.
	ResetOnSuccess bool

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// FailureTracker implements the grace-period policy for failed subscription
// payments. One tracker belongs to one orchestrator instance; it is safe for
// concurrent use.
//
// Transitions on RecordFailure:
//   - first failure opens the grace window (now + GracePeriod)
//   - further failures inside the window leave the deadline untouched
//   - failures after the deadline report the listing as suspended
//
// Nothing transitions back to clean automatically.
type FailureTracker struct {
	mu             sync.Mutex
	failedAttempts int
	gracePeriodEnd time.Time

	gracePeriod    time.Duration
	resetOnSuccess bool
	now            func() time.Time
}

func NewFailureTracker(cfg FailureTrackerConfig) *FailureTracker {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = GracePeriodDays * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FailureTracker{
		gracePeriod:    cfg.GracePeriod,
		resetOnSuccess: cfg.ResetOnSuccess,
		now:            cfg.Now,
	}
}

// RecordFailure registers one failed payment attempt and returns the notice
// to deliver to the vendor.
func (t *FailureTracker) RecordFailure() Notice {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.failedAttempts++

	switch {
	case t.failedAttempts == 1:
		t.gracePeriodEnd = now.Add(t.gracePeriod)
		log.Printf("Payment failed. A grace period of %d days has started (until %s)",
			GracePeriodDays, t.gracePeriodEnd.Format(time.RFC3339))
		return Notice{Kind: NoticeGraceStarted, FailedAttempts: t.failedAttempts, GracePeriodEnd: t.gracePeriodEnd}

	case now.Before(t.gracePeriodEnd):
		log.Printf("Payment failed. Retry allowed until %s (attempt %d)",
			t.gracePeriodEnd.Format(time.RFC3339), t.failedAttempts)
		return Notice{Kind: NoticeRetryReminder, FailedAttempts: t.failedAttempts, GracePeriodEnd: t.gracePeriodEnd}

	default:
		log.Printf("Grace period expired. The business listing is temporarily suspended (attempt %d)", t.failedAttempts)
		return Notice{Kind: NoticeSuspended, FailedAttempts: t.failedAttempts, GracePeriodEnd: t.gracePeriodEnd}
	}
}

// RecordSuccess clears the tracker if ResetOnSuccess is enabled. It is a
// no-op otherwise, matching the historical behavior where a past failure is
// never forgotten.
func (t *FailureTracker) RecordSuccess() {
	if !t.resetOnSuccess {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failedAttempts > 0 {
		log.Printf("Payment succeeded after %d failed attempts, clearing failure state", t.failedAttempts)
	}
	t.failedAttempts = 0
	t.gracePeriodEnd = time.Time{}
}

// State reports the tracker's current state.
func (t *FailureTracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failedAttempts == 0 {
		return StateClean
	}
	if t.now().Before(t.gracePeriodEnd) {
		return StateInGracePeriod
	}
	return StateSuspended
}

// Snapshot returns the current attempt count and grace-period deadline.
// The deadline is the zero time while the tracker is clean.
func (t *FailureTracker) Snapshot() (int, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failedAttempts, t.gracePeriodEnd
}
