package broker

import (
	"fmt"
	"time"

	"appforge/internal/store"
)

// quotaWindow is the rolling period over which demo usage is counted.
const quotaWindow = 24 * time.Hour

// QuotaStatus describes the current demo quota window.
type QuotaStatus struct {
	Used        int
	Limit       int
	WindowStart time.Time
	ResetsAt    time.Time
}

// String renders the quota as "used/limit".
func (q QuotaStatus) String() string {
	return fmt.Sprintf("%d/%d", q.Used, q.Limit)
}

// CanUseDemoKey reports whether the demo credential still has quota left
// after applying the sliding-window reset rule. The reset is applied (and
// persisted) as part of the check so stale windows do not linger.
func (b *Broker) CanUseDemoKey() (bool, error) {
	var allowed bool
	err := b.store.Update(func(s *store.State) error {
		b.resetIfExpired(s)
		allowed = s.QuotaCount < b.dailyLimit
		return nil
	})
	return allowed, err
}

// IncrementUsage records one confirmed successful use of the demo
// credential. The reset rule is applied first; the increment persists
// atomically with it, so overlapping jobs cannot undercount.
func (b *Broker) IncrementUsage() error {
	return b.store.Update(func(s *store.State) error {
		b.resetIfExpired(s)
		if s.QuotaWindowStart.IsZero() {
			s.QuotaWindowStart = b.now()
		}
		s.QuotaCount++
		return nil
	})
}

// Quota returns the current quota status without mutating it.
func (b *Broker) Quota() (QuotaStatus, error) {
	state, err := b.store.Get()
	if err != nil {
		return QuotaStatus{}, err
	}

	status := QuotaStatus{
		Used:        state.QuotaCount,
		Limit:       b.dailyLimit,
		WindowStart: state.QuotaWindowStart,
	}
	if !state.QuotaWindowStart.IsZero() {
		status.ResetsAt = state.QuotaWindowStart.Add(quotaWindow)
		if !b.now().Before(status.ResetsAt) {
			status.Used = 0
			status.WindowStart = time.Time{}
			status.ResetsAt = time.Time{}
		}
	}
	return status, nil
}

// resetIfExpired zeroes the window once now - windowStart >= 24h. Count
// and window start move together; callers persist the state they mutate.
func (b *Broker) resetIfExpired(s *store.State) {
	if s.QuotaWindowStart.IsZero() {
		return
	}
	if b.now().Sub(s.QuotaWindowStart) >= quotaWindow {
		s.QuotaCount = 0
		s.QuotaWindowStart = time.Time{}
	}
}
