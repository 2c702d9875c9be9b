// ABOUTME: Sliding-window attempt limiter with escalating lockout per client and action
// ABOUTME: Failed attempts extend the window into a longer block once the limit is hit

package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Action identifies the kind of attempt being limited.
type Action string

// Limited actions.
const (
	ActionLogin   Action = "login"
	ActionRefresh Action = "refresh"
)

// Actions lists every action the limiter knows about, in display order.
var Actions = []Action{ActionLogin, ActionRefresh}

// Policy bounds attempts for one action.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultPolicies returns the stock limits: 5 logins per 5 minutes with a
// 15 minute block, 10 refreshes per minute with a 5 minute block.
func DefaultPolicies() map[Action]Policy {
	return map[Action]Policy{
		ActionLogin: {
			MaxAttempts:   5,
			Window:        5 * time.Minute,
			BlockDuration: 15 * time.Minute,
		},
		ActionRefresh: {
			MaxAttempts:   10,
			Window:        time.Minute,
			BlockDuration: 5 * time.Minute,
		},
	}
}

// Config configures a Limiter. Nil Policies means DefaultPolicies.
type Config struct {
	Policies map[Action]Policy
	Disabled bool
}

// Decision is the outcome of Check.
type Decision struct {
	Allowed    bool
	RetryAfter int // seconds, set when blocked
	Message    string
}

// entry tracks attempts for one (client, action) pair.
type entry struct {
	count          int
	resetAt        time.Time
	firstAttemptAt time.Time
}

type key struct {
	client string
	action Action
}

// Limiter counts attempts per client and action. It is safe for concurrent use.
type Limiter struct {
	mu       sync.RWMutex
	entries  map[key]*entry
	policies map[Action]Policy
	disabled bool
	now      func() time.Time
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	policies := cfg.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{
		entries:  make(map[key]*entry),
		policies: policies,
		disabled: cfg.Disabled,
		now:      time.Now,
	}
}

// Policy returns the policy for action.
func (l *Limiter) Policy(action Action) (Policy, bool) {
	p, ok := l.policies[action]
	return p, ok
}

// Check consumes one attempt for client if it is within its limit. Once the
// limit is reached the attempt is refused until the entry's reset time.
func (l *Limiter) Check(client string, action Action) Decision {
	policy, ok := l.policies[action]
	if l.disabled || !ok {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key{client: client, action: action}
	e, exists := l.entries[k]
	if !exists || now.After(e.resetAt) {
		l.entries[k] = freshEntry(now, policy)
		return Decision{Allowed: true}
	}

	if e.count >= policy.MaxAttempts {
		retryAfter := secondsUntil(now, e.resetAt)
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter,
			Message:    fmt.Sprintf("Too many %s attempts. Please try again in %s.", action, HumanDuration(retryAfter)),
		}
	}

	e.count++
	return Decision{Allowed: true}
}

// RecordFailure counts a failed attempt. When the count reaches the policy
// maximum, the entry is locked until now plus the block duration.
func (l *Limiter) RecordFailure(client string, action Action) {
	policy, ok := l.policies[action]
	if l.disabled || !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key{client: client, action: action}
	e, exists := l.entries[k]
	if !exists || now.After(e.resetAt) {
		l.entries[k] = freshEntry(now, policy)
		return
	}

	e.count++
	if e.count >= policy.MaxAttempts {
		e.resetAt = now.Add(policy.BlockDuration)
	}
}

// Remaining returns how many attempts client has left for action.
func (l *Limiter) Remaining(client string, action Action) int {
	policy, ok := l.policies[action]
	if !ok {
		return 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.remainingLocked(client, action, policy)
}

func (l *Limiter) remainingLocked(client string, action Action, policy Policy) int {
	e, exists := l.entries[key{client: client, action: action}]
	if !exists || l.now().After(e.resetAt) {
		return policy.MaxAttempts
	}
	return max(0, policy.MaxAttempts-e.count)
}

// Reset clears the entries for client. With no actions given, every action is cleared.
func (l *Limiter) Reset(client string, actions ...Action) {
	if len(actions) == 0 {
		actions = Actions
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range actions {
		delete(l.entries, key{client: client, action: a})
	}
}

// SweepExpired removes entries whose window or block has elapsed and returns
// how many were removed.
func (l *Limiter) SweepExpired() int {
	now := l.now()

	l.mu.RLock()
	var stale []key
	for k, e := range l.entries {
		if now.After(e.resetAt) {
			stale = append(stale, k)
		}
	}
	l.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, k := range stale {
		// A fresh attempt may have replaced the entry since the scan.
		if e, ok := l.entries[k]; ok && now.After(e.resetAt) {
			delete(l.entries, k)
			count++
		}
	}
	return count
}

// EntryStatus describes one live entry for diagnostics.
type EntryStatus struct {
	Action            Action `json:"action"`
	Count             int    `json:"count"`
	RemainingAttempts int    `json:"remainingAttempts"`
	ResetInMs         int64  `json:"resetInMs"`
	FirstAttemptAt    int64  `json:"firstAttemptAt"` // unix milliseconds
}

// Status summarizes limiter state.
type Status struct {
	TotalEntries int           `json:"totalEntries"`
	Entries      []EntryStatus `json:"entries,omitempty"`
}

// Status reports the total number of tracked entries and, when client is
// non-empty, the entries belonging to it.
func (l *Limiter) Status(client string) Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{TotalEntries: len(l.entries)}
	if client == "" {
		return st
	}

	now := l.now()
	for _, a := range Actions {
		e, ok := l.entries[key{client: client, action: a}]
		if !ok {
			continue
		}
		st.Entries = append(st.Entries, EntryStatus{
			Action:            a,
			Count:             e.count,
			RemainingAttempts: l.remainingLocked(client, a, l.policies[a]),
			ResetInMs:         max(0, e.resetAt.Sub(now).Milliseconds()),
			FirstAttemptAt:    e.firstAttemptAt.UnixMilli(),
		})
	}
	return st
}

func freshEntry(now time.Time, policy Policy) *entry {
	return &entry{
		count:          1,
		resetAt:        now.Add(policy.Window),
		firstAttemptAt: now,
	}
}

// secondsUntil rounds the time left up to whole seconds, never below one.
func secondsUntil(now, t time.Time) int {
	return max(1, int(math.Ceil(t.Sub(now).Seconds())))
}

// HumanDuration renders seconds for user-facing messages, rounding up to the
// largest sensible unit.
func HumanDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return plural((seconds+59)/60, "minute")
	default:
		return plural((seconds+3599)/3600, "hour")
	}
}

func plural(n int, unit string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, unit)
	}
	return fmt.Sprintf("%d %s", n, unit)
}
