package gateway

import (
	"sync"
	"time"
)

// AuthLimiter locks out addresses that repeatedly present a bad token.
// Each successive lockout doubles, up to maxLockout.
type AuthLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*attemptInfo
	maxAttempts int
	lockout     time.Duration
	maxLockout  time.Duration
	now         func() time.Time
}

type attemptInfo struct {
	failed       int
	lockedUntil  time.Time
	lockoutCount int
}

// NewAuthLimiter creates a limiter, filling in defaults for zero settings
func NewAuthLimiter(maxAttempts int, lockout, maxLockout time.Duration) *AuthLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 30 * time.Second
	}
	if maxLockout < lockout {
		maxLockout = 10 * lockout
	}
	return &AuthLimiter{
		attempts:    make(map[string]*attemptInfo),
		maxAttempts: maxAttempts,
		lockout:     lockout,
		maxLockout:  maxLockout,
		now:         time.Now,
	}
}

// IsLocked reports whether ip is locked out and for how much longer
func (l *AuthLimiter) IsLocked(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.attempts[ip]
	if !ok {
		return false, 0
	}
	if now := l.now(); now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailure counts a bad token from ip and reports whether it is now locked out
func (l *AuthLimiter) RecordFailure(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.attempts[ip]
	if !ok {
		info = &attemptInfo{}
		l.attempts[ip] = info
	}

	now := l.now()
	if now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}

	info.failed++
	if info.failed < l.maxAttempts {
		return false, 0
	}

	info.lockoutCount++
	d := l.lockout
	for i := 1; i < info.lockoutCount; i++ {
		if d >= l.maxLockout/2 {
			d = l.maxLockout
			break
		}
		d *= 2
	}
	if d > l.maxLockout {
		d = l.maxLockout
	}
	info.lockedUntil = now.Add(d)
	info.failed = 0
	return true, d
}

// RecordSuccess clears the failure history of ip
func (l *AuthLimiter) RecordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// Cleanup drops entries that unlocked more than ten minutes ago with no new failures
func (l *AuthLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-10 * time.Minute)
	for ip, info := range l.attempts {
		if info.lockedUntil.Before(cutoff) && info.failed == 0 {
			delete(l.attempts, ip)
		}
	}
}
