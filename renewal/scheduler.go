// Package renewal refreshes the access token shortly before it expires,
// independent of API traffic.
package renewal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-inventory-session/internal/config"
	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/internal/metrics"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	TriggerTimer       = "timer"
	TriggerImmediate   = "immediate"
	TriggerSafetyCheck = "safety_check"
)

// Session is the part of session.Manager the scheduler drives.
type Session interface {
	IsAuthenticated() bool
	Refresh(ctx context.Context) (bool, error)
	Logout(ctx context.Context)
	EnsureConsistent(ctx context.Context) bool
	Subscribe(fn session.Listener) (unsubscribe func())
}

// TokenReader reads the current access token.
type TokenReader interface {
	AccessToken() (string, bool)
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFuncFunc starts a Timer that calls f after d.
type AfterFuncFunc func(d time.Duration, f func()) Timer

// Scheduler arms a one-shot timer for (expiry - threshold) whenever the
// session becomes authenticated and cancels it when the session ends. A
// periodic safety check re-validates freshness in case a timer is missed.
type Scheduler struct {
	session   Session
	tokens    TokenReader
	threshold time.Duration
	minDelay  time.Duration
	interval  time.Duration
	nowFunc   func() time.Time
	afterFunc AfterFuncFunc
	limiter   *rate.Limiter
	cron      *cron.Cron

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	running     bool
	epoch       uint64
	timer       Timer
	dueAt       time.Time
	recoverySeq uint64
	recovering  uint64
	unsubscribe func()
	inflight    sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNowFunc sets the clock.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.nowFunc = now
	}
}

// WithAfterFunc replaces time.AfterFunc, mainly for tests.
func WithAfterFunc(afterFunc AfterFuncFunc) Option {
	return func(s *Scheduler) {
		s.afterFunc = afterFunc
	}
}

// WithLimiter bounds how often immediate refreshes may run.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(s *Scheduler) {
		s.limiter = limiter
	}
}

// WithoutSafetyCheck disables the periodic check; Check can still be called.
func WithoutSafetyCheck() Option {
	return func(s *Scheduler) {
		s.interval = 0
	}
}

// NewScheduler returns a stopped Scheduler.
func NewScheduler(sess Session, tokens TokenReader, cfg config.SessionConfig, options ...Option) *Scheduler {
	s := &Scheduler{
		session:   sess,
		tokens:    tokens,
		threshold: cfg.GetRenewalThreshold(),
		minDelay:  cfg.GetMinRenewalDelay(),
		interval:  cfg.GetSafetyCheckInterval(),
		nowFunc:   time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range options {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Every(s.minDelay), 3)
	}
	return s
}

// Start subscribes to session changes, starts the safety check and schedules
// a renewal for the current session, if any.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("renewal scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	if s.interval > 0 {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.Check(s.ctx) }); err != nil {
			s.running = false
			s.cancel()
			s.mu.Unlock()
			return fmt.Errorf("schedule safety check: %w", err)
		}
		s.cron.Start()
	}
	s.mu.Unlock()

	unsubscribe := s.session.Subscribe(s.OnSessionChange)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.reconcileLocked(TriggerTimer)
	s.mu.Unlock()

	log.Debug().Dur("threshold", s.threshold).Dur("safety_interval", s.interval).Msg("renewal scheduler started")
	return nil
}

// Stop cancels every timer and waits for an in-flight renewal to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancelLocked()
	unsubscribe, c, cancel := s.unsubscribe, s.cron, s.cancel
	s.unsubscribe, s.cron = nil, nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	cancel()
	s.inflight.Wait()
	log.Debug().Msg("renewal scheduler stopped")
}

// DueAt returns when the armed timer fires, or false if none is armed.
func (s *Scheduler) DueAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueAt, s.timer != nil
}

// OnSessionChange re-plans after any session transition.
func (s *Scheduler) OnSessionChange(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcileLocked(TriggerTimer)
}

// Check is the periodic safety check. It forces logout on an inconsistent
// session and refreshes a token that is already inside the threshold.
func (s *Scheduler) Check(ctx context.Context) {
	if !s.session.EnsureConsistent(ctx) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcileLocked(TriggerSafetyCheck)
}

// cancelLocked invalidates every pending timer and renewal.
func (s *Scheduler) cancelLocked() {
	s.epoch++
	s.recovering = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dueAt = time.Time{}
}

func (s *Scheduler) reconcileLocked(trigger string) {
	if !s.running {
		return
	}
	authenticated := s.session.IsAuthenticated()
	if authenticated && s.recovering != 0 {
		// the renewal started for an undecodable token decides what happens next
		return
	}
	s.cancelLocked()

	if !authenticated {
		return
	}
	accessToken, ok := s.tokens.AccessToken()
	if !ok {
		return
	}

	now := s.nowFunc()
	exp, err := token.DecodeExpiry(accessToken)
	if err != nil {
		log.Info().Err(err).Msg("access token undecodable, refreshing now")
		s.recoverySeq++
		s.recovering = s.recoverySeq
		s.refreshNowLocked(now, TriggerImmediate, s.recovering)
		return
	}

	remaining := exp.Sub(now)
	if remaining <= s.threshold {
		if trigger == TriggerTimer {
			trigger = TriggerImmediate
		}
		s.refreshNowLocked(now, trigger, 0)
		return
	}

	delay := remaining - s.threshold
	if delay < s.minDelay {
		delay = s.minDelay
	}
	s.armLocked(now, delay, TriggerTimer, 0)
}

// refreshNowLocked renews at once unless the limiter asks to wait. A non-zero
// recovery marks the renewal of an undecodable token.
func (s *Scheduler) refreshNowLocked(now time.Time, trigger string, recovery uint64) {
	wait := s.limiter.ReserveN(now, 1).DelayFrom(now)
	if wait > 0 {
		if wait < s.minDelay {
			wait = s.minDelay
		}
		log.Debug().Dur("wait", wait).Msg("renewal rate limited, deferring")
		s.armLocked(now, wait, trigger, recovery)
		return
	}
	epoch := s.epoch
	s.spawnLocked(func(ctx context.Context) { s.renew(ctx, epoch, trigger, recovery) })
}

func (s *Scheduler) armLocked(now time.Time, delay time.Duration, trigger string, recovery uint64) {
	epoch := s.epoch
	s.dueAt = now.Add(delay)
	s.timer = s.afterFunc(delay, func() {
		s.mu.Lock()
		if epoch != s.epoch || !s.running {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.dueAt = time.Time{}
		s.spawnLocked(func(ctx context.Context) { s.renew(ctx, epoch, trigger, recovery) })
		s.mu.Unlock()
	})
	log.Debug().Time("due_at", s.dueAt).Str("trigger", trigger).Msg("renewal scheduled")
}

// spawnLocked runs fn outside the lock; session calls re-enter via events.
func (s *Scheduler) spawnLocked(fn func(ctx context.Context)) {
	ctx := s.ctx
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn(ctx)
	}()
}

func (s *Scheduler) renew(ctx context.Context, epoch uint64, trigger string, recovery uint64) {
	s.mu.Lock()
	current := epoch == s.epoch && s.running
	s.mu.Unlock()
	if !current {
		return
	}

	metrics.Renewal(trigger)
	ok, err := s.session.Refresh(ctx)
	if recovery != 0 {
		s.settleRecovery(recovery, err)
	}
	if err != nil {
		// the manager logs out on a failed refresh; its event cancels timers
		log.Info().Err(err).Str("trigger", trigger).Msg("renewal failed")
		return
	}
	log.Debug().Bool("refreshed", ok).Str("trigger", trigger).Msg("renewal finished")
}

// settleRecovery finishes the renewal of an undecodable token: the session is
// logged out unless the refresh produced a token with a readable expiry.
func (s *Scheduler) settleRecovery(recovery uint64, refreshErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.recovering != recovery {
		return
	}
	s.recovering = 0
	if !s.session.IsAuthenticated() {
		return
	}

	if sesserrors.Is(refreshErr, sesserrors.ErrStaleSession) {
		// a newer session replaced the one with the undecodable token
		s.reconcileLocked(TriggerTimer)
		return
	}

	reason := refreshErr
	if reason == nil {
		accessToken, _ := s.tokens.AccessToken()
		_, reason = token.DecodeExpiry(accessToken)
	}
	if reason != nil {
		log.Warn().Err(reason).Msg("no usable access token after refresh, logging out")
		s.spawnLocked(func(ctx context.Context) { s.session.Logout(ctx) })
		return
	}
	s.reconcileLocked(TriggerTimer)
}
