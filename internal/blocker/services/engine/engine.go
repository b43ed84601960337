// Package engine owns the authoritative blocking state and drives every
// change through a single mutate, purge, resolve, enforce, persist
// pipeline under one lock.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dzli1/blocking/internal/blocker/common/clock"
	"github.com/dzli1/blocking/internal/blocker/common/log"
	"github.com/dzli1/blocking/internal/blocker/domain"
	"github.com/dzli1/blocking/internal/blocker/repos/blocklist"
	"github.com/dzli1/blocking/internal/blocker/repos/exceptions"
	"github.com/dzli1/blocking/internal/blocker/repos/journal"
	"github.com/dzli1/blocking/internal/blocker/repos/state"
)

// DefaultBlocked seeds the blocklist the first time the daemon runs
// without a state document.
var DefaultBlocked = []domain.Site{
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"reddit.com",
	"tiktok.com",
	"youtube.com",
}

// Options wires the engine's collaborators. Enforcer and State are
// required; a nil Recorder disables journaling.
type Options struct {
	Clock    clock.Clock
	Logger   log.Logger
	Enforcer Enforcer
	State    StatePersister
	Recorder Recorder
}

// Engine is the single writer of blocking state. One mutex serializes
// every command, tick and teardown, so the in-memory model, the hosts
// table and the state document can never diverge mid-flight.
type Engine struct {
	mu        sync.Mutex
	blocklist *blocklist.Store
	ledger    *exceptions.Ledger
	enforcer  Enforcer
	state     StatePersister
	recorder  Recorder
	clock     clock.Clock
	logger    log.Logger
}

// New returns an engine with empty state; call Bootstrap to restore the
// durable document.
func New(opts Options) (*Engine, error) {
	if opts.Enforcer == nil {
		return nil, errors.New("engine: enforcer is required")
	}
	if opts.State == nil {
		return nil, errors.New("engine: state persister is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Engine{
		blocklist: blocklist.New(),
		ledger:    exceptions.New(),
		enforcer:  opts.Enforcer,
		state:     opts.State,
		recorder:  opts.Recorder,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}, nil
}

// Bootstrap restores state from the durable document, seeding the default
// blocklist on first run. An unreadable document is fatal; individual bad
// entries inside a valid one are dropped with a warning.
func (e *Engine) Bootstrap() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.state.Load()
	if err != nil {
		return fmt.Errorf("engine: loading state: %w", err)
	}
	if doc == nil {
		for _, site := range DefaultBlocked {
			e.blocklist.Add(site)
		}
		e.logger.Info(map[string]any{"seeded": len(DefaultBlocked)}, "no state document, seeding defaults")
		return e.persistLocked()
	}

	e.blocklist.SetEnabled(doc.Enabled)
	for _, raw := range doc.Blocked {
		site, err := domain.Normalize(raw)
		if err != nil {
			e.logger.Warn(map[string]any{"entry": raw, "error": err.Error()}, "dropping unusable blocklist entry")
			continue
		}
		e.blocklist.Add(site)
	}
	for _, rec := range doc.Exceptions {
		site, err := domain.Normalize(rec.Site)
		if err != nil {
			e.logger.Warn(map[string]any{"entry": rec.Site, "error": err.Error()}, "dropping unusable exception entry")
			continue
		}
		e.ledger.Restore(domain.Exception{Site: site, Until: rec.Until.Time()})
	}
	e.logger.Info(map[string]any{
		"enabled":    e.blocklist.Enabled(),
		"blocked":    e.blocklist.Len(),
		"exceptions": e.ledger.Len(),
	}, "state restored")
	return nil
}

// AddSite normalizes raw and puts it on the blocklist. The returned
// snapshot reflects memory even when enforcement or persistence fail;
// the error then carries those failures.
func (e *Engine) AddSite(raw string) (domain.Status, error) {
	site, err := domain.Normalize(raw)
	if err != nil {
		return domain.Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	added := e.blocklist.Add(site)
	detail := "already present"
	if added {
		detail = "added"
	}
	_, err = e.applyLocked(true)
	e.record(journal.KindCommand, "add_site", site, detail, err)
	e.logger.Info(map[string]any{"site": site.String(), "added": added}, "add site")
	return e.snapshotLocked(), err
}

// RemoveSite normalizes raw and drops it from the blocklist. Removing an
// absent site is a no-op that still re-enforces.
func (e *Engine) RemoveSite(raw string) (domain.Status, error) {
	site, err := domain.Normalize(raw)
	if err != nil {
		return domain.Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.blocklist.Remove(site)
	detail := "not present"
	if removed {
		detail = "removed"
	}
	_, err = e.applyLocked(true)
	e.record(journal.KindCommand, "remove_site", site, detail, err)
	e.logger.Info(map[string]any{"site": site.String(), "removed": removed}, "remove site")
	return e.snapshotLocked(), err
}

// GrantException suspends blocking for the site for the given number of
// minutes. Re-granting replaces the deadline, shorter or longer.
func (e *Engine) GrantException(raw string, minutes int) (domain.Status, error) {
	site, err := domain.Normalize(raw)
	if err != nil {
		return domain.Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ex, err := e.ledger.Grant(site, minutes, e.clock.Now())
	if err != nil {
		return domain.Status{}, err
	}
	_, err = e.applyLocked(true)
	e.record(journal.KindCommand, "grant_exception", site, fmt.Sprintf("%d minutes", minutes), err)
	e.logger.Info(map[string]any{
		"site":  site.String(),
		"until": ex.Until,
	}, "exception granted")
	return e.snapshotLocked(), err
}

// RevokeException ends the site's exception early. Revoking an absent
// exception is a no-op that still re-enforces.
func (e *Engine) RevokeException(raw string) (domain.Status, error) {
	site, err := domain.Normalize(raw)
	if err != nil {
		return domain.Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	revoked := e.ledger.Revoke(site)
	detail := "not present"
	if revoked {
		detail = "revoked"
	}
	_, err = e.applyLocked(true)
	e.record(journal.KindCommand, "revoke_exception", site, detail, err)
	e.logger.Info(map[string]any{"site": site.String(), "revoked": revoked}, "exception revoked")
	return e.snapshotLocked(), err
}

// Toggle flips the master switch.
func (e *Engine) Toggle() (domain.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	enabled := !e.blocklist.Enabled()
	e.blocklist.SetEnabled(enabled)
	_, err := e.applyLocked(true)
	e.record(journal.KindCommand, "toggle", "", fmt.Sprintf("enabled=%t", enabled), err)
	e.logger.Info(map[string]any{"enabled": enabled}, "blocking toggled")
	return e.snapshotLocked(), err
}

// Status returns a snapshot without changing any state.
func (e *Engine) Status() domain.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Reconcile re-derives and re-enforces the desired state. The scheduler,
// the hosts watcher and startup call it to repair drift; the state
// document is rewritten only when the purge dropped an exception.
func (e *Engine) Reconcile() (domain.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.applyLocked(false)
	if res.Updated || err != nil {
		e.record(journal.KindReconcile, "tick", "", fmt.Sprintf("%d hostnames", res.Hostnames), err)
	}
	if res.Updated {
		e.logger.Info(map[string]any{"hostnames": res.Hostnames}, "drift repaired")
	}
	return e.snapshotLocked(), err
}

// Teardown clears the managed region so nothing stays blocked while the
// daemon is down. In-memory and durable state keep the blocklist; the
// next startup re-enforces it.
func (e *Engine) Teardown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.enforcer.Clear()
	e.record(journal.KindReconcile, "teardown", "", "", err)
	if err != nil {
		e.logger.Error(map[string]any{"error": err.Error()}, "teardown failed to clear hosts table")
		return err
	}
	if res.Updated {
		e.logger.Info(nil, "hosts table cleared")
	}
	return nil
}

// applyLocked runs the shared tail of every mutation while the lock is
// held: purge expired exceptions, resolve the effective list, enforce it,
// persist. Enforcement and persistence failures are joined onto the
// returned error; the in-memory mutation stands either way and the next
// pass retries.
func (e *Engine) applyLocked(persistAlways bool) (domain.EnforceResult, error) {
	now := e.clock.Now()
	purged := e.ledger.PurgeExpired(now)
	if purged > 0 {
		e.logger.Debug(map[string]any{"purged": purged}, "expired exceptions dropped")
	}

	effective := Resolve(e.blocklist.List(), e.ledger, e.blocklist.Enabled(), now)
	res, enforceErr := e.enforcer.Apply(effective)
	if enforceErr != nil {
		e.logger.Error(map[string]any{"error": enforceErr.Error()}, "enforcement failed")
	}

	var persistErr error
	if persistAlways || purged > 0 {
		persistErr = e.persistLocked()
	}
	return res, errors.Join(enforceErr, persistErr)
}

func (e *Engine) persistLocked() error {
	sites := e.blocklist.List()
	doc := &state.Document{
		Enabled:    e.blocklist.Enabled(),
		Blocked:    make([]string, 0, len(sites)),
		Exceptions: make([]state.ExceptionRecord, 0, e.ledger.Len()),
	}
	for _, site := range sites {
		doc.Blocked = append(doc.Blocked, site.String())
	}
	for _, ex := range e.ledger.List() {
		doc.Exceptions = append(doc.Exceptions, state.ExceptionRecord{
			Site:  ex.Site.String(),
			Until: state.Timestamp(ex.Until),
		})
	}
	if err := e.state.Save(doc); err != nil {
		e.logger.Error(map[string]any{"error": err.Error()}, "state persist failed")
		return err
	}
	return nil
}

func (e *Engine) snapshotLocked() domain.Status {
	now := e.clock.Now()
	sites := e.blocklist.List()

	st := domain.Status{
		Enabled:    e.blocklist.Enabled(),
		Blocked:    make([]string, 0, len(sites)),
		Exceptions: make([]domain.ExceptionView, 0, e.ledger.Len()),
		Effective:  make([]string, 0, len(sites)),
	}
	for _, site := range sites {
		st.Blocked = append(st.Blocked, site.String())
	}
	for _, ex := range e.ledger.List() {
		st.Exceptions = append(st.Exceptions, domain.NewExceptionView(ex, now))
	}
	for _, site := range Resolve(sites, e.ledger, e.blocklist.Enabled(), now) {
		st.Effective = append(st.Effective, site.String())
	}
	return st
}

func (e *Engine) record(kind, action string, site domain.Site, detail string, opErr error) {
	if e.recorder == nil {
		return
	}
	ev := journal.Event{
		Time:   e.clock.Now(),
		Kind:   kind,
		Action: action,
		Site:   site.String(),
		Detail: detail,
	}
	if opErr != nil {
		ev.Error = opErr.Error()
	}
	if err := e.recorder.Append(ev); err != nil {
		e.logger.Warn(map[string]any{"error": err.Error()}, "journal append failed")
	}
}
