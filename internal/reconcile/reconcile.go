// Package reconcile re-checks tracked shows against the metadata provider,
// persists their classification and emits events on terminal transitions.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/showtrack/internal/auth"
	"github.com/dukerupert/showtrack/internal/metadata"
	"github.com/dukerupert/showtrack/internal/metrics"
	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/notify"
	"github.com/dukerupert/showtrack/internal/status"
	"github.com/dukerupert/showtrack/internal/store"
)

const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultWorkers      = 4
)

// Shows is the tracked-show storage the driver reads and writes.
type Shows interface {
	Add(ctx context.Context, sh model.TrackedShow) (*model.TrackedShow, bool, error)
	GetByID(ctx context.Context, id int64) (*model.TrackedShow, error)
	ListByUser(ctx context.Context, userID int64) ([]model.TrackedShow, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	UpdateStatus(ctx context.Context, id int64, st model.ShowStatus) error
	Refresh(ctx context.Context, id int64, st model.ShowStatus) error
	Delete(ctx context.Context, id int64) error
}

// Dispatcher delivers events to users.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) (notify.Result, error)
}

// Report summarizes one reconciliation run.
type Report struct {
	RunID    string        `json:"run_id"`
	Users    int           `json:"users"`
	Checked  int           `json:"checked"`
	Changed  int           `json:"changed"`
	Notified int           `json:"notified"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

func (r *Report) add(o Report) {
	r.Users += o.Users
	r.Checked += o.Checked
	r.Changed += o.Changed
	r.Notified += o.Notified
	r.Errors += o.Errors
}

// Driver runs reconciliation. It is safe for concurrent use; runs for the
// same user are serialized.
type Driver struct {
	shows        Shows
	fetcher      metadata.Fetcher
	dispatcher   Dispatcher
	locks        *keyedLock
	fetchTimeout time.Duration
	workers      int
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

func WithFetchTimeout(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.fetchTimeout = d
		}
	}
}

func WithWorkers(n int) Option {
	return func(dr *Driver) {
		if n > 0 {
			dr.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(dr *Driver) {
		if now != nil {
			dr.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

func New(shows Shows, fetcher metadata.Fetcher, dispatcher Dispatcher, opts ...Option) *Driver {
	d := &Driver{
		shows:        shows,
		fetcher:      fetcher,
		dispatcher:   dispatcher,
		locks:        newKeyedLock(),
		fetchTimeout: DefaultFetchTimeout,
		workers:      DefaultWorkers,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "reconcile")
	return d
}

// Reconcile checks every show the user tracks. Per-show fetch failures are
// counted in the report and leave the show untouched. A second call for the
// same user waits for the first to finish.
func (d *Driver) Reconcile(ctx context.Context, userID int64) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Users: 1}
	err := d.reconcileUser(ctx, rep.RunID, userID, &rep)
	return rep, err
}

func (d *Driver) reconcileUser(ctx context.Context, runID string, userID int64, rep *Report) error {
	release, err := d.locks.acquire(ctx, userID)
	if err != nil {
		return fmt.Errorf("wait for user %d: %w", userID, err)
	}
	defer release()

	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		metrics.ReconcileDuration.Observe(rep.Duration.Seconds())
	}()

	log := d.logger.With("run_id", runID, "user_id", userID)

	shows, err := d.shows.ListByUser(ctx, userID)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("list shows for user %d: %w", userID, err)
	}

	for i := range shows {
		if err := ctx.Err(); err != nil {
			metrics.ReconcileRuns.WithLabelValues("error").Inc()
			return err
		}
		d.checkShow(ctx, log, &shows[i], rep)
	}

	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	log.Info("reconcile complete",
		"checked", rep.Checked, "changed", rep.Changed, "notified", rep.Notified, "errors", rep.Errors)
	return nil
}

func (d *Driver) checkShow(ctx context.Context, log *slog.Logger, sh *model.TrackedShow, rep *Report) {
	log = log.With("show_id", sh.ID, "external_id", sh.ExternalID)

	fetchCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	md, err := d.fetcher.Fetch(fetchCtx, sh.ExternalID)
	cancel()
	if err != nil {
		rep.Errors++
		metrics.ReconcileShows.WithLabelValues("error").Inc()
		log.Warn("fetch failed", "error", err)
		return
	}

	now := d.now()
	res := status.Classify(status.Input{
		RawStatus:       md.Status,
		InProduction:    md.InProduction,
		LastAirDate:     md.LastAirDate,
		NextEpisodeDate: md.NextEpisodeDate,
	}, now)
	snap := model.ShowStatus{
		RawStatus:       md.Status,
		InProduction:    md.InProduction,
		OnProvider:      md.Available(sh.Region, sh.ProviderName),
		LastAirDate:     md.LastAirDate,
		NextEpisodeDate: md.NextEpisodeDate,
		Category:        res.Category,
		Confidence:      res.Confidence,
		Message:         res.Message,
		CheckedAt:       now,
	}
	rep.Checked++

	if sh.LastKnownCategory == res.Category {
		if err := d.shows.Refresh(ctx, sh.ID, snap); err != nil {
			rep.Errors++
			metrics.ReconcileShows.WithLabelValues("error").Inc()
			log.Error("refresh show failed", "error", err)
			return
		}
		metrics.ReconcileShows.WithLabelValues("unchanged").Inc()
		return
	}

	if ev, ok := transitionEvent(sh, res.Category, md.LastAirDate); ok {
		out, err := d.dispatcher.Dispatch(ctx, ev)
		if out.InAppCreated || out.EmailSent {
			rep.Notified++
		}
		if err != nil {
			// Leave the stored category alone so the next run retries.
			rep.Errors++
			metrics.ReconcileShows.WithLabelValues("error").Inc()
			log.Error("dispatch failed", "kind", ev.Kind, "error", err)
			return
		}
		log.Info("status transition", "from", sh.LastKnownCategory, "to", res.Category, "kind", ev.Kind)
	}

	if err := d.shows.UpdateStatus(ctx, sh.ID, snap); err != nil {
		rep.Errors++
		metrics.ReconcileShows.WithLabelValues("error").Inc()
		log.Error("update show status failed", "error", err)
		return
	}
	rep.Changed++
	metrics.ReconcileShows.WithLabelValues("changed").Inc()
}

// transitionEvent returns the event for a move into a terminal category. The
// first classification of a show never produces one.
func transitionEvent(sh *model.TrackedShow, to status.Category, lastAir *time.Time) (notify.Event, bool) {
	from := sh.LastKnownCategory
	if from == "" || from == to {
		return notify.Event{}, false
	}
	showID := sh.ID
	ev := notify.Event{
		UserID:           sh.UserID,
		RelatedShowID:    &showID,
		RelatedShowTitle: sh.Title,
	}
	switch to {
	case status.CategoryEnded:
		ev.Kind = model.KindSeriesFinale
		ev.Title = "Series finale: " + sh.Title
		ev.Body = sh.Title + " has ended."
		if lastAir != nil {
			ev.Body = fmt.Sprintf("%s has ended. The final episode aired on %s.", sh.Title, status.FormatDate(*lastAir))
		}
	case status.CategoryCanceled:
		ev.Kind = model.KindCancellation
		ev.Title = "Show canceled: " + sh.Title
		ev.Body = sh.Title + " has been canceled."
	default:
		return notify.Event{}, false
	}
	return ev, true
}

// ReconcileAll reconciles every user that tracks a show, with bounded
// parallelism across users. Failures of individual users are joined into the
// returned error; the report still covers the users that completed.
func (d *Driver) ReconcileAll(ctx context.Context) (Report, error) {
	total := Report{RunID: uuid.NewString()}
	start := time.Now()

	users, err := d.shows.ListUserIDs(ctx)
	if err != nil {
		return total, fmt.Errorf("list users: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for _, id := range users {
		g.Go(func() error {
			var rep Report
			rep.Users = 1
			err := d.reconcileUser(ctx, total.RunID, id, &rep)
			mu.Lock()
			defer mu.Unlock()
			total.add(rep)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	g.Wait()

	total.Duration = time.Since(start)
	d.logger.Info("reconcile all complete", "run_id", total.RunID, "users", total.Users,
		"checked", total.Checked, "changed", total.Changed, "notified", total.Notified, "errors", total.Errors)
	return total, errors.Join(errs...)
}

// AddShow stores a new tracked show for userID, emits a show_added event and
// records an initial classification. Adding an already tracked show returns
// the existing row without an event.
func (d *Driver) AddShow(ctx context.Context, userID int64, sh model.TrackedShow) (*model.TrackedShow, bool, error) {
	sh.UserID = userID
	added, created, err := d.shows.Add(ctx, sh)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return added, false, nil
	}

	showID := added.ID
	_, err = d.dispatcher.Dispatch(ctx, notify.Event{
		UserID:           userID,
		Kind:             model.KindShowAdded,
		Title:            "Now tracking " + added.Title,
		Body:             fmt.Sprintf("You'll be notified about %s.", added.Title),
		RelatedShowID:    &showID,
		RelatedShowTitle: added.Title,
	})
	if err != nil {
		d.logger.Error("dispatch show_added failed", "user_id", userID, "show_id", added.ID, "error", err)
	}

	release, err := d.locks.acquire(ctx, userID)
	if err != nil {
		return added, true, nil
	}
	defer release()

	var rep Report
	d.checkShow(ctx, d.logger.With("user_id", userID), added, &rep)
	if fresh, err := d.shows.GetByID(ctx, added.ID); err == nil && fresh != nil {
		added = fresh
	}
	return added, true, nil
}

// RemoveShow deletes a tracked show owned by the actor.
func (d *Driver) RemoveShow(ctx context.Context, actor auth.Identity, showID int64) error {
	sh, err := d.shows.GetByID(ctx, showID)
	if err != nil {
		return err
	}
	if sh == nil {
		return fmt.Errorf("show %d: %w", showID, store.ErrNotFound)
	}
	if !auth.Authorize(actor, sh.UserID).Manage {
		return fmt.Errorf("remove show %d: %w", showID, store.ErrForbidden)
	}
	return d.shows.Delete(ctx, showID)
}
