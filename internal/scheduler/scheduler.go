// Package scheduler runs periodic reconciliation and the daily and weekly
// episode reminders.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/showtrack/internal/email"
	"github.com/dukerupert/showtrack/internal/metrics"
	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/notify"
	"github.com/dukerupert/showtrack/internal/reconcile"
)

// Reconciler runs a full reconciliation pass.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (reconcile.Report, error)
}

// Airing lists shows by upcoming air date.
type Airing interface {
	ListAiringBetween(ctx context.Context, from, to time.Time) ([]model.TrackedShow, error)
}

// Reminders is the dedupe ledger for sent reminders.
type Reminders interface {
	WasSent(ctx context.Context, userID int64, kind model.Kind, refID string) (bool, error)
	RecordSent(ctx context.Context, userID int64, kind model.Kind, refID string) (bool, error)
	CleanupSent(ctx context.Context, before time.Time) (int64, error)
}

// Dispatcher delivers events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) (notify.Result, error)
}

type Config struct {
	ReconcileInterval time.Duration
	ReminderInterval  time.Duration
	DailyHour         int
	WeeklyDay         time.Weekday
	WeeklyHour        int
	Location          *time.Location
	Retention         time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 6 * time.Hour,
		ReminderInterval:  time.Minute,
		DailyHour:         8,
		WeeklyDay:         time.Sunday,
		WeeklyHour:        18,
		Location:          time.UTC,
		Retention:         30 * 24 * time.Hour,
	}
}

// Scheduler periodically reconciles shows and sends reminders.
type Scheduler struct {
	mu         sync.RWMutex
	cfg        Config
	reconciler Reconciler
	airing     Airing
	reminders  Reminders
	dispatcher Dispatcher
	renderer   email.Renderer
	logger     *slog.Logger
	now        func() time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(cfg Config, reconciler Reconciler, airing Airing, reminders Reminders, dispatcher Dispatcher, renderer email.Renderer, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		reconciler: reconciler,
		airing:     airing,
		reminders:  reminders,
		dispatcher: dispatcher,
		renderer:   renderer,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
	}
}

// Start begins the scheduler loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)

		var reconcileC <-chan time.Time
		if s.cfg.ReconcileInterval > 0 {
			t := time.NewTicker(s.cfg.ReconcileInterval)
			defer t.Stop()
			reconcileC = t.C
		}
		var reminderC <-chan time.Time
		if s.cfg.ReminderInterval > 0 {
			t := time.NewTicker(s.cfg.ReminderInterval)
			defer t.Stop()
			reminderC = t.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-reconcileC:
				s.runReconcile(ctx)
			case <-reminderC:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	rep, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.Error("scheduled reconcile", "run_id", rep.RunID, "error", err)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if _, err := s.SendDaily(ctx, now); err != nil {
		s.logger.Error("daily reminders", "error", err)
	}
	if _, err := s.SendWeekly(ctx, now); err != nil {
		s.logger.Error("weekly preview", "error", err)
	}
	if s.cfg.Retention > 0 {
		if _, err := s.reminders.CleanupSent(ctx, now.Add(-s.cfg.Retention)); err != nil {
			s.logger.Error("cleanup sent reminders", "error", err)
		}
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SendDaily sends a new-episode reminder for every show airing today, once
// the configured hour has passed. It returns how many reminders went out.
func (s *Scheduler) SendDaily(ctx context.Context, now time.Time) (int, error) {
	local := now.In(s.cfg.Location)
	if local.Hour() < s.cfg.DailyHour {
		return 0, nil
	}
	today := calendarDay(local)

	shows, err := s.airing.ListAiringBetween(ctx, today, today)
	if err != nil {
		return 0, fmt.Errorf("list shows airing today: %w", err)
	}

	sent := 0
	for _, sh := range shows {
		refID := fmt.Sprintf("show-%d:%s", sh.ID, today.Format(model.DateLayout))
		done, err := s.reminders.WasSent(ctx, sh.UserID, model.KindNewEpisode, refID)
		if err != nil {
			s.logger.Error("check sent", "user_id", sh.UserID, "ref", refID, "error", err)
			continue
		}
		if done {
			continue
		}

		showID := sh.ID
		body := fmt.Sprintf("A new episode of %s airs today.", sh.Title)
		if sh.ProviderName != "" {
			body = fmt.Sprintf("A new episode of %s airs today on %s.", sh.Title, sh.ProviderName)
		}
		_, err = s.dispatcher.Dispatch(ctx, notify.Event{
			UserID:           sh.UserID,
			Kind:             model.KindNewEpisode,
			Title:            "New episode today: " + sh.Title,
			Body:             body,
			RelatedShowID:    &showID,
			RelatedShowTitle: sh.Title,
		})
		if err != nil {
			s.logger.Error("dispatch new episode", "user_id", sh.UserID, "show_id", sh.ID, "error", err)
			continue
		}
		if _, err := s.reminders.RecordSent(ctx, sh.UserID, model.KindNewEpisode, refID); err != nil {
			s.logger.Error("record sent", "user_id", sh.UserID, "ref", refID, "error", err)
		}
		metrics.RemindersSent.WithLabelValues(string(model.KindNewEpisode)).Inc()
		sent++
	}
	if sent > 0 {
		s.logger.Info("daily reminders sent", "count", sent)
	}
	return sent, nil
}

// SendWeekly sends each user a preview of the next seven days on the
// configured weekday, once the configured hour has passed.
func (s *Scheduler) SendWeekly(ctx context.Context, now time.Time) (int, error) {
	local := now.In(s.cfg.Location)
	if local.Weekday() != s.cfg.WeeklyDay || local.Hour() < s.cfg.WeeklyHour {
		return 0, nil
	}
	today := calendarDay(local)
	year, week := today.ISOWeek()
	refID := fmt.Sprintf("%d-W%02d", year, week)

	shows, err := s.airing.ListAiringBetween(ctx, today, today.AddDate(0, 0, 7))
	if err != nil {
		return 0, fmt.Errorf("list shows airing this week: %w", err)
	}

	byUser := make(map[int64][]model.TrackedShow)
	var order []int64
	for _, sh := range shows {
		if _, ok := byUser[sh.UserID]; !ok {
			order = append(order, sh.UserID)
		}
		byUser[sh.UserID] = append(byUser[sh.UserID], sh)
	}

	sent := 0
	for _, userID := range order {
		done, err := s.reminders.WasSent(ctx, userID, model.KindWeeklyPreview, refID)
		if err != nil {
			s.logger.Error("check sent", "user_id", userID, "ref", refID, "error", err)
			continue
		}
		if done {
			continue
		}

		ev, err := s.previewEvent(userID, byUser[userID])
		if err != nil {
			s.logger.Error("build weekly preview", "user_id", userID, "error", err)
			continue
		}
		if _, err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			s.logger.Error("dispatch weekly preview", "user_id", userID, "error", err)
			continue
		}
		if _, err := s.reminders.RecordSent(ctx, userID, model.KindWeeklyPreview, refID); err != nil {
			s.logger.Error("record sent", "user_id", userID, "ref", refID, "error", err)
		}
		metrics.RemindersSent.WithLabelValues(string(model.KindWeeklyPreview)).Inc()
		sent++
	}
	if sent > 0 {
		s.logger.Info("weekly previews sent", "count", sent, "week", refID)
	}
	return sent, nil
}

const previewListMax = 5

func (s *Scheduler) previewEvent(userID int64, shows []model.TrackedShow) (notify.Event, error) {
	items := make([]email.PreviewItem, 0, len(shows))
	var lines []string
	for i, sh := range shows {
		items = append(items, email.PreviewItem{Title: sh.Title, Provider: sh.ProviderName, AirDate: *sh.NextEpisodeDate})
		if i < previewListMax {
			lines = append(lines, fmt.Sprintf("- %s (%s)", sh.Title, sh.NextEpisodeDate.Format(model.DateLayout)))
		}
	}
	if extra := len(shows) - previewListMax; extra > 0 {
		lines = append(lines, fmt.Sprintf("- ...and %d more", extra))
	}

	msg, err := s.renderer.WeeklyPreview(items)
	if err != nil {
		return notify.Event{}, err
	}

	noun := "episodes"
	if len(shows) == 1 {
		noun = "episode"
	}
	return notify.Event{
		UserID:       userID,
		Kind:         model.KindWeeklyPreview,
		Title:        fmt.Sprintf("This week: %d %s airing", len(shows), noun),
		Body:         fmt.Sprintf("You have %d new %s this week:\n%s", len(shows), noun, strings.Join(lines, "\n")),
		EmailSubject: msg.Subject,
		EmailHTML:    msg.HTML,
	}, nil
}
