// Package notify decides, per user preference, whether an event becomes an
// in-app notification, an email, both, or nothing.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/showtrack/internal/email"
	"github.com/dukerupert/showtrack/internal/metrics"
	"github.com/dukerupert/showtrack/internal/model"
)

// DefaultEmailTimeout bounds a single email send.
const DefaultEmailTimeout = 10 * time.Second

// Preferences loads a user's preference record.
type Preferences interface {
	Get(ctx context.Context, userID int64) (*model.NotificationPreference, error)
}

// Ledger stores in-app notifications.
type Ledger interface {
	Append(ctx context.Context, n *model.Notification) (int64, error)
}

// Recipients resolves the email address of a user.
type Recipients interface {
	EmailOf(ctx context.Context, userID int64) (string, error)
}

// Renderer turns an event into an email body.
type Renderer interface {
	Notification(title, body, showTitle string) (email.Message, error)
}

// Event is something worth telling a user about.
type Event struct {
	UserID           int64
	Kind             model.Kind
	Title            string
	Body             string
	RelatedShowID    *int64
	RelatedShowTitle string
	// EmailSubject and EmailHTML replace the default rendering when set.
	EmailSubject string
	EmailHTML    string
}

// Result reports what was delivered.
type Result struct {
	InAppCreated   bool
	EmailSent      bool
	NotificationID int64
}

// Dispatcher applies the channel policy for events.
type Dispatcher struct {
	prefs        Preferences
	ledger       Ledger
	recipients   Recipients
	sender       email.Sender
	renderer     Renderer
	emailTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithEmailTimeout(d time.Duration) Option {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.emailTimeout = d
		}
	}
}

func WithRenderer(r Renderer) Option {
	return func(ds *Dispatcher) {
		if r != nil {
			ds.renderer = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(ds *Dispatcher) {
		if l != nil {
			ds.logger = l
		}
	}
}

// New creates a Dispatcher. A nil sender disables email delivery.
func New(prefs Preferences, ledger Ledger, recipients Recipients, sender email.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		prefs:        prefs,
		ledger:       ledger,
		recipients:   recipients,
		sender:       sender,
		renderer:     email.Renderer{},
		emailTimeout: DefaultEmailTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "notify")
	return d
}

// Dispatch delivers ev according to the user's preferences. Email failures
// are logged and never returned. A failure to store the in-app record does
// not prevent the email attempt but is returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Result, error) {
	var res Result
	if !ev.Kind.Valid() {
		return res, fmt.Errorf("dispatch: unknown notification kind %q", ev.Kind)
	}

	prefs, err := d.prefs.Get(ctx, ev.UserID)
	if err != nil {
		return res, fmt.Errorf("load preferences for user %d: %w", ev.UserID, err)
	}

	wantInApp := prefs.Enabled(model.ChannelInApp, ev.Kind)
	wantEmail := prefs.Enabled(model.ChannelEmail, ev.Kind) && d.sender != nil

	var to, subject, htmlBody string
	renderFailed := false
	if wantEmail {
		to, err = d.recipients.EmailOf(ctx, ev.UserID)
		if err != nil || to == "" {
			d.logger.Warn("no email recipient", "user_id", ev.UserID, "kind", ev.Kind, "error", err)
			wantEmail = false
		}
	}
	if wantEmail {
		subject, htmlBody, err = d.compose(ev)
		if err != nil {
			// sent_email is only recorded for emails that reach the sender.
			d.logger.Error("render email failed", "user_id", ev.UserID, "kind", ev.Kind, "error", err)
			metrics.RecordDispatch(string(ev.Kind), string(model.ChannelEmail), "failed")
			wantEmail = false
			renderFailed = true
		}
	}

	if !wantInApp && !wantEmail {
		metrics.RecordDispatch(string(ev.Kind), string(model.ChannelInApp), "skipped")
		if !renderFailed {
			metrics.RecordDispatch(string(ev.Kind), string(model.ChannelEmail), "skipped")
		}
		return res, nil
	}

	var appendErr error
	if wantInApp {
		n := &model.Notification{
			UserID:           ev.UserID,
			Kind:             ev.Kind,
			Title:            ev.Title,
			Body:             ev.Body,
			RelatedShowID:    ev.RelatedShowID,
			RelatedShowTitle: ev.RelatedShowTitle,
			SentEmail:        wantEmail,
			SentInApp:        true,
		}
		id, err := d.ledger.Append(ctx, n)
		if err != nil {
			appendErr = fmt.Errorf("append notification: %w", err)
			metrics.RecordDispatch(string(ev.Kind), string(model.ChannelInApp), "failed")
			d.logger.Error("append notification failed", "user_id", ev.UserID, "kind", ev.Kind, "error", err)
		} else {
			res.InAppCreated = true
			res.NotificationID = id
			metrics.RecordDispatch(string(ev.Kind), string(model.ChannelInApp), "sent")
		}
	} else {
		metrics.RecordDispatch(string(ev.Kind), string(model.ChannelInApp), "skipped")
	}

	if wantEmail {
		res.EmailSent = d.sendEmail(ctx, ev, to, subject, htmlBody)
	} else if !renderFailed {
		metrics.RecordDispatch(string(ev.Kind), string(model.ChannelEmail), "skipped")
	}

	return res, appendErr
}

// compose returns the subject and HTML body for ev, rendering the default
// template unless the event carries its own.
func (d *Dispatcher) compose(ev Event) (string, string, error) {
	subject, body := ev.EmailSubject, ev.EmailHTML
	if body == "" {
		msg, err := d.renderer.Notification(ev.Title, ev.Body, ev.RelatedShowTitle)
		if err != nil {
			return "", "", err
		}
		body = msg.HTML
		if subject == "" {
			subject = msg.Subject
		}
	}
	if subject == "" {
		subject = ev.Title
	}
	return subject, body, nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, ev Event, to, subject, body string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.emailTimeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, to, subject, body); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, email.ErrNotConfigured) {
			level = slog.LevelDebug
		}
		d.logger.Log(ctx, level, "email send failed", "user_id", ev.UserID, "kind", ev.Kind, "error", err)
		metrics.RecordDispatch(string(ev.Kind), string(model.ChannelEmail), "failed")
		return false
	}
	metrics.RecordDispatch(string(ev.Kind), string(model.ChannelEmail), "sent")
	return true
}
