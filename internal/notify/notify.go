// Package notify delivers reminder notifications outside the app.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	appLog "daycal/internal/log"
)

var ErrPermissionDenied = errors.New("notify: permission not granted")

// Notification is one platform message. Tag identifies the originating
// event; platforms may collapse messages with the same tag.
type Notification struct {
	Title string
	Body  string
	Tag   string
}

// Platform is a best-effort notification channel.
type Platform interface {
	PermissionGranted() bool
	RequestPermission(ctx context.Context) (bool, error)
	Notify(ctx context.Context, n Notification) error
}

// ReminderTitle is the title of every reminder notification.
const ReminderTitle = "Calendar Reminder"

// ReminderBody renders the reminder text for one offset.
func ReminderBody(title string, offsetMinutes int, location string) string {
	body := fmt.Sprintf("%d minutes until: %s", offsetMinutes, title)
	if location != "" {
		body += "\nLocation: " + location
	}
	return body
}

// EventTag is the platform tag for an event id.
func EventTag(eventID string) string {
	return "event-" + eventID
}

// Log writes notifications to the structured log. Permission starts denied
// and is granted by RequestPermission.
type Log struct {
	granted atomic.Bool
}

func NewLog(granted bool) *Log {
	l := &Log{}
	l.granted.Store(granted)
	return l
}

func (l *Log) PermissionGranted() bool { return l.granted.Load() }

func (l *Log) RequestPermission(context.Context) (bool, error) {
	l.granted.Store(true)
	return true, nil
}

func (l *Log) Notify(_ context.Context, n Notification) error {
	if !l.granted.Load() {
		return ErrPermissionDenied
	}
	appLog.Info("notification", "title", n.Title, "body", n.Body, "tag", n.Tag)
	return nil
}

// Dedup drops notifications whose tag and body were already sent within ttl.
type Dedup struct {
	next Platform
	ttl  time.Duration
	now  func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDedup(next Platform, ttl time.Duration) *Dedup {
	return &Dedup{next: next, ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (d *Dedup) PermissionGranted() bool { return d.next.PermissionGranted() }

func (d *Dedup) RequestPermission(ctx context.Context) (bool, error) {
	return d.next.RequestPermission(ctx)
}

func (d *Dedup) Notify(ctx context.Context, n Notification) error {
	key := n.Tag + "\x00" + n.Body
	now := d.now()

	d.mu.Lock()
	for k, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, k)
		}
	}
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		appLog.Debug("notification suppressed", "tag", n.Tag)
		return nil
	}
	d.seen[key] = now
	d.mu.Unlock()

	if err := d.next.Notify(ctx, n); err != nil {
		d.mu.Lock()
		delete(d.seen, key)
		d.mu.Unlock()
		return err
	}
	return nil
}

// Close closes the wrapped platform when it holds resources.
func (d *Dedup) Close() error {
	if c, ok := d.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
