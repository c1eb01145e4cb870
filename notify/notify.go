// Package notify delivers operator alerts and daily summaries over email,
// chat webhooks and Telegram.
package notify

import (
	"context"
	"errors"
)

type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	}
	return "info"
}

// ParseSeverity maps a config string onto a Severity. Unknown values are Info.
func ParseSeverity(s string) Severity {
	switch s {
	case "warning", "warn":
		return Warning
	case "critical", "crit", "error":
		return Critical
	}
	return Info
}

type Message struct {
	Subject  string
	Body     string
	Severity Severity
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.Notify(ctx, msg))
	}
	return errors.Join(errs...)
}

// MinSeverity forwards only messages at or above Min.
type MinSeverity struct {
	Min  Severity
	Next Notifier
}

func (f MinSeverity) Notify(ctx context.Context, m Message) error {
	if m.Severity < f.Min {
		return nil
	}
	return f.Next.Notify(ctx, m)
}
