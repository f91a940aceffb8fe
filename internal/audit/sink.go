package audit

import (
	"context"
	"errors"
	"fmt"

	"mise.app/internal/model"
)

// Sink persists audit records.
type Sink interface {
	AppendActivity(ctx context.Context, entry model.ActivityEntry) error
	AppendSecurity(ctx context.Context, ev model.SecurityEvent) error
}

// MultiSink fans out to every member. One failing member does not stop the rest.
type MultiSink []Sink

func (m MultiSink) AppendActivity(ctx context.Context, entry model.ActivityEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendActivity(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sinkName(s), err))
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) AppendSecurity(ctx context.Context, ev model.SecurityEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendSecurity(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sinkName(s), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes records as structured audit lines on the operational logger.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	return LogEvent(ctx, e.Action, map[string]any{
		"id":           e.ID,
		"business_id":  e.BusinessID,
		"staff_id":     e.StaffID,
		"performed_by": e.PerformedBy,
		"details":      e.Details,
	})
}

func (LogSink) AppendSecurity(ctx context.Context, ev model.SecurityEvent) error {
	fields := map[string]any{
		"id":          ev.ID,
		"tier":        ev.Tier,
		"business_id": ev.BusinessID,
		"details":     ev.Details,
	}
	if ev.StaffID != "" {
		fields["staff_id"] = ev.StaffID
	}
	if ev.OwnerID != "" {
		fields["owner_id"] = ev.OwnerID
	}
	if ev.PinPrefix != "" {
		fields["pin_prefix"] = ev.PinPrefix
	}
	return LogEvent(ctx, ev.Event, fields)
}

func sinkName(s Sink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
