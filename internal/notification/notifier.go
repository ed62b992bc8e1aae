// Package notification delivers indicator signal alerts to external channels
// (webhooks, Telegram) or the log.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"streamta/internal/core"
	"streamta/internal/logger"
	"streamta/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier writing to l, or the default
// logger when l is nil.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	attrs := []any{"level", alert.Level, "title", alert.Title, "message", alert.Message}
	n.log.InfoContext(ctx, "signal alert", append(attrs, logger.LogWithTrace(ctx)...)...)
	return nil
}

// Multi sends every alert to each notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AlertFromResult describes the non-neutral signals of r. ok is false when r
// carries none.
func AlertFromResult(r model.IndicatorResult) (alert Alert, ok bool) {
	var fired []string
	action := core.None
	for i, s := range r.Signals {
		if s == 0 {
			continue
		}
		a := core.Action(s)
		if action == core.None {
			action = a
		}
		fired = append(fired, "s"+strconv.Itoa(i+1)+"="+a.String())
	}
	if len(fired) == 0 {
		return Alert{}, false
	}

	vals := make([]string, len(r.Values))
	for i, v := range r.Values {
		vals[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s %s:%s %ds", r.Name, strings.ToUpper(action.String()), r.Exchange, r.Token, r.TF),
		Message: fmt.Sprintf("%s at %s, values [%s]",
			strings.Join(fired, " "), r.TS.Format("2006-01-02 15:04:05"), strings.Join(vals, ", ")),
	}, true
}

// Run sends an alert for every result in ch that carries a signal. Delivery
// errors are logged. Blocks until ch is closed or ctx is done.
func Run(ctx context.Context, n Notifier, ch <-chan model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			alert, ok := AlertFromResult(r)
			if !ok {
				continue
			}
			actx := logger.WithTraceID(ctx, logger.GenerateTraceID(r.SeriesKey(), r.TS))
			if err := n.Send(actx, alert); err != nil {
				slog.Warn("alert delivery failed",
					append([]any{"title", alert.Title, "err", err}, logger.LogWithTrace(actx)...)...)
			}
		}
	}
}
