package delivery

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Channel names used in reports and log fields.
const (
	ChannelRealtime = "realtime"
	ChannelPush     = "push"
	ChannelEmail    = "email"
)

// Report summarises one fan-out run. Failures are counted here instead of
// being returned so a channel outage never triggers redelivery of the event.
type Report struct {
	Channel    string
	Recipients int64
	Batches    int64
	Delivered  int64
	Skipped    int64
	Failed     int64
	// Reason is set when the whole notification was skipped.
	Reason string
}

func (r Report) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("channel", r.Channel)
	enc.AddInt64("recipients", r.Recipients)
	enc.AddInt64("batches", r.Batches)
	enc.AddInt64("delivered", r.Delivered)
	enc.AddInt64("skipped", r.Skipped)
	enc.AddInt64("failed", r.Failed)
	if r.Reason != "" {
		enc.AddString("reason", r.Reason)
	}
	return nil
}

// counters is the concurrent accumulator behind a Report.
type counters struct {
	recipients, batches, delivered, skipped, failed atomic.Int64
}

func (c *counters) report(channel string) Report {
	return Report{
		Channel:    channel,
		Recipients: c.recipients.Load(),
		Batches:    c.batches.Load(),
		Delivered:  c.delivered.Load(),
		Skipped:    c.skipped.Load(),
		Failed:     c.failed.Load(),
	}
}

func skipped(channel, reason string) Report {
	return Report{Channel: channel, Reason: reason}
}

func logReport(log *zap.Logger, notificationID string, r Report) {
	fields := []zap.Field{zap.String("notification_id", notificationID), zap.Object("report", r)}
	if r.Failed > 0 {
		log.Warn("fan-out finished with failures", fields...)
		return
	}
	log.Info("fan-out finished", fields...)
}
