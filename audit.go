package tokenauth

import (
	"io"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one audit record. Token carries a short fingerprint, never
// the token itself.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	ZapSink        = internalaudit.ZapSink
)

// NewChannelSink returns a sink that buffers events on a channel.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink logs events through logger at Info level.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
