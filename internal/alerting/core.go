package alerting

import (
	"context"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	alertMessageKeyConstant     = "message"
	alertLevelKeyConstant       = "level"
	alertLoggerKeyConstant      = "logger"
	alertFieldSeparatorConstant = " "
)

// webhookCore renders entries with a console encoder and hands them to a Poster.
type webhookCore struct {
	zapcore.LevelEnabler
	encoder zapcore.Encoder
	poster  Poster
}

// NewCore returns a core that posts every entry at or above minimumLevel through poster.
// A nil poster yields a core that discards everything.
func NewCore(poster Poster, minimumLevel zapcore.Level) zapcore.Core {
	if poster == nil {
		return zapcore.NewNopCore()
	}
	encoderConfiguration := zapcore.EncoderConfig{
		MessageKey:       alertMessageKeyConstant,
		LevelKey:         alertLevelKeyConstant,
		NameKey:          alertLoggerKeyConstant,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: alertFieldSeparatorConstant,
	}
	return &webhookCore{
		LevelEnabler: minimumLevel,
		encoder:      zapcore.NewConsoleEncoder(encoderConfiguration),
		poster:       poster,
	}
}

func (core *webhookCore) With(fields []zapcore.Field) zapcore.Core {
	clonedEncoder := core.encoder.Clone()
	for _, field := range fields {
		field.AddTo(clonedEncoder)
	}
	return &webhookCore{LevelEnabler: core.LevelEnabler, encoder: clonedEncoder, poster: core.poster}
}

func (core *webhookCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if core.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, core)
	}
	return checkedEntry
}

func (core *webhookCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	encodedEntry, encodeError := core.encoder.EncodeEntry(entry, fields)
	if encodeError != nil {
		return encodeError
	}
	text := strings.TrimSpace(encodedEntry.String())
	encodedEntry.Free()
	return core.poster.Post(context.Background(), text)
}

func (core *webhookCore) Sync() error {
	return nil
}
