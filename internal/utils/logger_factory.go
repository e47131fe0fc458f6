package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	jsonZapEncodingStringConstant        = "json"
	consoleZapEncodingStringConstant     = "console"
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
)

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Supported log formats.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
)

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

var logFormatEncodingMapping = map[LogFormat]string{
	LogFormatStructured: jsonZapEncodingStringConstant,
	LogFormatConsole:    consoleZapEncodingStringConstant,
}

// LoggerOptions selects the level and encoding of the standard error logger and
// lists extra cores that receive every entry alongside it.
type LoggerOptions struct {
	Level           LogLevel
	Format          LogFormat
	AdditionalCores []zapcore.Core
}

// LoggerFactory builds zap.Logger instances with consistent configuration.
type LoggerFactory struct{}

// NewLoggerFactory constructs a new logger factory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// ZapLevel resolves a LogLevel to its zap counterpart.
func ZapLevel(requestedLogLevel LogLevel) (zapcore.Level, error) {
	zapLogLevel, levelExists := logLevelMapping[requestedLogLevel]
	if !levelExists {
		return zapcore.InfoLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLogLevel)
	}
	return zapLogLevel, nil
}

// CreateLogger produces a zap.Logger honoring the requested options. Sampling is
// disabled so that every per-note outcome reaches the output.
func (factory *LoggerFactory) CreateLogger(options LoggerOptions) (*zap.Logger, error) {
	zapLogLevel, levelError := ZapLevel(options.Level)
	if levelError != nil {
		return nil, levelError
	}

	encoding, formatExists := logFormatEncodingMapping[options.Format]
	if !formatExists {
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, options.Format)
	}

	configuration := zap.NewProductionConfig()
	configuration.Level = zap.NewAtomicLevelAt(zapLogLevel)
	configuration.Encoding = encoding
	configuration.Sampling = nil

	logger, buildError := configuration.Build()
	if buildError != nil {
		return nil, buildError
	}

	additionalCores := make([]zapcore.Core, 0, len(options.AdditionalCores))
	for _, additionalCore := range options.AdditionalCores {
		if additionalCore != nil {
			additionalCores = append(additionalCores, additionalCore)
		}
	}
	if len(additionalCores) == 0 {
		return logger, nil
	}

	return logger.WithOptions(zap.WrapCore(func(primaryCore zapcore.Core) zapcore.Core {
		return zapcore.NewTee(append([]zapcore.Core{primaryCore}, additionalCores...)...)
	})), nil
}
