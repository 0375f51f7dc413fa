package config

import "go.uber.org/zap/zapcore"

// LogEncoder defines a log encoder kind.
type LogEncoder = string

const (
	defaultLoggingLevel = zapcore.InfoLevel
	// ConsoleLogEncoder represents logging with plain text.
	ConsoleLogEncoder LogEncoder = "console"
	// JSONLogEncoder represents logging with JSON.
	JSONLogEncoder LogEncoder = "json"
)

// LoggerConfig holds the logging level for each module.
type LoggerConfig struct {
	Encoder                  LogEncoder `mapstructure:"log-encoder"`
	AppLoggerLevel           string     `mapstructure:"app"`
	TransportLoggerLevel     string     `mapstructure:"transport"`
	RemoteIndicesLoggerLevel string     `mapstructure:"remoteindices"`
	SyncerLoggerLevel        string     `mapstructure:"syncer"`
	InterfaceLoggerLevel     string     `mapstructure:"iface"`
	CommunicatorLoggerLevel  string     `mapstructure:"communicator"`
	MetricsLoggerLevel       string     `mapstructure:"metrics"`
}

func defaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		Encoder:                  ConsoleLogEncoder,
		AppLoggerLevel:           defaultLoggingLevel.String(),
		TransportLoggerLevel:     zapcore.WarnLevel.String(),
		RemoteIndicesLoggerLevel: defaultLoggingLevel.String(),
		SyncerLoggerLevel:        defaultLoggingLevel.String(),
		InterfaceLoggerLevel:     defaultLoggingLevel.String(),
		CommunicatorLoggerLevel:  defaultLoggingLevel.String(),
		MetricsLoggerLevel:       defaultLoggingLevel.String(),
	}
}
