package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `yaml:"level"`

	// Encoding is "json" or "console".
	Encoding string `yaml:"encoding"`

	// OutputPath is the log file; empty logs to stdout.
	OutputPath string `yaml:"output_path"`

	// Rotation settings, used only with a file output.
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`

	Development bool `yaml:"development"`
}

// Factory builds named loggers sharing one core and one atomic level, so
// the level can be changed at runtime without rebuilding loggers.
type Factory struct {
	root  *zap.Logger
	level zap.AtomicLevel
}

// NewFactory creates the logger factory.
func NewFactory(cfg Config) (*Factory, error) {
	level := zap.NewAtomicLevel()
	if err := setLevel(&level, cfg.Level); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log encoding %q", cfg.Encoding)
	}

	var sink zapcore.WriteSyncer
	if cfg.OutputPath == "" {
		sink = zapcore.Lock(os.Stdout)
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   cfg.Compress,
		})
	}

	core := zapcore.NewCore(encoder, sink, level)
	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Factory{
		root:  zap.New(core, opts...),
		level: level,
	}, nil
}

// Root returns the root logger.
func (f *Factory) Root() *zap.Logger {
	return f.root
}

// Named returns a child logger with the given name.
func (f *Factory) Named(name string) *zap.Logger {
	return f.root.Named(name)
}

// SetLevel changes the minimum level of all loggers built by this factory.
func (f *Factory) SetLevel(level string) error {
	return setLevel(&f.level, level)
}

// Sync flushes buffered log entries.
func (f *Factory) Sync() {
	f.root.Sync()
}

func setLevel(al *zap.AtomicLevel, level string) error {
	if level == "" {
		level = "info"
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", level, err)
	}
	al.SetLevel(parsed)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
