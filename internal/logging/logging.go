package logging

import (
    "io"
    "os"
    "strings"

    "github.com/sirupsen/logrus"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level and the optional rotating file sink.
type Config struct {
    Level string `yaml:"level"`
    File  string `yaml:"file"`
}

// New builds a logrus logger writing JSON to stdout and, when File is set, to a
// rotating file as well.
func New(cfg Config) *logrus.Logger {
    log := logrus.New()
    log.SetFormatter(&logrus.JSONFormatter{})

    level := cfg.Level
    if level == "" {
        level = os.Getenv("LOG_LEVEL")
    }
    if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
        log.SetLevel(lvl)
    } else {
        log.SetLevel(logrus.InfoLevel)
    }

    var out io.Writer = os.Stdout
    if cfg.File != "" {
        out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
            Filename:   cfg.File,
            MaxSize:    10, // megabytes
            MaxBackups: 3,
            MaxAge:     28, // days
            Compress:   true,
        })
    }
    log.SetOutput(out)
    return log
}

// Component scopes an entry to one subsystem.
func Component(log *logrus.Logger, name string) *logrus.Entry {
    return log.WithField("component", name)
}

// Discard returns a logger that drops everything; used by tests and one-shot
// tools that only want the return values.
func Discard() *logrus.Logger {
    log := logrus.New()
    log.SetOutput(io.Discard)
    return log
}
