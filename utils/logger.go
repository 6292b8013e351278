/*
 * Copyright 2025 mallardlabs.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package utils provides process-wide helpers shared across the kernel,
// currently the named structured logger registry.
package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the concrete structured logger handed out by NewLogger.
type Logger = zap.SugaredLogger

type namedLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*namedLogger{}

	fileLogEnabled = envDefaultBool("FILE_LOG_ENABLED", false)
	fileLogPath    = envDefaultString("FILE_LOG_PATH", "logs/substrate.log")
	logFormat      = envDefaultString("LOG_FORMAT", "console")
	defaultLevel   = envDefaultString("LOG_LEVEL", "info")
)

// NewLogger returns the registered logger for name, creating it on first
// use. Loggers write to stdout and, when FILE_LOG_ENABLED is set, to a
// size-rotated file as well.
func NewLogger(name string) *Logger {
	loggerRegistryMu.RLock()
	if nl, ok := loggerRegistry[name]; ok {
		loggerRegistryMu.RUnlock()
		return nl.sugar
	}
	loggerRegistryMu.RUnlock()

	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if nl, ok := loggerRegistry[name]; ok {
		return nl.sugar
	}

	level := zap.NewAtomicLevelAt(parseLevel(defaultLevel))
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(), zapcore.AddSync(os.Stdout), level),
	}
	if fileLogEnabled {
		rotated := &lumberjack.Logger{
			Filename:   fileLogPath,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(rotated), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel)).
		Named(name).
		Sugar()
	loggerRegistry[name] = &namedLogger{sugar: logger, level: level}
	return logger
}

// SetLoggerLevel changes the level of a registered logger. It reports
// whether a logger with that name existed.
func SetLoggerLevel(name string, levelStr string) bool {
	loggerRegistryMu.RLock()
	nl, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	nl.level.SetLevel(parseLevel(levelStr))
	return true
}

// SetAllLoggersLevel changes the level of every registered logger.
func SetAllLoggersLevel(levelStr string) {
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for _, nl := range loggerRegistry {
		nl.level.SetLevel(parseLevel(levelStr))
	}
}

func newEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "msg"
	cfg.LevelKey = "level"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if strings.EqualFold(logFormat, "json") {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// EnvDefaultString returns the environment value for key, or def when unset.
func EnvDefaultString(key string, def string) string {
	return envDefaultString(key, def)
}

// EnvDefaultBool returns the boolean environment value for key, or def when
// unset or unparsable.
func EnvDefaultBool(key string, def bool) bool {
	return envDefaultBool(key, def)
}

func envDefaultString(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDefaultBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
