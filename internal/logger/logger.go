// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger implements structured logging of SDAM lifecycle events,
// leveled independently per Component, with an interface narrow enough that
// any go-logr LogSink can be plugged in behind it.
package logger

import (
	"os"
	"strconv"
	"strings"
)

const jobBufferSize = 100
const logSinkPathEnvVar = "MONGODB_LOG_PATH"
const maxDocumentLengthEnvVar = "MONGODB_LOG_MAX_DOCUMENT_LENGTH"

// DefaultMaxDocumentLength is the default maximum length, in bytes, of a
// stringified document before it is truncated.
const DefaultMaxDocumentLength = 1000

// TruncationSuffix is appended to a truncated string to signal that
// truncation occurred. It does not count toward the max document length.
const TruncationSuffix = "..."

// LogSink is a subset of go-logr/logr's LogSink interface, narrow enough
// that a caller can adapt any structured logger to it.
type LogSink interface {
	Info(int, string, ...interface{})
}

type job struct {
	level Level
	msg   ComponentMessage
}

// Logger dispatches ComponentMessages to a LogSink on a background
// goroutine, filtering by each Component's configured Level.
type Logger struct {
	ComponentLevels   map[Component]Level
	Sink              LogSink
	MaxDocumentLength uint

	jobs chan job
}

// New constructs a Logger. A nil sink logs to os.Stderr. componentLevels
// takes precedence over the MONGODB_LOG_* environment variables for any
// component it sets explicitly.
func New(sink LogSink, maxDocumentLength uint, componentLevels map[Component]Level) *Logger {
	return &Logger{
		ComponentLevels: selectComponentLevels(
			func() map[Component]Level { return componentLevels },
			getEnvComponentLevels,
		),

		MaxDocumentLength: selectMaxDocumentLength(
			func() uint { return maxDocumentLength },
			getEnvMaxDocumentLength,
		),

		Sink: selectLogSink(
			func() LogSink { return sink },
			getEnvLogSink,
		),

		jobs: make(chan job, jobBufferSize),
	}
}

// Close stops the printer goroutine started by StartPrintListener.
func (logger Logger) Close() {
	close(logger.jobs)
}

// Is reports whether level is enabled for component.
func (logger Logger) Is(level Level, component Component) bool {
	return logger.ComponentLevels[component] >= level
}

// Print enqueues msg for the background printer if level is enabled for
// msg's component. If the queue is full, msg is replaced with a
// DroppedMessage rather than blocking the caller.
func (logger *Logger) Print(level Level, msg ComponentMessage) {
	if !logger.Is(level, msg.Component()) {
		return
	}
	select {
	case logger.jobs <- job{level, msg}:
	default:
		select {
		case logger.jobs <- job{LevelInfo, &DroppedMessage{}}:
		default:
		}
	}
}

// StartPrintListener starts the goroutine that drains logger.jobs into its
// Sink. It returns immediately; call logger.Close to stop it.
func StartPrintListener(logger *Logger) {
	go func() {
		for j := range logger.jobs {
			sink := logger.Sink
			if sink == nil {
				continue
			}

			kv := truncateStrings(j.msg.Serialize(), logger.MaxDocumentLength)
			sink.Info(int(j.level)-DiffToInfo, j.msg.Message(), kv...)
		}
	}()
}

func truncate(str string, width uint) string {
	if len(str) <= int(width) {
		return str
	}

	newStr := str[:width]

	if newStr[len(newStr)-1]&0xC0 == 0xC0 {
		return newStr[:len(newStr)-1]
	}

	if newStr[len(newStr)-1]&0xC0 == 0x80 {
		for i := len(newStr) - 1; i >= 0; i-- {
			if newStr[i]&0xC0 == 0xC0 {
				return newStr[:i]
			}
		}
	}

	return newStr + TruncationSuffix
}

// truncateStrings applies truncate to every string value in a flattened
// key/value slice, leaving other types untouched.
func truncateStrings(keysAndValues []interface{}, width uint) []interface{} {
	for i := 1; i < len(keysAndValues); i += 2 {
		if s, ok := keysAndValues[i].(string); ok {
			keysAndValues[i] = truncate(s, width)
		}
	}
	return keysAndValues
}

func getEnvMaxDocumentLength() uint {
	max := os.Getenv(maxDocumentLengthEnvVar)
	if max == "" {
		return 0
	}

	maxUint, err := strconv.ParseUint(max, 10, 32)
	if err != nil {
		return 0
	}

	return uint(maxUint)
}

func selectMaxDocumentLength(getLen ...func() uint) uint {
	for _, get := range getLen {
		if len := get(); len != 0 {
			return len
		}
	}

	return DefaultMaxDocumentLength
}

type logSinkPath string

const (
	logSinkPathStdout logSinkPath = "stdout"
	logSinkPathStderr logSinkPath = "stderr"
)

func getEnvLogSink() LogSink {
	path := os.Getenv(logSinkPathEnvVar)
	switch strings.ToLower(path) {
	case string(logSinkPathStderr):
		return newOSSink(os.Stderr)
	case string(logSinkPathStdout):
		return newOSSink(os.Stdout)
	}

	if path != "" {
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			return newOSSink(f)
		}
	}

	return nil
}

func selectLogSink(getSink ...func() LogSink) LogSink {
	for _, getSink := range getSink {
		if sink := getSink(); sink != nil {
			return sink
		}
	}

	return newOSSink(os.Stderr)
}

// componentEnvVars maps each MONGODB_LOG_* environment variable to the
// Component it configures.
var componentEnvVars = map[string]Component{
	"MONGODB_LOG_COMMAND":          ComponentCommand,
	"MONGODB_LOG_TOPOLOGY":         ComponentTopology,
	"MONGODB_LOG_SERVER_SELECTION": ComponentServerSelection,
}

const componentEnvVarAll = "MONGODB_LOG_ALL"

// getEnvComponentLevels builds a component-to-level mapping from the
// environment, with MONGODB_LOG_ALL taking priority over any
// component-specific variable.
func getEnvComponentLevels() map[Component]Level {
	componentLevels := make(map[Component]Level)
	globalLevel := ParseLevel(os.Getenv(componentEnvVarAll))

	for envVar, component := range componentEnvVars {
		level := globalLevel
		if globalLevel == LevelOff {
			level = ParseLevel(os.Getenv(envVar))
		}
		componentLevels[component] = level
	}

	return componentLevels
}

// selectComponentLevels merges component-to-level maps in priority order,
// with the first map to set a given component winning.
func selectComponentLevels(getters ...func() map[Component]Level) map[Component]Level {
	selected := make(map[Component]Level)
	set := make(map[Component]struct{})

	for _, getComponentLevels := range getters {
		for component, level := range getComponentLevels() {
			if _, ok := set[component]; !ok {
				selected[component] = level
			}
			set[component] = struct{}{}
		}
	}

	return selected
}
