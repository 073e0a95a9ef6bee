// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "strings"

// DiffToInfo is the number of levels that come before the "Info" level, so
// that "Info" is the 0th level passed to a logr-style LogSink.
const DiffToInfo = 1

// Level is an enumeration of the supported log severities. The order
// matters: the package expects a LogSink modeled on go-logr's, which
// defaults InfoLevel to 0.
type Level int

const (
	// LevelOff suppresses logging.
	LevelOff Level = iota

	// LevelInfo enables high-level lifecycle messages: topology open/close,
	// server open/close, kind transitions.
	LevelInfo

	// LevelDebug enables voluminous detail: every heartbeat and command
	// start/succeed/fail, full description dumps.
	LevelDebug
)

// Component names an SDAM subsystem that can be leveled independently.
type Component string

// The components a level can be configured for.
const (
	ComponentTopology        Component = "topology"
	ComponentServerSelection Component = "serverSelection"
	ComponentCommand         Component = "command"
)

var levelLiteralMap = map[string]Level{
	"off":   LevelOff,
	"info":  LevelInfo,
	"debug": LevelDebug,
}

// ParseLevel checks whether str names a supported level and returns it,
// defaulting to LevelOff.
func ParseLevel(str string) Level {
	for literal, level := range levelLiteralMap {
		if strings.EqualFold(literal, str) {
			return level
		}
	}
	return LevelOff
}
