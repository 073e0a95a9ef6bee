// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"os"
	"reflect"
	"testing"
)

type mockLogSink struct{}

func (mockLogSink) Info(level int, msg string, keysAndValues ...interface{}) {}

func BenchmarkLoggerPrint(b *testing.B) {
	b.ReportAllocs()

	logger := New(mockLogSink{}, 0, map[Component]Level{
		ComponentCommand: LevelDebug,
	})

	for i := 0; i < b.N; i++ {
		logger.Print(LevelInfo, &CommandStartedMessage{})
	}
}

func TestSelectMaxDocumentLength(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv(maxDocumentLengthEnvVar) })

	for _, tcase := range []struct {
		name     string
		arg      uint
		expected uint
		env      string
	}{
		{name: "default", arg: 0, expected: DefaultMaxDocumentLength},
		{name: "non-zero arg", arg: 100, expected: 100},
		{name: "valid env", arg: 0, expected: 100, env: "100"},
		{name: "invalid env falls back to default", arg: 0, expected: DefaultMaxDocumentLength, env: "not-a-number"},
	} {
		tcase := tcase
		t.Run(tcase.name, func(t *testing.T) {
			if tcase.env != "" {
				os.Setenv(maxDocumentLengthEnvVar, tcase.env)
				defer os.Unsetenv(maxDocumentLengthEnvVar)
			}

			actual := selectMaxDocumentLength(func() uint { return tcase.arg }, getEnvMaxDocumentLength)
			if actual != tcase.expected {
				t.Errorf("selectMaxDocumentLength() = %d, want %d", actual, tcase.expected)
			}
		})
	}
}

func TestSelectLogSink(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv(logSinkPathEnvVar) })

	for _, tcase := range []struct {
		name     string
		arg      LogSink
		expected LogSink
		env      string
	}{
		{name: "default is stderr", arg: nil, expected: newOSSink(os.Stderr)},
		{name: "explicit sink wins", arg: mockLogSink{}, expected: mockLogSink{}},
		{name: "env stdout", arg: nil, expected: newOSSink(os.Stdout), env: string(logSinkPathStdout)},
		{name: "env stderr", arg: nil, expected: newOSSink(os.Stderr), env: string(logSinkPathStderr)},
	} {
		tcase := tcase
		t.Run(tcase.name, func(t *testing.T) {
			if tcase.env != "" {
				os.Setenv(logSinkPathEnvVar, tcase.env)
				defer os.Unsetenv(logSinkPathEnvVar)
			}

			actual := selectLogSink(func() LogSink { return tcase.arg }, getEnvLogSink)
			if !reflect.DeepEqual(actual, tcase.expected) {
				t.Errorf("selectLogSink() = %+v, want %+v", actual, tcase.expected)
			}
		})
	}
}

func TestSelectComponentLevels(t *testing.T) {
	envVars := []string{"MONGODB_LOG_COMMAND", "MONGODB_LOG_TOPOLOGY", "MONGODB_LOG_SERVER_SELECTION", componentEnvVarAll}
	t.Cleanup(func() {
		for _, v := range envVars {
			os.Unsetenv(v)
		}
	})

	t.Run("explicit arg overrides env", func(t *testing.T) {
		os.Setenv("MONGODB_LOG_COMMAND", "debug")
		defer os.Unsetenv("MONGODB_LOG_COMMAND")

		got := selectComponentLevels(
			func() map[Component]Level { return map[Component]Level{ComponentCommand: LevelOff} },
			getEnvComponentLevels,
		)
		if got[ComponentCommand] != LevelOff {
			t.Errorf("explicit arg should take priority, got %v", got[ComponentCommand])
		}
	})

	t.Run("MONGODB_LOG_ALL overrides per-component vars", func(t *testing.T) {
		os.Setenv(componentEnvVarAll, "debug")
		os.Setenv("MONGODB_LOG_TOPOLOGY", "info")
		defer os.Unsetenv("MONGODB_LOG_TOPOLOGY")

		got := getEnvComponentLevels()
		if got[ComponentTopology] != LevelDebug {
			t.Errorf("MONGODB_LOG_ALL should win, got %v", got[ComponentTopology])
		}
	})
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
	if got := truncate("this is a long string", 4); got != "this..." {
		t.Errorf("truncate() = %q, want %q", got, "this...")
	}
}

func TestLoggerIsRespectsComponentLevel(t *testing.T) {
	l := New(mockLogSink{}, 0, map[Component]Level{
		ComponentTopology: LevelInfo,
	})

	if !l.Is(LevelInfo, ComponentTopology) {
		t.Error("expected Info enabled for topology")
	}
	if l.Is(LevelDebug, ComponentTopology) {
		t.Error("expected Debug disabled for topology")
	}
	if l.Is(LevelInfo, ComponentCommand) {
		t.Error("expected command component to default to off")
	}
}
