// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"fmt"
	"io"
	"log"
)

// osSink is the default LogSink, writing lines to an io.Writer via the
// standard library's log package. It carries no third-party dependency
// since it is a one-line adapter over the file/stream the caller already
// named; there is no parsing, leveling, or structuring left to delegate.
type osSink struct {
	logger *log.Logger
}

func newOSSink(w io.Writer) *osSink {
	return &osSink{logger: log.New(w, "", log.LstdFlags)}
}

// Info implements LogSink.
func (s *osSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.logger.Print(formatLine(level, msg, keysAndValues))
}

func formatLine(level int, msg string, keysAndValues []interface{}) string {
	line := fmt.Sprintf("[%d] %s", level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		line += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return line
}
