/*
	   COMPASS70 - CDC 6000 cross-assembler

	Copyright (c) 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a
	copy of this software and associated documentation files (the "Software"),
	to deal in the Software without restriction, including without limitation
	the rights to use, copy, modify, merge, publish, distribute, sublicense,
	and/or sell copies of the Software, and to permit persons to whom the
	Software is furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
	RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
	IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
	CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

package asmlog

import (
	"strings"
	"testing"
)

func TestLoggerWritesFormattedRecords(t *testing.T) {
	var b strings.Builder
	logger := New(&b, false)
	logger.Info("pass started", "pass", 1)
	out := b.String()
	if !strings.Contains(out, "INFO:") {
		t.Errorf("log line missing level: %q", out)
	}
	if !strings.Contains(out, "pass started") {
		t.Errorf("log line missing message: %q", out)
	}
	if !strings.Contains(out, "1") {
		t.Errorf("log line missing attribute value: %q", out)
	}
}

func TestNonDebugFiltersDebugRecords(t *testing.T) {
	var b strings.Builder
	quiet := New(&b, false)
	quiet.Debug("hidden")
	if strings.Contains(b.String(), "hidden") {
		t.Errorf("debug record should be filtered at info level")
	}
}
