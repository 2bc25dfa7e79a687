/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tweegee/internal/telemetry"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport("", nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "tweegee Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
	if strings.Contains(s, "Command:") {
		t.Fatalf("no command line expected: %s", s)
	}
}

func TestWriteReportCreatesFileInDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	path, err := writeReport(dir, []string{"play", "story.tw"}, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected crash report under %s, got %s", dir, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	if !strings.Contains(string(b), "Command: tweegee play story.tw") {
		t.Fatalf("command line missing: %s", b)
	}
}

func TestWriteReportUploadsWhenOptedIn(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := telemetry.New(telemetry.Config{OptIn: true, CrashURL: srv.URL, Timeout: 2 * time.Second})
	defer c.Close()
	prev := telemetry.SetDefault(c)
	defer telemetry.SetDefault(prev)

	if _, err := writeReport(t.TempDir(), []string{"check"}, "boom", []byte("stack")); err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	select {
	case body := <-got:
		if !strings.Contains(body, "tweegee Crash Report") || !strings.Contains(body, "Panic: boom") {
			t.Fatalf("uploaded report = %q", body)
		}
	default:
		t.Fatalf("report was not uploaded")
	}
}
