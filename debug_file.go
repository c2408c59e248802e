// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rfspy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

var (
	sessionLogFile *os.File
	sessionLogPath string
)

// InitSessionLog opens a timestamped session log named
// rfspy_YYYYMMDD_HHMMSS.log in dir, or in the working directory when dir is
// empty. Every Debugf message is copied to it until CloseSessionLog.
// Returns the log file path for display to the user.
func InitSessionLog(dir string) (string, error) {
	if sessionLogFile != nil {
		return sessionLogPath, nil
	}

	filename := fmt.Sprintf("rfspy_%s.log", time.Now().Format("20060102_150405"))
	if dir != "" {
		filename = filepath.Join(dir, filename)
	}

	logFile, err := os.Create(filename) //nolint:gosec // filename is built from a timestamp
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}
	writeSessionHeader(logFile)

	sessionLogFile = logFile
	sessionLogPath = filename

	debugLog.mu.Lock()
	debugLog.session = logFile
	debugLog.mu.Unlock()

	return filename, nil
}

// CloseSessionLog writes the footer and closes the session log, if any.
func CloseSessionLog() error {
	if sessionLogFile == nil {
		return nil
	}

	debugLog.mu.Lock()
	debugLog.session = nil
	debugLog.mu.Unlock()

	_, _ = fmt.Fprintf(sessionLogFile, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))
	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the open session log path, or "".
func GetSessionLogPath() string {
	return sessionLogPath
}

func writeSessionHeader(w io.Writer) {
	_, _ = fmt.Fprint(w, "=== subg_rfspy Debug Session Log ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "Supported firmware: %s\n", strings.Join(SupportedVersions, ", "))
	_, _ = fmt.Fprintf(w, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(w, "====================================\n\n")
}
