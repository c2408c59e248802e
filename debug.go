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
	"time"

	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
)

// debugLog holds the console and session log destinations.
// Console output is off unless RFSPY_DEBUG or DEBUG is set.
var debugLog = struct {
	console io.Writer
	session io.Writer
	mu      syncutil.Mutex
	enabled bool
}{
	console: os.Stderr,
}

func init() {
	if os.Getenv("RFSPY_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugLog.enabled = true
	}
}

// Debugf logs a formatted debug message. The message always goes to the
// session log when one is open, and to the console when debug is enabled.
func Debugf(format string, args ...any) {
	writeDebug(fmt.Sprintf(format, args...))
}

// Debugln is Debugf with fmt.Sprintln formatting
func Debugln(args ...any) {
	msg := fmt.Sprintln(args...)
	writeDebug(msg[:len(msg)-1])
}

func writeDebug(message string) {
	debugLog.mu.Lock()
	defer debugLog.mu.Unlock()

	if debugLog.session != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(debugLog.session, "%s DEBUG: %s\n", timestamp, message)
	}
	if debugLog.enabled && debugLog.console != nil {
		_, _ = fmt.Fprintf(debugLog.console, "DEBUG: %s\n", message)
	}
}

// SetDebugEnabled turns console debug output on or off
func SetDebugEnabled(enabled bool) {
	debugLog.mu.Lock()
	debugLog.enabled = enabled
	debugLog.mu.Unlock()
}

// DebugEnabled reports whether console debug output is on
func DebugEnabled() bool {
	debugLog.mu.Lock()
	defer debugLog.mu.Unlock()
	return debugLog.enabled
}

// SetDebugOutput redirects console debug output; nil silences it.
// The default is os.Stderr so packet output on stdout stays clean.
func SetDebugOutput(w io.Writer) {
	debugLog.mu.Lock()
	debugLog.console = w
	debugLog.mu.Unlock()
}
