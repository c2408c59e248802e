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

import "fmt"

// Command is a subg_rfspy command identifier, sent as the first byte of every request.
type Command byte

// subg_rfspy command codes
const (
	CmdGetState       Command = 0x01
	CmdGetVersion     Command = 0x02
	CmdGetPacket      Command = 0x03
	CmdSendPacket     Command = 0x04
	CmdSendAndListen  Command = 0x05
	CmdUpdateRegister Command = 0x06
	CmdReset          Command = 0x07
)

func (c Command) String() string {
	switch c {
	case CmdGetState:
		return "GetState"
	case CmdGetVersion:
		return "GetVersion"
	case CmdGetPacket:
		return "GetPacket"
	case CmdSendPacket:
		return "SendPacket"
	case CmdSendAndListen:
		return "SendAndListen"
	case CmdUpdateRegister:
		return "UpdateRegister"
	case CmdReset:
		return "Reset"
	default:
		return fmt.Sprintf("Command(0x%02X)", byte(c))
	}
}

// ErrorCode is the single status byte the accessory returns instead of a packet.
type ErrorCode byte

// Status codes reported by subg_rfspy
const (
	ErrorRXTimeout      ErrorCode = 0xAA
	ErrorCmdInterrupted ErrorCode = 0xBB
	ErrorZeroData       ErrorCode = 0xCC
)

// String returns the human-readable category for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorRXTimeout:
		return "Timeout"
	case ErrorCmdInterrupted:
		return "Command Interrupted"
	case ErrorZeroData:
		return "Zero Data"
	default:
		return "Unknown Error"
	}
}

// Known reports whether the code is one subg_rfspy documents.
func (c ErrorCode) Known() bool {
	switch c {
	case ErrorRXTimeout, ErrorCmdInterrupted, ErrorZeroData:
		return true
	default:
		return false
	}
}
