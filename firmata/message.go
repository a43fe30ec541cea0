// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package firmata

import (
	"fmt"
	"strings"
)

// MessageType is the first byte of a message.
//
// The low nibble of the channel messages carries the pin or port number.
type MessageType uint8

const (
	AnalogIOMessage   MessageType = 0xE0 // pin #	LSB(bits 0-6)	MSB(bits 7-13)
	DigitalIOMessage  MessageType = 0x90 // port	LSB(bits 0-6)	MSB(bits 7-13)
	ReportAnalogPin   MessageType = 0xC0 // pin #	disable/enable(0/1)
	ReportDigitalPort MessageType = 0xD0 // port	disable/enable(0/1)
	StartSysEx        MessageType = 0xF0
	EndSysEx          MessageType = 0xF7
	ProtocolVersion   MessageType = 0xF9 // major version	minor version
	SystemReset       MessageType = 0xFF
)

func (m MessageType) String() string {
	switch {
	case AnalogIOMessage <= m && m <= AnalogIOMessage+0xF:
		return "AnalogIOMessage"
	case DigitalIOMessage <= m && m <= DigitalIOMessage+0xF:
		return "DigitalIOMessage"
	case ReportAnalogPin <= m && m <= ReportAnalogPin+0xF:
		return "ReportAnalogPin"
	case ReportDigitalPort <= m && m <= ReportDigitalPort+0xF:
		return "ReportDigitalPort"
	}
	switch m {
	case StartSysEx:
		return "StartSysEx"
	case EndSysEx:
		return "EndSysEx"
	case ProtocolVersion:
		return "ProtocolVersion"
	case SystemReset:
		return "SystemReset"
	default:
		return fmt.Sprintf("MessageType(0x%02X)", uint8(m))
	}
}

// SysExCmd is the command byte following StartSysEx.
type SysExCmd uint8

const (
	SysExStringData       SysExCmd = 0x71 // a string message with 14-bits per char
	SysExReportFirmware   SysExCmd = 0x79 // report name and version of the firmware
	SysExSamplingInterval SysExCmd = 0x7A // the interval at which analog input is sampled (default = 19ms)
)

// MaxSamplingInterval is the largest interval in ms that fits the two
// 7-bit data bytes of the sampling interval command.
const MaxSamplingInterval = 1<<14 - 1

// AnalogPins is the number of analog pins addressable by the channel
// messages.
const AnalogPins = 16

const sevenBitMask byte = 0x7F

// TwoByteToByte joins two 7-bit data bytes, LSB first.
func TwoByteToByte(a, b byte) byte {
	return (a & sevenBitMask) | (b&sevenBitMask)<<7
}

// TwoByteToWord joins two 7-bit data bytes into a 14-bit value, LSB first.
func TwoByteToWord(a, b byte) uint16 {
	return uint16(a&sevenBitMask) | uint16(b&sevenBitMask)<<7
}

// WordToTwoByte splits the low 14 bits of w into two 7-bit data bytes.
func WordToTwoByte(w uint16) (lsb, msb byte) {
	return byte(w) & sevenBitMask, byte(w>>7) & sevenBitMask
}

// TwoByteString decodes a string sent as pairs of 7-bit data bytes.
func TwoByteString(b []byte) string {
	var s strings.Builder
	for i := 0; i+1 < len(b); i += 2 {
		_ = s.WriteByte(TwoByteToByte(b[i], b[i+1]))
	}
	if len(b)%2 == 1 {
		_ = s.WriteByte(b[len(b)-1] & sevenBitMask)
	}
	return s.String()
}

// FirmwareReport is the reply to SysExReportFirmware, also sent by the
// board when it boots.
type FirmwareReport struct {
	Major byte
	Minor byte
	// Name is encoded as pairs of 7-bit data bytes.
	Name []byte
}

func (r FirmwareReport) String() string {
	return fmt.Sprintf("%s [%d.%d]", TwoByteString(r.Name), r.Major, r.Minor)
}
