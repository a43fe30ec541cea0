// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package firmata

import "testing"

func TestTwoByte(t *testing.T) {
	if v := TwoByteToWord(0x7F, 0x7F); v != 0x3FFF {
		t.Errorf("TwoByteToWord = 0x%X", v)
	}
	if v := TwoByteToWord(0xFF, 0x01); v != 0xFF {
		t.Errorf("high bits not masked: 0x%X", v)
	}
	if lsb, msb := WordToTwoByte(1023); lsb != 0x7F || msb != 0x07 {
		t.Errorf("WordToTwoByte(1023) = 0x%X 0x%X", lsb, msb)
	}
	if b := TwoByteToByte(0x7F, 0x01); b != 0xFF {
		t.Errorf("TwoByteToByte = 0x%X", b)
	}
	if s := TwoByteString([]byte{'o', 0, 'k', 0, '!'}); s != "ok!" {
		t.Errorf("TwoByteString = %q", s)
	}
}

func TestMessageTypeString(t *testing.T) {
	for m, want := range map[MessageType]string{
		0xE5:            "AnalogIOMessage",
		0x93:            "DigitalIOMessage",
		ReportAnalogPin: "ReportAnalogPin",
		0xD1:            "ReportDigitalPort",
		StartSysEx:      "StartSysEx",
		ProtocolVersion: "ProtocolVersion",
		0x85:            "MessageType(0x85)",
	} {
		if got := m.String(); got != want {
			t.Errorf("%#x: %q, want %q", uint8(m), got, want)
		}
	}
}
