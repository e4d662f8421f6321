package wire

import "testing"

func TestRunModeRoundTrip(t *testing.T) {
	for _, mode := range []RunModeValue{RunModeIdle, RunModeAuto, RunModeTeleop, RunModeEstop, RunModeChallenge} {
		encoded := EncodeRunMode(mode)
		decoded, err := DecodeRunMode(encoded)
		if err != nil {
			t.Fatalf("DecodeRunMode(%v): %v", mode, err)
		}
		if decoded.Mode != mode {
			t.Errorf("got %v, want %v", decoded.Mode, mode)
		}
	}
}

func TestTextRoundTrip(t *testing.T) {
	lines := []string{"line one", "line two", ""}
	encoded := EncodeText(lines)
	decoded, err := DecodeText(encoded)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if len(decoded.Payload) != len(lines) {
		t.Fatalf("got %d lines, want %d", len(decoded.Payload), len(lines))
	}
	for i, l := range lines {
		if decoded.Payload[i] != l {
			t.Errorf("line %d = %q, want %q", i, decoded.Payload[i], l)
		}
	}
}

func TestDevDataRoundTrip(t *testing.T) {
	b := true
	f := float32(1.5)
	i := int64(-7)
	s := "ready"

	devices := []Device{
		{
			Type: 4, UID: 0xdeadbeef, Name: "motor0",
			Params: []Param{
				{Name: "enabled", BoolVal: &b},
				{Name: "velocity", FloatVal: &f},
			},
		},
		{
			Type: 9, UID: 1, Name: "sensor1",
			Params: []Param{
				{Name: "count", IntVal: &i},
				{Name: "state", StringVal: &s},
			},
		},
	}

	encoded := EncodeDevData(devices)
	decoded, err := DecodeDevData(encoded)
	if err != nil {
		t.Fatalf("DecodeDevData: %v", err)
	}
	if len(decoded.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(decoded.Devices))
	}

	d0 := decoded.Devices[0]
	if d0.Type != 4 || d0.UID != 0xdeadbeef || d0.Name != "motor0" {
		t.Errorf("device 0 mismatch: %+v", d0)
	}
	if len(d0.Params) != 2 || d0.Params[0].BoolVal == nil || *d0.Params[0].BoolVal != true {
		t.Errorf("device 0 params mismatch: %+v", d0.Params)
	}
	if d0.Params[1].FloatVal == nil || *d0.Params[1].FloatVal != 1.5 {
		t.Errorf("device 0 float param mismatch: %+v", d0.Params[1])
	}

	d1 := decoded.Devices[1]
	if d1.Params[0].IntVal == nil || *d1.Params[0].IntVal != -7 {
		t.Errorf("device 1 int param mismatch: %+v", d1.Params[0])
	}
	if d1.Params[1].StringVal == nil || *d1.Params[1].StringVal != "ready" {
		t.Errorf("device 1 string param mismatch: %+v", d1.Params[1])
	}
}

func TestUserInputsRoundTrip(t *testing.T) {
	inputs := []Input{
		{Connected: true, Source: SourceGamepad, Buttons: 1 << 11, Axes: []float32{0.1, -0.2, 0.0, 1.0}},
		{Connected: false, Source: SourceKeyboard, Buttons: 0, Axes: nil},
	}

	encoded := EncodeUserInputs(inputs)
	decoded, err := DecodeUserInputs(encoded)
	if err != nil {
		t.Fatalf("DecodeUserInputs: %v", err)
	}
	if len(decoded.Inputs) != 2 {
		t.Fatalf("got %d inputs, want 2", len(decoded.Inputs))
	}
	if !decoded.Inputs[0].Connected || decoded.Inputs[0].Source != SourceGamepad {
		t.Errorf("input 0 mismatch: %+v", decoded.Inputs[0])
	}
	if decoded.Inputs[0].Buttons != 1<<11 {
		t.Errorf("input 0 buttons = %x, want %x", decoded.Inputs[0].Buttons, uint64(1<<11))
	}
	if len(decoded.Inputs[0].Axes) != 4 || decoded.Inputs[0].Axes[1] != -0.2 {
		t.Errorf("input 0 axes mismatch: %+v", decoded.Inputs[0].Axes)
	}
	if decoded.Inputs[1].Connected {
		t.Errorf("input 1 should be disconnected")
	}
}

func TestDecodeRunModeMalformedIsError(t *testing.T) {
	_, err := DecodeRunMode([]byte{0xFF})
	if err == nil {
		t.Fatal("expected an error decoding a malformed tag")
	}
}
