package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frame type ids (§3 data model table). These tag the 1-byte header field,
// not a protobuf field number.
const (
	TypeRunMode    byte = 0
	TypeStartPos   byte = 1
	TypeLog        byte = 2
	TypeDeviceData byte = 3
	// 4 is intentionally unassigned in the upstream protocol.
	TypeInputs     byte = 5
	TypeTimeStamps byte = 6
)

// RunModeValue is the remote run-mode enum. Order matches the original
// protocol's numbering (IDLE=0 first).
type RunModeValue int32

const (
	RunModeIdle RunModeValue = iota
	RunModeAuto
	RunModeTeleop
	RunModeEstop
	RunModeChallenge
)

func (m RunModeValue) String() string {
	switch m {
	case RunModeIdle:
		return "IDLE"
	case RunModeAuto:
		return "AUTO"
	case RunModeTeleop:
		return "TELEOP"
	case RunModeEstop:
		return "ESTOP"
	case RunModeChallenge:
		return "CHALLENGE"
	default:
		return fmt.Sprintf("RunMode(%d)", int32(m))
	}
}

// RunMode is the type-0 payload: a single enum field.
type RunMode struct {
	Mode RunModeValue
}

func EncodeRunMode(m RunModeValue) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m))
	return b
}

func DecodeRunMode(data []byte) (RunMode, error) {
	var out RunMode
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return out, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return out, protowire.ParseError(n)
			}
			out.Mode = RunModeValue(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return out, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return out, nil
}

// StartPos carries the (currently unused) starting-position enum sent
// host→robot. Kept for wire-format completeness; nothing in this daemon
// builds one.
type StartPos struct {
	Value int32
}

func EncodeStartPos(v int32) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v))
	return b
}

// Text is the type-2 Log payload: a repeated string field.
type Text struct {
	Payload []string
}

func EncodeText(lines []string) []byte {
	var b []byte
	for _, line := range lines {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, line)
	}
	return b
}

func DecodeText(data []byte) (Text, error) {
	var out Text
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return out, err
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return out, protowire.ParseError(n)
			}
			out.Payload = append(out.Payload, s)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return out, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return out, nil
}

// Param is one device parameter: a name plus exactly one of four typed
// values (the "oneof" in the original schema, modeled here as optional
// pointers since protowire has no native oneof support).
type Param struct {
	Name      string
	BoolVal   *bool
	FloatVal  *float32
	IntVal    *int64
	StringVal *string
}

func decodeParam(data []byte) (Param, error) {
	var p Param
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return p, err
		}
		data = data[n:]
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Name = s
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b := v != 0
			p.BoolVal = &b
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			f := decodeFloat32(v)
			p.FloatVal = &f
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			iv := int64(v)
			p.IntVal = &iv
			data = data[n:]
		case 5:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.StringVal = &s
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return p, nil
}

func encodeParam(p Param) []byte {
	var b []byte
	if p.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, p.Name)
	}
	switch {
	case p.BoolVal != nil:
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		v := uint64(0)
		if *p.BoolVal {
			v = 1
		}
		b = protowire.AppendVarint(b, v)
	case p.FloatVal != nil:
		b = protowire.AppendTag(b, 3, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, encodeFloat32(*p.FloatVal))
	case p.IntVal != nil:
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*p.IntVal))
	case p.StringVal != nil:
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, *p.StringVal)
	}
	return b
}

// Device is one telemetry device record: a type tag, a unique id, a
// human name, and its current parameters.
type Device struct {
	Type   uint32
	UID    uint64
	Name   string
	Params []Param
}

func encodeDevice(d Device) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Type))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, d.UID)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, d.Name)
	for _, p := range d.Params {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeParam(p))
	}
	return b
}

func decodeDevice(data []byte) (Device, error) {
	var d Device
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return d, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.Type = uint32(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.UID = v
			data = data[n:]
		case 3:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.Name = s
			data = data[n:]
		case 4:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			p, err := decodeParam(sub)
			if err != nil {
				return d, err
			}
			d.Params = append(d.Params, p)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return d, nil
}

// DevData is the type-3 DeviceData payload: a repeated list of devices.
type DevData struct {
	Devices []Device
}

func EncodeDevData(devices []Device) []byte {
	var b []byte
	for _, d := range devices {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeDevice(d))
	}
	return b
}

func DecodeDevData(data []byte) (DevData, error) {
	var out DevData
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return out, err
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out, protowire.ParseError(n)
			}
			dev, err := decodeDevice(sub)
			if err != nil {
				return out, err
			}
			out.Devices = append(out.Devices, dev)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return out, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return out, nil
}

// InputSource identifies where an Input came from.
type InputSource int32

const (
	SourceKeyboard InputSource = 0
	SourceGamepad  InputSource = 1
)

// Input is one player's sampled controller state: a fixed 64-bit button
// bitmap (indices in §6 of the wire format) plus a variable axis list.
type Input struct {
	Connected bool
	Source    InputSource
	Buttons   uint64
	Axes      []float32
}

func encodeInput(in Input) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	v := uint64(0)
	if in.Connected {
		v = 1
	}
	b = protowire.AppendVarint(b, v)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(in.Source))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, in.Buttons)
	for _, a := range in.Axes {
		b = protowire.AppendTag(b, 4, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, encodeFloat32(a))
	}
	return b
}

// DecodeInput parses a single Input message, the shape the Bridge
// Router forwards from a client's FORWARD_INPUTS body.
func DecodeInput(data []byte) (Input, error) {
	return decodeInput(data)
}

func decodeInput(data []byte) (Input, error) {
	var in Input
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return in, err
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return in, protowire.ParseError(n)
			}
			in.Connected = v != 0
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return in, protowire.ParseError(n)
			}
			in.Source = InputSource(v)
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return in, protowire.ParseError(n)
			}
			in.Buttons = v
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return in, protowire.ParseError(n)
			}
			in.Axes = append(in.Axes, decodeFloat32(v))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return in, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return in, nil
}

// UserInputs is the type-5 Inputs payload: one Input per connected
// player, in player order.
type UserInputs struct {
	Inputs []Input
}

func EncodeUserInputs(inputs []Input) []byte {
	var b []byte
	for _, in := range inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeInput(in))
	}
	return b
}

func DecodeUserInputs(data []byte) (UserInputs, error) {
	var out UserInputs
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return out, err
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return out, protowire.ParseError(n)
			}
			in, err := decodeInput(sub)
			if err != nil {
				return out, err
			}
			out.Inputs = append(out.Inputs, in)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return out, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return out, nil
}

// TimeStamps is the type-6 payload. Both directions ignore its contents
// (§4.4); it is parsed only far enough to skip it cleanly.
type TimeStamps struct{}

func DecodeTimeStamps(data []byte) (TimeStamps, error) {
	for len(data) > 0 {
		num, typ, n, err := consumeTag(data)
		if err != nil {
			return TimeStamps{}, err
		}
		data = data[n:]
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return TimeStamps{}, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return TimeStamps{}, nil
}

var errMalformedTag = errors.New("wire: malformed protobuf tag")

func consumeTag(data []byte) (protowire.Number, protowire.Type, int, error) {
	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 {
		return 0, 0, 0, errMalformedTag
	}
	return num, typ, n, nil
}

func encodeFloat32(f float32) uint32 {
	return math.Float32bits(f)
}

func decodeFloat32(v uint32) float32 {
	return math.Float32frombits(v)
}
