// Package playhtv1 holds the messages of the playht.v1.Tts streaming service
// and their protobuf wire encoding.
package playhtv1

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Quality is the requested synthesis quality.
type Quality int32

// Quality values.
const (
	QualityDraft Quality = iota
	QualityLow
	QualityMedium
	QualityHigh
	QualityPremium
)

// Format is the audio container of the response stream.
type Format int32

// Format values.
const (
	FormatRaw Format = iota
	FormatMP3
	FormatWAV
	FormatOGG
	FormatFLAC
	FormatMULAW
)

// Code is a response frame status.
type Code int32

// Status codes.
const (
	CodeUnspecified Code = 0
	CodeComplete    Code = 1
	CodeInProgress  Code = 2
	CodeCanceled    Code = 3
	CodeError       Code = 4
)

func (c Code) String() string {
	switch c {
	case CodeUnspecified:
		return "UNSPECIFIED"
	case CodeComplete:
		return "COMPLETE"
	case CodeInProgress:
		return "IN_PROGRESS"
	case CodeCanceled:
		return "CANCELED"
	case CodeError:
		return "ERROR"
	}
	return fmt.Sprintf("CODE(%d)", int32(c))
}

// TtsParams are the synthesis parameters of one request.
type TtsParams struct {
	Text              []string
	Voice             string
	Quality           *Quality
	Format            Format
	SampleRate        *int32
	Speed             *float32
	Seed              *int64
	Temperature       *float32
	TopP              *float32
	VoiceGuidance     *float32
	StyleGuidance     *float32
	TextGuidance      *float32
	RepetitionPenalty *float32
}

// TtsRequest is the single message a client sends on a Tts stream.
type TtsRequest struct {
	Params *TtsParams
	Lease  []byte
}

// Status is the optional status of a response frame.
type Status struct {
	Code    Code
	Message []string
}

// TtsResponse is one frame of the response stream.
type TtsResponse struct {
	Status *Status
	Data   []byte
}

const (
	fieldParamsText              protowire.Number = 1
	fieldParamsVoice             protowire.Number = 2
	fieldParamsQuality           protowire.Number = 3
	fieldParamsFormat            protowire.Number = 4
	fieldParamsSampleRate        protowire.Number = 5
	fieldParamsSpeed             protowire.Number = 6
	fieldParamsSeed              protowire.Number = 7
	fieldParamsTemperature       protowire.Number = 8
	fieldParamsTopP              protowire.Number = 9
	fieldParamsVoiceGuidance     protowire.Number = 10
	fieldParamsStyleGuidance     protowire.Number = 11
	fieldParamsTextGuidance      protowire.Number = 12
	fieldParamsRepetitionPenalty protowire.Number = 13

	fieldRequestParams protowire.Number = 1
	fieldRequestLease  protowire.Number = 2

	fieldResponseStatus protowire.Number = 1
	fieldResponseData   protowire.Number = 2

	fieldStatusCode    protowire.Number = 1
	fieldStatusMessage protowire.Number = 2
)

func appendFloat(b []byte, num protowire.Number, v *float32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(*v))
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// Marshal encodes p in protobuf wire format.
func (p *TtsParams) Marshal() ([]byte, error) {
	var b []byte
	for _, t := range p.Text {
		b = appendBytes(b, fieldParamsText, []byte(t))
	}
	if p.Voice != "" {
		b = appendBytes(b, fieldParamsVoice, []byte(p.Voice))
	}
	if p.Quality != nil {
		b = appendVarint(b, fieldParamsQuality, uint64(*p.Quality))
	}
	if p.Format != FormatRaw {
		b = appendVarint(b, fieldParamsFormat, uint64(p.Format))
	}
	if p.SampleRate != nil {
		b = appendVarint(b, fieldParamsSampleRate, uint64(int64(*p.SampleRate)))
	}
	b = appendFloat(b, fieldParamsSpeed, p.Speed)
	if p.Seed != nil {
		b = appendVarint(b, fieldParamsSeed, uint64(*p.Seed))
	}
	b = appendFloat(b, fieldParamsTemperature, p.Temperature)
	b = appendFloat(b, fieldParamsTopP, p.TopP)
	b = appendFloat(b, fieldParamsVoiceGuidance, p.VoiceGuidance)
	b = appendFloat(b, fieldParamsStyleGuidance, p.StyleGuidance)
	b = appendFloat(b, fieldParamsTextGuidance, p.TextGuidance)
	b = appendFloat(b, fieldParamsRepetitionPenalty, p.RepetitionPenalty)
	return b, nil
}

// Unmarshal decodes p from protobuf wire format.
func (p *TtsParams) Unmarshal(b []byte) error {
	*p = TtsParams{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch {
		case num == fieldParamsText && typ == protowire.BytesType:
			p.Text = append(p.Text, string(raw))
		case num == fieldParamsVoice && typ == protowire.BytesType:
			p.Voice = string(raw)
		case num == fieldParamsQuality && typ == protowire.VarintType:
			q := Quality(int32(v))
			p.Quality = &q
		case num == fieldParamsFormat && typ == protowire.VarintType:
			p.Format = Format(int32(v))
		case num == fieldParamsSampleRate && typ == protowire.VarintType:
			sr := int32(v)
			p.SampleRate = &sr
		case num == fieldParamsSeed && typ == protowire.VarintType:
			s := int64(v)
			p.Seed = &s
		case typ == protowire.Fixed32Type:
			f := math.Float32frombits(uint32(v))
			switch num {
			case fieldParamsSpeed:
				p.Speed = &f
			case fieldParamsTemperature:
				p.Temperature = &f
			case fieldParamsTopP:
				p.TopP = &f
			case fieldParamsVoiceGuidance:
				p.VoiceGuidance = &f
			case fieldParamsStyleGuidance:
				p.StyleGuidance = &f
			case fieldParamsTextGuidance:
				p.TextGuidance = &f
			case fieldParamsRepetitionPenalty:
				p.RepetitionPenalty = &f
			}
		}
		return nil
	})
}

// Marshal encodes r in protobuf wire format.
func (r *TtsRequest) Marshal() ([]byte, error) {
	var b []byte
	if r.Params != nil {
		params, err := r.Params.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytes(b, fieldRequestParams, params)
	}
	if len(r.Lease) > 0 {
		b = appendBytes(b, fieldRequestLease, r.Lease)
	}
	return b, nil
}

// Unmarshal decodes r from protobuf wire format.
func (r *TtsRequest) Unmarshal(b []byte) error {
	*r = TtsRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldRequestParams:
			r.Params = &TtsParams{}
			return r.Params.Unmarshal(raw)
		case fieldRequestLease:
			r.Lease = append([]byte(nil), raw...)
		}
		return nil
	})
}

// Marshal encodes s in protobuf wire format.
func (s *Status) Marshal() ([]byte, error) {
	var b []byte
	if s.Code != CodeUnspecified {
		b = appendVarint(b, fieldStatusCode, uint64(s.Code))
	}
	for _, m := range s.Message {
		b = appendBytes(b, fieldStatusMessage, []byte(m))
	}
	return b, nil
}

// Unmarshal decodes s from protobuf wire format.
func (s *Status) Unmarshal(b []byte) error {
	*s = Status{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch {
		case num == fieldStatusCode && typ == protowire.VarintType:
			s.Code = Code(int32(v))
		case num == fieldStatusMessage && typ == protowire.BytesType:
			s.Message = append(s.Message, string(raw))
		}
		return nil
	})
}

// Marshal encodes r in protobuf wire format.
func (r *TtsResponse) Marshal() ([]byte, error) {
	var b []byte
	if r.Status != nil {
		st, err := r.Status.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytes(b, fieldResponseStatus, st)
	}
	if len(r.Data) > 0 {
		b = appendBytes(b, fieldResponseData, r.Data)
	}
	return b, nil
}

// Unmarshal decodes r from protobuf wire format.
func (r *TtsResponse) Unmarshal(b []byte) error {
	*r = TtsResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldResponseStatus:
			r.Status = &Status{}
			return r.Status.Unmarshal(raw)
		case fieldResponseData:
			r.Data = append([]byte(nil), raw...)
		}
		return nil
	})
}

// walk visits every field of b. For varint and fixed fields v holds the value;
// for length-delimited fields raw holds the payload. Unknown field types are
// skipped.
func walk(b []byte, visit func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("playhtv1: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var f uint32
			f, n = protowire.ConsumeFixed32(b)
			v = uint64(f)
		case protowire.Fixed64Type:
			v, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("playhtv1: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := visit(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}
