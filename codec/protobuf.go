package codec

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"hamustro/models"
)

// Field numbers of the Collection message.
const (
	collectionDeviceID       protowire.Number = 1
	collectionClientID       protowire.Number = 2
	collectionSession        protowire.Number = 3
	collectionSystemVersion  protowire.Number = 4
	collectionProductVersion protowire.Number = 5
	collectionEnv            protowire.Number = 6 // v2
	collectionSystem         protowire.Number = 7
	collectionPayloads       protowire.Number = 8
)

// Field numbers of the Payload message.
const (
	payloadAt        protowire.Number = 1 // v1: bytes (iso), v2: varint (epoch)
	payloadEvent     protowire.Number = 2
	payloadNr        protowire.Number = 3
	payloadUserID    protowire.Number = 4 // v1: varint, v2: bytes
	payloadIP        protowire.Number = 5 // v2
	payloadIsTesting protowire.Number = 6 // v1
)

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func marshalProto(c *models.Collection) []byte {
	var b []byte
	b = appendString(b, collectionDeviceID, c.DeviceID)
	b = appendString(b, collectionClientID, c.ClientID)
	b = appendString(b, collectionSession, c.Session)
	b = appendString(b, collectionSystemVersion, c.SystemVersion)
	b = appendString(b, collectionProductVersion, c.ProductVersion)
	if c.Env != nil {
		b = appendVarint(b, collectionEnv, uint64(*c.Env))
	}
	b = appendString(b, collectionSystem, string(c.System))
	for _, p := range c.Payloads {
		b = protowire.AppendTag(b, collectionPayloads, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalPayload(c.Version, p))
	}
	return b
}

func marshalPayload(v models.Version, p *models.Payload) []byte {
	var b []byte
	if v == models.V1 {
		b = appendString(b, payloadAt, p.At.UTC().Format(models.IsoFormat))
	} else {
		b = appendVarint(b, payloadAt, uint64(p.At.Unix()))
	}
	b = appendString(b, payloadEvent, p.Event)
	b = appendVarint(b, payloadNr, uint64(p.Nr))
	if p.UserID != "" {
		if v == models.V1 {
			// Validate guarantees a uint32 here.
			id, _ := strconv.ParseUint(p.UserID, 10, 32)
			b = appendVarint(b, payloadUserID, id)
		} else {
			b = appendString(b, payloadUserID, p.UserID)
		}
	}
	if p.IP != nil {
		b = protowire.AppendTag(b, payloadIP, protowire.BytesType)
		b = protowire.AppendString(b, *p.IP)
	}
	if p.IsTesting != nil {
		b = appendVarint(b, payloadIsTesting, protowire.EncodeBool(*p.IsTesting))
	}
	return b
}

// field is one decoded tag/value pair.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	bytes []byte
	value uint64
}

// walk consumes every field of b and hands it to fn.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			return fmt.Errorf("field %d: unsupported wire type %d", num, typ)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func wireTypeError(name string, f field, want protowire.Type) error {
	return fmt.Errorf("%s (field %d): wire type %d, want %d", name, f.num, f.typ, want)
}

func unmarshalProto(data []byte, v models.Version) (*models.Collection, error) {
	c := &models.Collection{Version: v}

	str := func(name string, f field, dst *string) error {
		if f.typ != protowire.BytesType {
			return wireTypeError(name, f, protowire.BytesType)
		}
		*dst = string(f.bytes)
		return nil
	}

	err := walk(data, func(f field) error {
		switch f.num {
		case collectionDeviceID:
			return str("device_id", f, &c.DeviceID)
		case collectionClientID:
			return str("client_id", f, &c.ClientID)
		case collectionSession:
			return str("session", f, &c.Session)
		case collectionSystemVersion:
			return str("system_version", f, &c.SystemVersion)
		case collectionProductVersion:
			return str("product_version", f, &c.ProductVersion)
		case collectionSystem:
			var s string
			if err := str("system", f, &s); err != nil {
				return err
			}
			c.System = models.System(s)
		case collectionEnv:
			if v != models.V2 {
				return fmt.Errorf("env (field %d) is not part of the %s schema", f.num, v)
			}
			if f.typ != protowire.VarintType {
				return wireTypeError("env", f, protowire.VarintType)
			}
			c.Env = models.Env(models.Environment(int32(f.value)))
		case collectionPayloads:
			if f.typ != protowire.BytesType {
				return wireTypeError("payloads", f, protowire.BytesType)
			}
			p, err := unmarshalPayload(f.bytes, v)
			if err != nil {
				return fmt.Errorf("payloads[%d]: %w", len(c.Payloads), err)
			}
			c.Payloads = append(c.Payloads, p)
		default:
			return fmt.Errorf("unknown collection field %d", f.num)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshalPayload(data []byte, v models.Version) (*models.Payload, error) {
	p := &models.Payload{}
	err := walk(data, func(f field) error {
		switch f.num {
		case payloadAt:
			if v == models.V1 {
				if f.typ != protowire.BytesType {
					return wireTypeError("at", f, protowire.BytesType)
				}
				at, err := time.Parse(models.IsoFormat, string(f.bytes))
				if err != nil {
					return fmt.Errorf("at: %w", err)
				}
				p.At = at
			} else {
				if f.typ != protowire.VarintType {
					return wireTypeError("at", f, protowire.VarintType)
				}
				p.At = time.Unix(int64(f.value), 0).UTC()
			}
		case payloadEvent:
			if f.typ != protowire.BytesType {
				return wireTypeError("event", f, protowire.BytesType)
			}
			p.Event = string(f.bytes)
		case payloadNr:
			if f.typ != protowire.VarintType {
				return wireTypeError("nr", f, protowire.VarintType)
			}
			p.Nr = uint32(f.value)
		case payloadUserID:
			if v == models.V1 {
				if f.typ != protowire.VarintType {
					return wireTypeError("user_id", f, protowire.VarintType)
				}
				p.UserID = strconv.FormatUint(uint64(uint32(f.value)), 10)
			} else {
				if f.typ != protowire.BytesType {
					return wireTypeError("user_id", f, protowire.BytesType)
				}
				p.UserID = string(f.bytes)
			}
		case payloadIP:
			if v != models.V2 {
				return fmt.Errorf("ip (field %d) is not part of the %s schema", f.num, v)
			}
			if f.typ != protowire.BytesType {
				return wireTypeError("ip", f, protowire.BytesType)
			}
			p.IP = models.String(string(f.bytes))
		case payloadIsTesting:
			if v != models.V1 {
				return fmt.Errorf("is_testing (field %d) is not part of the %s schema", f.num, v)
			}
			if f.typ != protowire.VarintType {
				return wireTypeError("is_testing", f, protowire.VarintType)
			}
			p.IsTesting = models.Bool(protowire.DecodeBool(f.value))
		default:
			return fmt.Errorf("unknown payload field %d", f.num)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
