package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"hamustro/models"
)

// The JSON shapes below mirror the protobuf field order; struct field order
// is the key order of the output.

type jsonPayloadV1 struct {
	At        string  `json:"at"`
	Event     string  `json:"event"`
	Nr        uint32  `json:"nr"`
	UserID    *uint32 `json:"user_id,omitempty"`
	IsTesting *bool   `json:"is_testing,omitempty"`
}

type jsonCollectionV1 struct {
	DeviceID       string          `json:"device_id"`
	ClientID       string          `json:"client_id"`
	Session        string          `json:"session"`
	SystemVersion  string          `json:"system_version"`
	ProductVersion string          `json:"product_version"`
	System         string          `json:"system,omitempty"`
	Payloads       []jsonPayloadV1 `json:"payloads"`
}

type jsonPayloadV2 struct {
	At     int64   `json:"at"`
	Event  string  `json:"event"`
	Nr     uint32  `json:"nr"`
	UserID string  `json:"user_id,omitempty"`
	IP     *string `json:"ip,omitempty"`
}

type jsonCollectionV2 struct {
	DeviceID       string          `json:"device_id"`
	ClientID       string          `json:"client_id"`
	Session        string          `json:"session"`
	SystemVersion  string          `json:"system_version"`
	ProductVersion string          `json:"product_version"`
	Env            *int32          `json:"env,omitempty"`
	System         string          `json:"system,omitempty"`
	Payloads       []jsonPayloadV2 `json:"payloads"`
}

func marshalJSON(c *models.Collection) ([]byte, error) {
	var doc any
	switch c.Version {
	case models.V1:
		out := jsonCollectionV1{
			DeviceID:       c.DeviceID,
			ClientID:       c.ClientID,
			Session:        c.Session,
			SystemVersion:  c.SystemVersion,
			ProductVersion: c.ProductVersion,
			System:         string(c.System),
			Payloads:       make([]jsonPayloadV1, 0, len(c.Payloads)),
		}
		for _, p := range c.Payloads {
			jp := jsonPayloadV1{
				At:        p.At.UTC().Format(models.IsoFormat),
				Event:     p.Event,
				Nr:        p.Nr,
				IsTesting: p.IsTesting,
			}
			if p.UserID != "" {
				id, err := strconv.ParseUint(p.UserID, 10, 32)
				if err != nil {
					return nil, fmt.Errorf("user_id: %w", err)
				}
				uid := uint32(id)
				jp.UserID = &uid
			}
			out.Payloads = append(out.Payloads, jp)
		}
		doc = out
	case models.V2:
		out := jsonCollectionV2{
			DeviceID:       c.DeviceID,
			ClientID:       c.ClientID,
			Session:        c.Session,
			SystemVersion:  c.SystemVersion,
			ProductVersion: c.ProductVersion,
			System:         string(c.System),
			Payloads:       make([]jsonPayloadV2, 0, len(c.Payloads)),
		}
		if c.Env != nil {
			env := int32(*c.Env)
			out.Env = &env
		}
		for _, p := range c.Payloads {
			out.Payloads = append(out.Payloads, jsonPayloadV2{
				At:     p.At.Unix(),
				Event:  p.Event,
				Nr:     p.Nr,
				UserID: p.UserID,
				IP:     p.IP,
			})
		}
		doc = out
	default:
		return nil, fmt.Errorf("marshal json: unsupported %s", c.Version)
	}
	return json.Marshal(doc)
}

// decodeStrict decodes exactly one JSON document into v, refusing unknown
// keys and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after collection")
	}
	return nil
}

func unmarshalJSON(data []byte, v models.Version) (*models.Collection, error) {
	switch v {
	case models.V1:
		var in jsonCollectionV1
		if err := decodeStrict(data, &in); err != nil {
			return nil, err
		}
		c := &models.Collection{
			Version:        v,
			DeviceID:       in.DeviceID,
			ClientID:       in.ClientID,
			Session:        in.Session,
			SystemVersion:  in.SystemVersion,
			ProductVersion: in.ProductVersion,
			System:         models.System(in.System),
		}
		for i, jp := range in.Payloads {
			at, err := time.Parse(models.IsoFormat, jp.At)
			if err != nil {
				return nil, fmt.Errorf("payloads[%d].at: %w", i, err)
			}
			p := &models.Payload{
				At:        at,
				Event:     jp.Event,
				Nr:        jp.Nr,
				IsTesting: jp.IsTesting,
			}
			if jp.UserID != nil {
				p.UserID = strconv.FormatUint(uint64(*jp.UserID), 10)
			}
			c.Payloads = append(c.Payloads, p)
		}
		return c, nil
	default:
		var in jsonCollectionV2
		if err := decodeStrict(data, &in); err != nil {
			return nil, err
		}
		c := &models.Collection{
			Version:        v,
			DeviceID:       in.DeviceID,
			ClientID:       in.ClientID,
			Session:        in.Session,
			SystemVersion:  in.SystemVersion,
			ProductVersion: in.ProductVersion,
			System:         models.System(in.System),
		}
		if in.Env != nil {
			c.Env = models.Env(models.Environment(*in.Env))
		}
		for _, jp := range in.Payloads {
			c.Payloads = append(c.Payloads, &models.Payload{
				At:     time.Unix(jp.At, 0).UTC(),
				Event:  jp.Event,
				Nr:     jp.Nr,
				UserID: jp.UserID,
				IP:     jp.IP,
			})
		}
		return c, nil
	}
}
