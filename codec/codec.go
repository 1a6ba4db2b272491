// Package codec renders a models.Collection into the two wire formats a
// collector accepts and parses them back.
//
// Both encoders walk the schema in one fixed field order, so the bytes for a
// given Collection never change between calls. Signatures are computed over
// these exact bytes.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"hamustro/models"
)

type Format string

const (
	FormatProtobuf Format = "protobuf"
	FormatJSON     Format = "json"
)

var Formats = []Format{FormatProtobuf, FormatJSON}

var (
	ErrUnknownFormat = errors.New("unknown format")

	// ErrLegacyFormat reports a non-protobuf format paired with V1. Legacy
	// collectors only ever accepted protobuf bodies.
	ErrLegacyFormat = errors.New("legacy messages support protobuf only")
)

// Supports reports whether collectors of version v accept format f.
func Supports(v models.Version, f Format) error {
	if v == models.V1 && f != FormatProtobuf {
		return fmt.Errorf("%w, got %s", ErrLegacyFormat, f)
	}
	return nil
}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatProtobuf, "pb", "proto":
		return FormatProtobuf, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w %q (expected protobuf or json)", ErrUnknownFormat, s)
}

// ParseFormats parses a comma separated list, dropping duplicates.
func ParseFormats(list string) ([]Format, error) {
	var formats []Format
	seen := make(map[Format]bool)
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: empty format list", ErrUnknownFormat)
	}
	return formats, nil
}

// Ext is the fixture file extension for the format.
func (f Format) Ext() string {
	if f == FormatProtobuf {
		return "pb"
	}
	return string(f)
}

func (f Format) ContentType() string {
	return "application/" + string(f) + "; charset=utf-8"
}

// Marshal validates c and serializes it. A Collection missing a required
// field yields a models.ErrSchemaViolation error and no output.
func Marshal(c *models.Collection, f Format) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch f {
	case FormatProtobuf:
		return marshalProto(c), nil
	case FormatJSON:
		return marshalJSON(c)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFormat, f)
}

// Unmarshal parses data as a Collection of the given version. Fields of the
// other version are rejected, not ignored.
func Unmarshal(data []byte, f Format, v models.Version) (*models.Collection, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("unmarshal: unsupported %s", v)
	}

	var (
		c   *models.Collection
		err error
	)
	switch f {
	case FormatProtobuf:
		c, err = unmarshalProto(data, v)
	case FormatJSON:
		c, err = unmarshalJSON(data, v)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s %s collection: %w", v, f, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
