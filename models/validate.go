package models

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

var ErrSchemaViolation = errors.New("schema violation")

// SchemaViolation names the offending field of a Collection.
type SchemaViolation struct {
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation: %s: %s", e.Field, e.Reason)
}

func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

// Validate reports every missing required field and every field that does
// not belong to the Collection's version. The returned error is a
// *multierror.Error of *SchemaViolation values, or nil.
func (c *Collection) Validate() error {
	if c == nil {
		return &SchemaViolation{Field: "collection", Reason: "is nil"}
	}

	var result *multierror.Error
	violate := func(field, reason string) {
		result = multierror.Append(result, &SchemaViolation{Field: field, Reason: reason})
	}

	if !c.Version.Valid() {
		violate("version", fmt.Sprintf("unsupported %s", c.Version))
	}

	required := []struct {
		field string
		value string
	}{
		{"device_id", c.DeviceID},
		{"client_id", c.ClientID},
		{"session", c.Session},
		{"system_version", c.SystemVersion},
		{"product_version", c.ProductVersion},
	}
	for _, r := range required {
		if r.value == "" {
			violate(r.field, "required field not set")
		}
	}

	if c.System != "" && !c.System.Valid() {
		violate("system", fmt.Sprintf("unknown system %q", c.System))
	}
	if c.Version == V1 && c.Env != nil {
		violate("env", "not part of the v1 schema")
	}

	if !c.HasPayloads() {
		violate("payloads", "at least one payload is required")
	}
	for i, p := range c.Payloads {
		field := func(name string) string {
			return fmt.Sprintf("payloads[%d].%s", i, name)
		}
		if p == nil {
			violate(fmt.Sprintf("payloads[%d]", i), "is nil")
			continue
		}
		if p.At.IsZero() {
			violate(field("at"), "required field not set")
		}
		if p.Event == "" {
			violate(field("event"), "required field not set")
		}
		if p.Nr == 0 {
			violate(field("nr"), "must be a positive counter")
		}

		switch c.Version {
		case V1:
			if p.IP != nil {
				violate(field("ip"), "not part of the v1 schema")
			}
			if p.UserID != "" {
				if _, err := strconv.ParseUint(p.UserID, 10, 32); err != nil {
					violate(field("user_id"), fmt.Sprintf("v1 requires a numeric id, got %q", p.UserID))
				}
			}
		case V2:
			if p.IsTesting != nil {
				violate(field("is_testing"), "not part of the v2 schema")
			}
		}
	}

	return result.ErrorOrNil()
}
