package models

import (
	"fmt"
	"strings"
	"time"
)

// Version selects the schema and signature generation of a message.
// The two generations are not interchangeable on the wire.
type Version int

const (
	V1 Version = iota + 1 // legacy: ISO-8601 at, numeric user_id, is_testing
	V2                    // current: epoch at, string user_id, ip, env
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

func (v Version) Valid() bool {
	return v == V1 || v == V2
}

func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1", "legacy":
		return V1, nil
	case "v2", "2", "":
		return V2, nil
	}
	return 0, fmt.Errorf("unknown version %q (expected v1 or v2)", s)
}

type System string

// System constants
const (
	SystemOSX     System = "OSX"
	SystemWindows System = "Windows"
	SystemIOS     System = "iOS"
	SystemAndroid System = "Android"
)

var Systems = []System{SystemOSX, SystemWindows, SystemIOS, SystemAndroid}

func (s System) Valid() bool {
	for _, known := range Systems {
		if s == known {
			return true
		}
	}
	return false
}

type Environment int32

// Environment constants
const (
	EnvProduction  Environment = 1
	EnvStaging     Environment = 2
	EnvTesting     Environment = 3
	EnvDevelopment Environment = 4
)

// IsoFormat is how V1 renders Payload.At.
const IsoFormat = "2006-01-02T15:04:05"

type Payload struct {
	At        time.Time
	Event     string
	Nr        uint32
	UserID    string
	IP        *string // V2 only
	IsTesting *bool   // V1 only
}

type Collection struct {
	Version        Version
	Env            *Environment // V2 only
	DeviceID       string
	ClientID       string
	Session        string
	SystemVersion  string
	ProductVersion string
	System         System
	Payloads       []*Payload
}

// Message is a Collection bound to the timestamp string it is signed with.
// Every serialization of the message reuses the same Time.
type Message struct {
	Collection *Collection
	Time       string
}

func (c *Collection) HasPayloads() bool {
	return c != nil && len(c.Payloads) > 0
}

func String(s string) *string { return &s }

func Bool(b bool) *bool { return &b }

func Env(e Environment) *Environment { return &e }
