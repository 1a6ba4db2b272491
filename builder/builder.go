// Package builder synthesizes randomized collector messages.
//
// All randomness comes from the Source handed to New, so a seeded Builder
// produces the same sequence of messages on every run.
package builder

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"hamustro/models"
	"hamustro/signature"
)

const (
	MaxPayloads = 25

	clientIDMax  = 1000000
	userIDMax    = 99000000
	eventNrMax   = 1000
	eventIDMin   = 10000
	eventIDMax   = 99999
	majorMax     = 5
	minorMax     = 50
	v2ClientIDLn = 20
)

// Source is a random source that can also fill byte slices. *rand.ChaCha8
// from math/rand/v2 satisfies it.
type Source interface {
	mrand.Source
	io.Reader
}

type Builder struct {
	version   models.Version
	src       Source
	rnd       *mrand.Rand
	now       func() time.Time
	timestamp func(time.Time) string
}

type Option func(*Builder)

func WithSource(src Source) Option {
	return func(b *Builder) {
		b.src = src
	}
}

// WithSeed makes the Builder deterministic.
func WithSeed(seed uint64) Option {
	return func(b *Builder) {
		var key [32]byte
		binary.LittleEndian.PutUint64(key[:], seed)
		b.src = mrand.NewChaCha8(key)
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithTimestamp overrides how Message.Time is derived from the clock.
func WithTimestamp(stamp func(time.Time) string) Option {
	return func(b *Builder) {
		b.timestamp = stamp
	}
}

// FixedTimestamp stamps every message with the same value.
func FixedTimestamp(ts string) func(time.Time) string {
	return func(time.Time) string { return ts }
}

// EpochTimestamp renders the clock as integer epoch seconds.
func EpochTimestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func New(version models.Version, opts ...Option) *Builder {
	b := &Builder{
		version:   version,
		now:       time.Now,
		timestamp: EpochTimestamp,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.src == nil {
		var key [32]byte
		if _, err := rand.Read(key[:]); err != nil {
			panic(fmt.Sprintf("builder: seed from crypto/rand: %v", err))
		}
		b.src = mrand.NewChaCha8(key)
	}
	b.rnd = mrand.New(b.src)
	return b
}

func (b *Builder) Version() models.Version {
	return b.version
}

// between draws uniformly from [lo, hi].
func (b *Builder) between(lo, hi int) int {
	return lo + b.rnd.IntN(hi-lo+1)
}

// PayloadCount returns 1, or a uniform draw from [1, MaxPayloads].
func (b *Builder) PayloadCount(randomPayloadCount bool) int {
	if !randomPayloadCount {
		return 1
	}
	return b.between(1, MaxPayloads)
}

// Build creates one message. The clock is read once, so every payload and
// the message timestamp agree.
func (b *Builder) Build(randomPayloadCount bool) *models.Message {
	now := b.now()
	at := time.Unix(now.Unix(), 0).UTC()

	c := b.collection()
	count := b.PayloadCount(randomPayloadCount)
	c.Payloads = make([]*models.Payload, 0, count)
	for i := 0; i < count; i++ {
		c.Payloads = append(c.Payloads, b.payload(at))
	}

	return &models.Message{
		Collection: c,
		Time:       b.timestamp(now),
	}
}

func (b *Builder) collection() *models.Collection {
	c := &models.Collection{
		Version:        b.version,
		DeviceID:       b.deviceID(),
		ClientID:       b.clientID(),
		SystemVersion:  b.versionString(),
		ProductVersion: b.versionString(),
		System:         models.Systems[b.rnd.IntN(len(models.Systems))],
	}
	if b.version == models.V2 {
		c.Env = models.Env(models.EnvDevelopment)
	}
	c.Session = signature.Session(c)
	return c
}

func (b *Builder) deviceID() string {
	id, err := uuid.NewRandomFromReader(b.src)
	if err != nil {
		// The sources used here never fail to read.
		panic(fmt.Sprintf("builder: uuid: %v", err))
	}
	if b.version == models.V1 {
		return id.String()
	}
	sum := sha256.Sum256([]byte(id.String()))
	return hex.EncodeToString(sum[:])
}

func (b *Builder) clientID() string {
	sum := md5.Sum([]byte(strconv.Itoa(b.between(1, clientIDMax))))
	id := hex.EncodeToString(sum[:])
	if b.version == models.V2 {
		return id[:v2ClientIDLn]
	}
	return id
}

func (b *Builder) versionString() string {
	return fmt.Sprintf("%d.%d", b.between(1, majorMax), b.between(1, minorMax))
}

func (b *Builder) payload(at time.Time) *models.Payload {
	p := &models.Payload{
		At:     at,
		Event:  fmt.Sprintf("Event.%05d", b.between(eventIDMin, eventIDMax)),
		Nr:     uint32(b.between(1, eventNrMax)),
		UserID: strconv.Itoa(b.between(1, userIDMax)),
	}
	switch b.version {
	case models.V1:
		p.IsTesting = models.Bool(true)
	case models.V2:
		p.IP = models.String(fmt.Sprintf("%d.%d.%d.%d",
			b.between(1, 255), b.between(1, 255), b.between(1, 255), b.between(1, 255)))
	}
	return p
}
