package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamustro/builder"
	"hamustro/models"
)

func referenceCollection(v models.Version) *models.Collection {
	p := &models.Payload{
		At:     time.Unix(1454681104, 0).UTC(),
		Event:  "Client.CreateUser",
		Nr:     1,
		UserID: "97421193",
	}
	c := &models.Collection{
		Version:        v,
		DeviceID:       "a73b1c37-2c24-4786-af7a-16de88fbe23a",
		ClientID:       "bce44f67b2661fd445d469b525b04f68",
		Session:        "244f056dee6d475ec673ea0d20b69bab",
		SystemVersion:  "10.10",
		ProductVersion: "1.1.2",
		System:         models.SystemOSX,
		Payloads:       []*models.Payload{p},
	}
	if v == models.V1 {
		p.IsTesting = models.Bool(false)
	} else {
		p.IP = models.String("214.160.227.22")
		c.Env = models.Env(models.EnvDevelopment)
	}
	return c
}

func TestJSONCanonicalOrder(t *testing.T) {
	tests := []struct {
		version models.Version
		expect  string
	}{
		{
			version: models.V1,
			expect: `{"device_id":"a73b1c37-2c24-4786-af7a-16de88fbe23a","client_id":"bce44f67b2661fd445d469b525b04f68",` +
				`"session":"244f056dee6d475ec673ea0d20b69bab","system_version":"10.10","product_version":"1.1.2","system":"OSX",` +
				`"payloads":[{"at":"2016-02-05T14:05:04","event":"Client.CreateUser","nr":1,"user_id":97421193,"is_testing":false}]}`,
		},
		{
			version: models.V2,
			expect: `{"device_id":"a73b1c37-2c24-4786-af7a-16de88fbe23a","client_id":"bce44f67b2661fd445d469b525b04f68",` +
				`"session":"244f056dee6d475ec673ea0d20b69bab","system_version":"10.10","product_version":"1.1.2","env":4,"system":"OSX",` +
				`"payloads":[{"at":1454681104,"event":"Client.CreateUser","nr":1,"user_id":"97421193","ip":"214.160.227.22"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			out, err := Marshal(referenceCollection(tt.version), FormatJSON)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, string(out))
		})
	}
}

func TestProtobufLayout(t *testing.T) {
	out, err := Marshal(referenceCollection(models.V2), FormatProtobuf)
	require.NoError(t, err)

	// field 1 (device_id), wire type 2, 36 bytes of uuid text
	require.True(t, len(out) > 2)
	assert.Equal(t, []byte{0x0a, 0x24}, out[:2])
	// field 6 (env) varint 4
	assert.True(t, bytes.Contains(out, []byte{0x30, 0x04}))
	// field 8 (payloads), wire type 2
	assert.True(t, bytes.Contains(out, []byte{0x42}))
}

func TestMarshalDeterministic(t *testing.T) {
	for _, v := range []models.Version{models.V1, models.V2} {
		b := builder.New(v, builder.WithSeed(42))
		msg := b.Build(true)
		for _, f := range Formats {
			t.Run(v.String()+"/"+string(f), func(t *testing.T) {
				first, err := Marshal(msg.Collection, f)
				require.NoError(t, err)
				for i := 0; i < 5; i++ {
					again, err := Marshal(msg.Collection, f)
					require.NoError(t, err)
					assert.Equal(t, first, again)
				}
			})
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, v := range []models.Version{models.V1, models.V2} {
		t.Run(v.String(), func(t *testing.T) {
			b := builder.New(v, builder.WithSeed(7))
			for i := 0; i < 50; i++ {
				c := b.Build(true).Collection

				pb, err := Marshal(c, FormatProtobuf)
				require.NoError(t, err)
				js, err := Marshal(c, FormatJSON)
				require.NoError(t, err)

				fromPB, err := Unmarshal(pb, FormatProtobuf, v)
				require.NoError(t, err)
				fromJSON, err := Unmarshal(js, FormatJSON, v)
				require.NoError(t, err)

				require.Equal(t, c, fromPB)
				require.Equal(t, c, fromJSON)
				if diff := deep.Equal(fromPB, fromJSON); diff != nil {
					t.Fatalf("binary and textual decodes differ: %v", diff)
				}
			}
		})
	}
}

func TestMarshalSchemaViolation(t *testing.T) {
	c := referenceCollection(models.V2)
	c.Session = ""
	for _, f := range Formats {
		out, err := Marshal(c, f)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, models.ErrSchemaViolation)
		assert.Contains(t, err.Error(), "session")
	}
}

func TestUnmarshalRejectsOtherVersion(t *testing.T) {
	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			v2, err := Marshal(referenceCollection(models.V2), f)
			require.NoError(t, err)
			_, err = Unmarshal(v2, f, models.V1)
			assert.Error(t, err, "v2 body must not parse as v1")

			v1, err := Marshal(referenceCollection(models.V1), f)
			require.NoError(t, err)
			_, err = Unmarshal(v1, f, models.V2)
			assert.Error(t, err, "v1 body must not parse as v2")
		})
	}
}

func TestUnmarshalMissingField(t *testing.T) {
	body := []byte(`{"device_id":"d","client_id":"c","system_version":"1.1","product_version":"1.1",` +
		`"payloads":[{"at":1454681104,"event":"Event.12345","nr":1}]}`)
	_, err := Unmarshal(body, FormatJSON, models.V2)
	assert.ErrorIs(t, err, models.ErrSchemaViolation)
}

func TestUnmarshalGarbage(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		body   []byte
	}{
		{name: "truncated protobuf", format: FormatProtobuf, body: []byte{0x0a, 0x24, 'a'}},
		{name: "unknown protobuf field", format: FormatProtobuf, body: []byte{0x78, 0x01}},
		{name: "unknown json key", format: FormatJSON, body: []byte(`{"device":"x"}`)},
		{name: "trailing json", format: FormatJSON, body: []byte(`{"device_id":"x"} {}`)},
		{name: "not json", format: FormatJSON, body: []byte(`<xml/>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.body, tt.format, models.V2)
			assert.Error(t, err)
		})
	}
}

func TestDelimited(t *testing.T) {
	b := builder.New(models.V2, builder.WithSeed(3))
	first := b.Build(true).Collection
	second := b.Build(true).Collection

	var stream []byte
	for _, c := range []*models.Collection{first, second} {
		framed, err := MarshalDelimited(c, FormatProtobuf)
		require.NoError(t, err)
		stream = append(stream, framed...)
	}

	r := NewDelimitedReader(bytes.NewReader(stream), FormatProtobuf, models.V2)
	_, got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, first, got)
	_, got, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, second, got)
	_, _, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestDelimitedTruncated(t *testing.T) {
	framed, err := MarshalDelimited(referenceCollection(models.V1), FormatProtobuf)
	require.NoError(t, err)

	r := NewDelimitedReader(bytes.NewReader(framed[:len(framed)-3]), FormatProtobuf, models.V1)
	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPlainConcatenationMerges(t *testing.T) {
	c := referenceCollection(models.V2)
	pb, err := Marshal(c, FormatProtobuf)
	require.NoError(t, err)

	merged, err := Unmarshal(append(append([]byte{}, pb...), pb...), FormatProtobuf, models.V2)
	require.NoError(t, err)
	assert.Len(t, merged.Payloads, 2, "undelimited bodies collapse into one collection")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in          string
		expect      Format
		expectExt   string
		expectError bool
	}{
		{in: "protobuf", expect: FormatProtobuf, expectExt: "pb"},
		{in: "pb", expect: FormatProtobuf, expectExt: "pb"},
		{in: "JSON", expect: FormatJSON, expectExt: "json"},
		{in: "xml", expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseFormat(tt.in)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, f)
			assert.Equal(t, tt.expectExt, f.Ext())
		})
	}

	assert.Equal(t, "application/protobuf; charset=utf-8", FormatProtobuf.ContentType())
	assert.Equal(t, "application/json; charset=utf-8", FormatJSON.ContentType())

	formats, err := ParseFormats("json, protobuf,json")
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatJSON, FormatProtobuf}, formats)
	_, err = ParseFormats(" , ")
	assert.Error(t, err)
}

func TestSupports(t *testing.T) {
	assert.NoError(t, Supports(models.V2, FormatJSON))
	assert.NoError(t, Supports(models.V2, FormatProtobuf))
	assert.NoError(t, Supports(models.V1, FormatProtobuf))
	assert.ErrorIs(t, Supports(models.V1, FormatJSON), ErrLegacyFormat)
}
