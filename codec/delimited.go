package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"hamustro/models"
)

// MaxDelimitedSize bounds a single framed body read by DelimitedReader.
const MaxDelimitedSize = 4 << 20

// MarshalDelimited serializes c and prefixes it with its varint length, so
// bodies written back to back stay unambiguous. Plain Marshal output of two
// protobuf bodies concatenated would parse as one merged Collection.
func MarshalDelimited(c *models.Collection, f Format) ([]byte, error) {
	body, err := Marshal(c, f)
	if err != nil {
		return nil, err
	}
	return protowire.AppendBytes(nil, body), nil
}

// DelimitedReader reads length-prefixed bodies from a stream.
type DelimitedReader struct {
	r       *bufio.Reader
	format  Format
	version models.Version
}

func NewDelimitedReader(r io.Reader, f Format, v models.Version) *DelimitedReader {
	return &DelimitedReader{r: bufio.NewReader(r), format: f, version: v}
}

// Next returns the next body and its decoded Collection. io.EOF marks a
// clean end of stream.
func (d *DelimitedReader) Next() ([]byte, *models.Collection, error) {
	size, err := binary.ReadUvarint(d.r)
	if err != nil {
		return nil, nil, err
	}
	if size > MaxDelimitedSize {
		return nil, nil, fmt.Errorf("delimited body of %d bytes exceeds %d", size, MaxDelimitedSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, nil, fmt.Errorf("read delimited body: %w", io.ErrUnexpectedEOF)
	}
	c, err := Unmarshal(body, d.format, d.version)
	if err != nil {
		return nil, nil, err
	}
	return body, c, nil
}
