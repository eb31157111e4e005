// Package dat reads and writes the game containers. A Session owns one
// stream and one entry table; the Format tag picks the table layout and the
// primitives applied to the table and to every payload.
package dat

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/codec"
	"github.com/blurfx/thdat/internal/crypto"
)

// Format identifies one container layout.
type Format uint8

// Supported formats.
const (
	// THA1 keeps a rolling-XOR header, an LZMA table at the end of the file
	// and LZMA payloads obfuscated by name hash.
	THA1 Format = iota + 1
	// THRL keeps 8.3 names and run-length payloads with a congruential
	// keystream over a footer table.
	THRL
	// T105 keeps a polynomial/MT keystream table up front and payloads
	// XORed with a byte derived from their offset.
	T105
	// TFPK0 keeps a public-key block table and flat key XOR payloads.
	TFPK0
	// TFPK1 is TFPK0 with a zlib name list and feedback XOR payloads.
	TFPK1
)

// formatInfo is the immutable per-format configuration.
type formatInfo struct {
	name       string
	nameLimit  int
	shortNames bool
	// tableMethod compresses the table, or the name list for TFPK1.
	tableMethod codec.Method
}

var formats = [...]formatInfo{
	THA1:  {name: "tha1", nameLimit: 255, tableMethod: codec.MethodLZMA},
	THRL:  {name: "thrl", nameLimit: 12, shortNames: true, tableMethod: codec.MethodZstd},
	T105:  {name: "t105", nameLimit: 255},
	TFPK0: {name: "tfpk0", nameLimit: 255},
	TFPK1: {name: "tfpk1", nameLimit: 255, tableMethod: codec.MethodZlib},
}

func (f Format) valid() bool {
	return f >= THA1 && f <= TFPK1
}

func (f Format) info() formatInfo {
	return formats[f]
}

func (f Format) String() string {
	if !f.valid() {
		return fmt.Sprintf("format(%d)", uint8(f))
	}
	return f.info().name
}

// Formats lists every supported format.
func Formats() []Format {
	return []Format{THA1, THRL, T105, TFPK0, TFPK1}
}

// ParseFormat looks a format up by its String name.
func ParseFormat(name string) (Format, error) {
	for _, f := range Formats() {
		if strings.EqualFold(name, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown format %q", archive.ErrInvalidArgument, name)
}

// tableCodec returns the codec applied to the format's table.
func (f Format) tableCodec() (codec.Codec, error) {
	return codec.ByMethod(f.info().tableMethod)
}

// validateName checks a name against the format's table constraints.
func (f Format) validateName(name string) error {
	info := f.info()
	if info.shortNames {
		return archive.ValidateShortName(name)
	}
	if _, ok := archive.ParsePlaceholder(name); ok && (f == TFPK0 || f == TFPK1) {
		return nil
	}
	raw, err := archive.EncodeName(name)
	if err != nil {
		return err
	}
	return archive.ValidatePath(string(raw), info.nameLimit)
}

// prepare sizes the header region for a new archive and returns where the
// first payload byte goes.
func (f Format) prepare(s *Session) (int64, error) {
	switch f {
	case THA1:
		return tha1Prepare(s)
	case THRL:
		return thrlPrepare(s)
	case T105:
		return t105Prepare(s)
	case TFPK0, TFPK1:
		return tfpkPrepare(s)
	}
	return 0, fmt.Errorf("%w: %s", archive.ErrInvalidArgument, f)
}

// readTable parses the header and table of an existing archive.
func (f Format) readTable(s *Session) error {
	switch f {
	case THA1:
		return tha1ReadTable(s)
	case THRL:
		return thrlReadTable(s)
	case T105:
		return t105ReadTable(s)
	case TFPK0, TFPK1:
		return tfpkReadTable(s)
	}
	return fmt.Errorf("%w: %s", archive.ErrInvalidArgument, f)
}

// encode produces the stored form of data for e packed at off.
func (f Format) encode(e archive.Entry, data []byte, off int64, out *bytes.Buffer) error {
	switch f {
	case THA1:
		return tha1Encode(e, data, out)
	case THRL:
		return thrlEncode(e, data, out)
	case T105:
		return t105Encode(data, off, out)
	case TFPK0, TFPK1:
		return tfpkEncode(f, e, data, out)
	}
	return fmt.Errorf("%w: %s", archive.ErrInvalidArgument, f)
}

// payloadDecryptor returns the stream cipher applied while the stored bytes
// of e are read. Block ciphers that need the whole entry run in decode.
func (f Format) payloadDecryptor(e archive.Entry) crypto.Decryptor {
	switch f {
	case T105:
		return crypto.ByteXOR(t105PayloadKey(e.Offset))
	case TFPK0:
		return crypto.NewKeyDecryptor(e.Key)
	case TFPK1:
		return crypto.NewFeedbackDecryptor(e.Key)
	}
	return crypto.NopDecryptor{}
}

// decode turns the stored bytes of e, read from r after payloadDecryptor,
// back into plaintext.
func (f Format) decode(e archive.Entry, r io.Reader) ([]byte, error) {
	switch f {
	case THA1:
		return tha1Decode(e, r)
	case THRL:
		return thrlDecode(e, r)
	case T105, TFPK0, TFPK1:
		return readPayload(e, r)
	}
	return nil, fmt.Errorf("%w: %s", archive.ErrInvalidArgument, f)
}

// readPayload reads an entry stored at its plaintext size.
func readPayload(e archive.Entry, r io.Reader) ([]byte, error) {
	out := make([]byte, e.Size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
	}
	return out, nil
}

// writeTable serializes the table and header once every entry is packed.
func (f Format) writeTable(s *Session) error {
	switch f {
	case THA1:
		return tha1WriteTable(s)
	case THRL:
		return thrlWriteTable(s)
	case T105:
		return t105WriteTable(s)
	case TFPK0, TFPK1:
		return tfpkWriteTable(s)
	}
	return fmt.Errorf("%w: %s", archive.ErrInvalidArgument, f)
}
