package message

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
)

// Record wire format: a fixed header followed by a msgpack body. Bodies
// over compressThreshold bytes are lz4 block-compressed, with the
// uncompressed length carried after the header so decompression can size
// its buffer exactly.
const (
	recordMagic   = "GDRB"
	recordVersion = 1

	flagCompressed = 1 << 0

	headerSize        = 6 // magic + version + flags
	compressThreshold = 512
)

type packedElement struct {
	Name   string   `msgpack:"n"`
	Values [][]byte `msgpack:"v"`
}

type packedRecord struct {
	DN       string          `msgpack:"dn"`
	Elements []packedElement `msgpack:"el"`
}

// Pack serialises a message into the record wire format.
func Pack(m *Message) ([]byte, error) {
	rec := packedRecord{DN: m.DN.Linearized()}
	rec.Elements = make([]packedElement, len(m.Elements))
	for i, el := range m.Elements {
		rec.Elements[i] = packedElement{Name: el.Name, Values: el.Values}
	}

	body, err := msgpack.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, recordMagic)
	out[4] = recordVersion

	if len(body) > compressThreshold {
		compressed := make([]byte, lz4.CompressBlockBound(len(body)))
		var hashTable [1 << 16]int
		n, err := lz4.CompressBlock(body, compressed, hashTable[:])
		if err != nil {
			return nil, fmt.Errorf("failed to compress record: %w", err)
		}
		if n > 0 && n < len(body) {
			out[5] = flagCompressed
			out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
			return append(out, compressed[:n]...), nil
		}
		// Incompressible; fall through and store raw.
	}

	return append(out, body...), nil
}

// Unpack deserialises a record produced by Pack.
func Unpack(data []byte) (*Message, error) {
	if len(data) < headerSize || string(data[:4]) != recordMagic {
		return nil, fmt.Errorf("invalid record: bad magic")
	}
	if data[4] != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", data[4])
	}
	flags := data[5]
	body := data[headerSize:]

	if flags&flagCompressed != 0 {
		if len(body) < 4 {
			return nil, fmt.Errorf("invalid record: truncated length prefix")
		}
		rawLen := binary.LittleEndian.Uint32(body[:4])
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(body[4:], raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress record: %w", err)
		}
		body = raw[:n]
	}

	var rec packedRecord
	if err := msgpack.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	d, err := dn.Parse(rec.DN)
	if err != nil {
		return nil, fmt.Errorf("record carries invalid DN %q: %w", rec.DN, err)
	}
	m := New(d)
	m.Elements = make([]Element, len(rec.Elements))
	for i, el := range rec.Elements {
		m.Elements[i] = Element{Name: el.Name, Values: el.Values}
	}
	return m, nil
}
