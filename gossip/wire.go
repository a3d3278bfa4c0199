package gossip

import (
	"bytes"
	"io"

	"github.com/go-errors/errors"
	"github.com/klauspost/compress/flate"
	"github.com/vmihailenco/msgpack/v5"
)

// compressThreshold is the payload size, in bytes, above which encode
// deflates the MessagePack body. Below it, deflate's frame overhead would
// cost more than it saves.
const compressThreshold = 1024

const (
	flagCompressed byte = 1 << 0
	// flagEncrypted is reserved for a future transport-level encryption
	// layer; this module never sets it.
	flagEncrypted byte = 1 << 1
)

var errShortFrame = errors.New("gossip: frame shorter than the 1-byte flags header")

// encodeMessage serializes msg as MessagePack, deflating the body when it
// exceeds compressThreshold, and prefixes the 1-byte flags header (bit 0
// compressed, bit 1 reserved for encryption).
func encodeMessage(msg Message) ([]byte, error) {
	body, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, err
	}

	var flags byte
	if len(body) > compressThreshold {
		compressed, err := deflate(body)
		if err != nil {
			return nil, err
		}
		body = compressed
		flags |= flagCompressed
	}

	framed := make([]byte, 0, len(body)+1)
	framed = append(framed, flags)
	framed = append(framed, body...)
	return framed, nil
}

// decodeMessage parses a framed gossip message produced by encodeMessage.
func decodeMessage(raw []byte) (Message, error) {
	if len(raw) < 1 {
		return Message{}, errShortFrame
	}
	flags := raw[0]
	body := raw[1:]

	if flags&flagCompressed != 0 {
		inflated, err := inflate(body)
		if err != nil {
			return Message{}, err
		}
		body = inflated
	}

	var msg Message
	if err := msgpack.Unmarshal(body, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	return io.ReadAll(r)
}
