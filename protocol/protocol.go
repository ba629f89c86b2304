// Package protocol implements the SDR remote-control wire protocol.
//
// Every header travels in one frame: a fixed 8-byte prefix followed by the
// codec-encoded header. The receiver reads the prefix first to learn the body
// length, then reads exactly that many bytes. A frame never exceeds
// MaxFrameSize (4096 bytes by default).
//
// Frame format:
//
//	0      3  4         8
//	┌──────┬──┬─────────┬───────────────────────┐
//	│magic │v │ bodyLen │   header (JSON) ...   │
//	│ sdr  │01│ uint32  │     bodyLen bytes     │
//	└──────┴──┴─────────┴───────────────────────┘
//
// Payloads too large for a frame never go inside one. The header declares
// data_len, the receiver answers ACK, and the raw bytes follow unframed.
// A header that is itself too large is announced with a multipart header
// and transferred the same way.
package protocol

import (
	"encoding/binary"
	"io"
)

// Magic bytes "sdr" identify a frame of this protocol, rejecting stray
// connections (e.g. an rtl_tcp client hitting the wrong port).
const (
	MagicByte1 byte = 0x73 // 's'
	MagicByte2 byte = 0x64 // 'd'
	MagicByte3 byte = 0x72 // 'r'
	Version    byte = 0x01
	PrefixSize int  = 8 // 3 (magic) + 1 (version) + 4 (bodyLen)
)

// Defaults used when no option overrides them.
const (
	DefaultMaxFrameSize   = 4096
	DefaultMaxBulkSize    = 64 * 1024 * 1024
	DefaultWriteChunkSize = 64 * 1024
	minFrameSize          = 256
)

// WriteFrame writes one complete frame (prefix + body) to w.
func WriteFrame(w io.Writer, body []byte, maxFrameSize int) error {
	if PrefixSize+len(body) > maxFrameSize {
		return protocolErrorf("frame of %d bytes exceeds limit %d", PrefixSize+len(body), maxFrameSize)
	}
	buf := make([]byte, PrefixSize+len(body))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	copy(buf[PrefixSize:], body)

	// One write for the whole frame so a header is never split across calls
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one complete frame from r and returns its body.
// It validates the magic number, version and declared body length.
func ReadFrame(r io.Reader, maxFrameSize int) ([]byte, error) {
	prefix, err := ReadExact(r, PrefixSize)
	if err != nil {
		return nil, err
	}

	if prefix[0] != MagicByte1 || prefix[1] != MagicByte2 || prefix[2] != MagicByte3 {
		return nil, protocolErrorf("invalid magic number: %x", prefix[0:3])
	}
	if prefix[3] != Version {
		return nil, protocolErrorf("unsupported version: %d", prefix[3])
	}

	bodyLen := int(binary.BigEndian.Uint32(prefix[4:8]))
	if PrefixSize+bodyLen > maxFrameSize {
		return nil, protocolErrorf("declared frame of %d bytes exceeds limit %d", PrefixSize+bodyLen, maxFrameSize)
	}
	return ReadExact(r, bodyLen)
}

// ReadExact reads exactly n bytes, looping over partial reads.
// A length of 0 returns immediately. io.EOF is returned only if the stream
// ended before the first byte; a stream ending mid-way is io.ErrUnexpectedEOF.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, protocolErrorf("negative read length %d", n)
	}
	buf := make([]byte, n)
	received := 0
	remaining := n
	for remaining > 0 {
		k, err := r.Read(buf[received:])
		received += k
		remaining -= k
		if remaining < 0 {
			return nil, protocolErrorf("read overran declared length by %d bytes", -remaining)
		}
		if err != nil {
			if remaining == 0 {
				break
			}
			if err == io.EOF {
				if received == 0 {
					return nil, io.EOF
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return buf, nil
}

// WriteAll writes data in chunks of at most chunkSize bytes until every byte
// has been accepted by w.
func WriteAll(w io.Writer, data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultWriteChunkSize
	}
	sent := 0
	remaining := len(data)
	for remaining > 0 {
		end := sent + chunkSize
		if end > len(data) {
			end = len(data)
		}
		k, err := w.Write(data[sent:end])
		sent += k
		remaining -= k
		if remaining < 0 {
			return protocolErrorf("write overran payload by %d bytes", -remaining)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
