package protocol

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"sdr-rpc/message"
)

// Conn sends and receives whole messages over one stream socket, taking care
// of the ACK-gated bulk transfer and multipart headers.
//
// A Conn is half-duplex: one goroutine sends a request and then receives its
// response. It is not safe for concurrent Send or concurrent Receive.
type Conn struct {
	raw  net.Conn
	opts options
}

// NewConn wraps an established connection.
func NewConn(raw net.Conn, opt ...Option) *Conn {
	return &Conn{raw: raw, opts: buildOptions(opt)}
}

// Raw returns the underlying connection.
func (c *Conn) Raw() net.Conn { return c.raw }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Read implements io.Reader with a fresh read deadline on every call, so a
// peer that goes quiet fails the exchange instead of blocking forever.
func (c *Conn) Read(p []byte) (int, error) {
	_ = c.raw.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
	n, err := c.raw.Read(p)
	if err == io.EOF {
		return n, err
	}
	return n, asTransport("read", err)
}

// Write implements io.Writer with a fresh write deadline on every call.
func (c *Conn) Write(p []byte) (int, error) {
	_ = c.raw.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	n, err := c.raw.Write(p)
	return n, asTransport("write", err)
}

// Send transmits msg and, if msg.Bulk is set, its bulk payload.
//
// Flow:
//  1. Declare data_len from len(msg.Bulk)
//  2. Send the header frame, or a multipart announcement + ACK + header bytes if it does not fit
//  3. If bulk is declared: wait for ACK, then write the payload chunk by chunk
func (c *Conn) Send(msg *message.Message) error {
	if msg.Bulk != nil {
		n := len(msg.Bulk)
		msg.DataLen = &n
	} else if msg.DataLen != nil && *msg.DataLen != 0 {
		return protocolErrorf("declared data_len %d without payload", *msg.DataLen)
	}

	header, err := c.opts.codec.Encode(msg)
	if err != nil {
		return &ProtocolError{Reason: "encode header", Err: err}
	}

	if PrefixSize+len(header) > c.opts.maxFrameSize {
		if err := c.sendMultipart(msg, header); err != nil {
			return err
		}
	} else if err := WriteFrame(c, header, c.opts.maxFrameSize); err != nil {
		return asTransport("write", err)
	}

	if msg.DataLen == nil {
		return nil
	}
	if err := c.awaitACK(); err != nil {
		return err
	}
	return asTransport("write", WriteAll(c, msg.Bulk, c.opts.writeChunkSize))
}

// sendMultipart announces the size of an oversized header, waits for the
// peer to accept it and streams the encoded header as a bulk payload.
func (c *Conn) sendMultipart(msg *message.Message, header []byte) error {
	size := len(header)
	announce := &message.Message{
		Kind:      msg.Kind,
		Name:      msg.Name,
		Timestamp: msg.Timestamp,
		Multipart: true,
		DataLen:   &size,
	}
	body, err := c.opts.codec.Encode(announce)
	if err != nil {
		return &ProtocolError{Reason: "encode multipart header", Err: err}
	}
	if err := WriteFrame(c, body, c.opts.maxFrameSize); err != nil {
		return asTransport("write", err)
	}
	if err := c.awaitACK(); err != nil {
		return err
	}
	return asTransport("write", WriteAll(c, header, c.opts.writeChunkSize))
}

func (c *Conn) awaitACK() error {
	reply, err := c.receiveHeader()
	if err != nil {
		return err
	}
	switch reply.Kind {
	case message.KindACK:
		if reply.Succeeded() {
			return nil
		}
		return &ProtocolError{Reason: "transfer refused by peer: " + reply.Error}
	case message.KindNAK:
		return &ProtocolError{Reason: "transfer refused by peer: " + reply.Error}
	}
	return protocolErrorf("expected ack, got %s", reply.Kind)
}

// Receive reads one complete message, acknowledging and collecting any
// multipart header or bulk payload the peer declares.
func (c *Conn) Receive() (*message.Message, error) {
	msg, err := c.receiveHeader()
	if err != nil {
		return nil, err
	}

	if msg.Multipart {
		raw, err := c.acceptBulk(*msg.DataLen)
		if err != nil {
			return nil, err
		}
		msg, err = c.opts.codec.Decode(raw)
		if err != nil {
			return nil, &ProtocolError{Reason: "decode multipart header", Err: err}
		}
		if msg.Multipart {
			return nil, protocolErrorf("nested multipart header")
		}
	}

	if msg.DataLen != nil {
		bulk, err := c.acceptBulk(*msg.DataLen)
		if err != nil {
			return nil, err
		}
		if len(bulk) != *msg.DataLen {
			return nil, protocolErrorf("received %d bytes, declared %d", len(bulk), *msg.DataLen)
		}
		msg.Bulk = bulk
	}
	return msg, nil
}

// acceptBulk answers a length declaration with ACK (or NAK if too large) and
// reads exactly that many bytes.
func (c *Conn) acceptBulk(n int) ([]byte, error) {
	if n > c.opts.maxBulkSize {
		nak := message.NewNAK(message.CodeProtocolError, "declared length exceeds limit")
		sendErr := c.sendHeader(nak)
		return nil, &ProtocolError{
			Reason:  fmt.Sprintf("declared length %d exceeds limit %d", n, c.opts.maxBulkSize),
			NAKSent: sendErr == nil,
		}
	}
	if err := c.sendHeader(message.NewACK()); err != nil {
		return nil, err
	}
	bulk, err := ReadExact(c, n)
	if err != nil {
		return nil, shortRead(err)
	}
	return bulk, nil
}

func (c *Conn) sendHeader(msg *message.Message) error {
	header, err := c.opts.codec.Encode(msg)
	if err != nil {
		return &ProtocolError{Reason: "encode header", Err: err}
	}
	return asTransport("write", WriteFrame(c, header, c.opts.maxFrameSize))
}

func (c *Conn) receiveHeader() (*message.Message, error) {
	body, err := ReadFrame(c, c.opts.maxFrameSize)
	if err != nil {
		return nil, asTransport("read", err)
	}
	msg, err := c.opts.codec.Decode(body)
	if err != nil {
		return nil, &ProtocolError{Reason: "decode header", Err: err}
	}
	return msg, nil
}

// shortRead turns an EOF during a declared transfer into a transport failure.
func shortRead(err error) error {
	if IsTransport(err) || IsProtocol(err) {
		return err
	}
	return &TransportError{Op: "read", Err: errors.Wrap(err, "short read during bulk transfer")}
}
