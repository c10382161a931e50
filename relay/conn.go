package relay

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/nostrc/gostr/errkind"
)

// errFrameTooLarge is returned by ReadMessage for frames exceeding the
// inbound cap; the frame is already discarded and the connection stays up.
var errFrameTooLarge = errkind.New(errkind.ResourceLimit, "inbound frame exceeds size cap")

// wsConn adapts a client-side gobwas connection: reads happen on the owner's
// loop, writes go through the out channel so a stalled peer cannot block the
// dispatcher.
type wsConn struct {
	conn           net.Conn
	reader         *wsutil.Reader
	controlHandler wsutil.FrameHandlerFunc
	out            chan []byte
	closeChannel   chan struct{}
	closed         bool
	closeMx        sync.Mutex
	wrErr          error
	wrErrMx        sync.Mutex
	writeTimeout   stdlibtime.Duration
	maxFrameLen    int64
	lastRxUnixNano atomic.Int64
	windowBytes    atomic.Int64
}

func dialConn(ctx context.Context, wsURL string, maxFrameLen int64, writeTimeout stdlibtime.Duration) (*wsConn, error) {
	conn, br, _, err := ws.DefaultDialer.Dial(ctx, wsURL)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Transport, "failed to dial relay")
	}
	var source io.Reader = conn
	if br != nil {
		source = br
	}
	c := &wsConn{
		conn:           conn,
		controlHandler: wsutil.ControlFrameHandler(conn, ws.StateClientSide),
		out:            make(chan []byte),
		closeChannel:   make(chan struct{}),
		writeTimeout:   writeTimeout,
		maxFrameLen:    maxFrameLen,
	}
	c.reader = &wsutil.Reader{
		Source:         source,
		State:          ws.StateClientSide,
		CheckUTF8:      false,
		OnIntermediate: c.controlHandler,
	}
	c.lastRxUnixNano.Store(stdlibtime.Now().UnixNano())

	return c, nil
}

// ReadMessage blocks until the next complete text frame. Control frames are
// answered inline; non-text data frames are discarded.
func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, errkind.Wrap(err, errkind.Transport, "failed to read frame header")
		}
		c.lastRxUnixNano.Store(stdlibtime.Now().UnixNano())
		c.windowBytes.Add(hdr.Length)
		if hdr.OpCode.IsControl() {
			if err = c.controlHandler(hdr, c.reader); err != nil {
				return nil, errkind.Wrap(err, errkind.Transport, "failed to handle control frame")
			}
			continue
		}
		if c.maxFrameLen > 0 && hdr.Length > c.maxFrameLen {
			if err = c.reader.Discard(); err != nil {
				return nil, errkind.Wrap(err, errkind.Transport, "failed to discard oversize frame")
			}

			return nil, errFrameTooLarge
		}
		if hdr.OpCode != ws.OpText {
			if err = c.reader.Discard(); err != nil {
				return nil, errkind.Wrap(err, errkind.Transport, "failed to discard non-text frame")
			}
			continue
		}
		payload, err := io.ReadAll(c.reader)
		if err != nil {
			return nil, errkind.Wrap(err, errkind.Transport, "failed to read frame payload")
		}

		return payload, nil
	}
}

// WriteMessage hands data to the write loop; it fails fast once the
// connection is closed, the context is done or a previous write already
// errored out.
func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	c.wrErrMx.Lock()
	wrErr := c.wrErr
	c.wrErrMx.Unlock()
	if wrErr != nil {
		return errkind.Wrap(wrErr, errkind.Transport, "connection write already failed")
	}
	if err := ctx.Err(); err != nil {
		return errkind.Wrap(err, errkind.Cancelled, "write abandoned")
	}
	select {
	case c.out <- data:
		return nil
	case <-ctx.Done():
		return errkind.Wrap(ctx.Err(), errkind.Cancelled, "write abandoned")
	case <-c.closeChannel:
		return errkind.New(errkind.Transport, "connection closed")
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.closeChannel:
			return
		case msg := <-c.out:
			if c.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(stdlibtime.Now().Add(c.writeTimeout)) //nolint:errcheck // .
			}
			if err := wsutil.WriteClientMessage(c.conn, ws.OpText, msg); err != nil {
				c.wrErrMx.Lock()
				c.wrErr = err
				c.wrErrMx.Unlock()
				log.Printf("ERROR:%v", errors.Wrap(err, "failed to write message to relay"))
			}
		}
	}
}

// TakeWindow returns the last-receive time and drains the byte counter of the
// current watchdog window.
func (c *wsConn) TakeWindow() (lastRx stdlibtime.Time, bytes int64) {
	return stdlibtime.Unix(0, c.lastRxUnixNano.Load()), c.windowBytes.Swap(0)
}

func (c *wsConn) Closed() bool {
	c.closeMx.Lock()
	closed := c.closed
	c.closeMx.Unlock()

	return closed
}

func (c *wsConn) Close() error {
	c.closeMx.Lock()
	if c.closed {
		c.closeMx.Unlock()

		return nil
	}
	c.closed = true
	close(c.closeChannel)
	c.closeMx.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(stdlibtime.Now().Add(c.writeTimeout)) //nolint:errcheck // .
	}
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	if err := wsutil.WriteClientMessage(c.conn, ws.OpClose, body); err != nil {
		log.Printf("WARN: failed to write close frame: %v", err)
	}
	if err := c.conn.Close(); err != nil {
		return errkind.Wrap(err, errkind.Transport, "failed to close connection")
	}

	return nil
}
