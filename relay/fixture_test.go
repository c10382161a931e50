package relay

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/nostrc/gostr/model"
)

// testRelay is an in-process relay speaking just enough of the protocol for
// the engine tests: every accepted connection runs the script against each
// parsed inbound envelope.
type testRelay struct {
	t         *testing.T
	srv       *httptest.Server
	script    func(c *serverConn, envelope model.Envelope)
	onConnect func(c *serverConn)

	mx    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

type serverConn struct {
	t    *testing.T
	conn net.Conn
	wrMx sync.Mutex
}

func newTestRelay(t *testing.T, script func(c *serverConn, envelope model.Envelope)) *testRelay {
	t.Helper()
	tr := &testRelay{t: t, script: script}
	tr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Logf("upgrade failed: %v", err)

			return
		}
		tr.mx.Lock()
		tr.conns = append(tr.conns, conn)
		tr.mx.Unlock()
		tr.wg.Add(1)
		go tr.serve(conn)
	}))
	t.Cleanup(tr.Shutdown)

	return tr
}

func (tr *testRelay) serve(conn net.Conn) {
	defer tr.wg.Done()
	defer conn.Close()
	sc := &serverConn{t: tr.t, conn: conn}
	if tr.onConnect != nil {
		tr.onConnect(sc)
	}
	for {
		msg, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		envelope, err := model.ParseMessage(msg)
		if err != nil {
			tr.t.Logf("fixture could not parse %q: %v", msg, err)

			continue
		}
		tr.script(sc, envelope)
	}
}

// URL is the http:// address of the fixture; connection normalization turns
// it into ws://.
func (tr *testRelay) URL() string {
	return tr.srv.URL
}

func (tr *testRelay) ConnCount() int {
	tr.mx.Lock()
	defer tr.mx.Unlock()

	return len(tr.conns)
}

func (tr *testRelay) Shutdown() {
	tr.mx.Lock()
	for _, conn := range tr.conns {
		_ = conn.Close()
	}
	tr.conns = nil
	tr.mx.Unlock()
	tr.wg.Wait()
	tr.srv.Close()
}

// send writes one frame, reporting false once the peer is gone so bulk
// producers can stop early.
func (c *serverConn) send(envelope model.Envelope) bool {
	data, err := envelope.MarshalJSON()
	if err != nil {
		c.t.Errorf("fixture marshal: %v", err)

		return false
	}

	return c.sendRaw(data)
}

func (c *serverConn) sendRaw(data []byte) bool {
	c.wrMx.Lock()
	defer c.wrMx.Unlock()

	return wsutil.WriteServerMessage(c.conn, ws.OpText, data) == nil
}

func (c *serverConn) close() {
	_ = c.conn.Close()
}
