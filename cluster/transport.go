// Package cluster carries protocol envelopes between nodes over
// websocket connections. Each node listens on one endpoint and dials
// its peers lazily; envelopes are gob-framed binary messages.
//
// Delivery is best effort. Reliability, ordering across reconnects and
// reply timeouts are the concern of the replication protocol above,
// which treats every send as fire-and-forget.
package cluster

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/cibsync/cib/proto"
	"github.com/thinkermao/cibsync/utils/pd"
)

// Handler consumes one decoded inbound envelope.
type Handler func(req *cibpd.Request)

// Transport implements cib.Transporter over a static peer map. Peer
// maps usually include the local node itself: cluster broadcasts are
// defined to loop back, e.g. upgrade orders apply on the sender too.
type Transport struct {
	mutex sync.Mutex

	name  string
	peers map[string]string // peer name -> ws url
	conns map[string]*websocket.Conn

	upgrader websocket.Upgrader
}

// MakeTransport builds a transport for the named local node.
func MakeTransport(name string, peers map[string]string) *Transport {
	return &Transport{
		name:  name,
		peers: peers,
		conns: make(map[string]*websocket.Conn),
	}
}

// Send implements cib.Transporter.
func (t *Transport) Send(to string, msg *cibpd.Request) error {
	if msg.Src == "" {
		msg.Src = t.name
	}

	url, ok := t.peers[to]
	if !ok {
		return fmt.Errorf("%w: unknown peer %q", cibpd.ErrNotConnected, to)
	}

	data, err := pd.Marshal(msg)
	if err != nil {
		return err
	}

	conn, err := t.connection(to, url)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", cibpd.ErrNotConnected, to, err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.drop(to)
		return fmt.Errorf("%w: %s: %v", cibpd.ErrNotConnected, to, err)
	}
	return nil
}

// Broadcast implements cib.Transporter. It fans out to every peer and
// fails if any delivery fails; partial delivery is still reported to
// the caller as not connected.
func (t *Transport) Broadcast(msg *cibpd.Request) error {
	var firstErr error
	for name := range t.peers {
		if err := t.Send(name, msg); err != nil {
			log.Warnf("%s broadcast of %q to %s failed: %v",
				t.name, msg.Op, name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close drops all cached connections.
func (t *Transport) Close() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for name, conn := range t.conns {
		conn.Close()
		delete(t.conns, name)
	}
}

func (t *Transport) connection(name, url string) (*websocket.Conn, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if conn, ok := t.conns[name]; ok {
		return conn, nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	t.conns[name] = conn
	log.Debugf("%s connected to peer %s at %s", t.name, name, url)
	return conn, nil
}

func (t *Transport) drop(name string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if conn, ok := t.conns[name]; ok {
		conn.Close()
		delete(t.conns, name)
	}
}

// Listen serves the node's endpoint, feeding every decoded envelope to
// handler. It blocks until the server fails.
func (t *Transport) Listen(addr string, handler Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/cib", func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("%s upgrade of connection from %s failed: %v",
				t.name, r.RemoteAddr, err)
			return
		}
		go t.serve(conn, handler)
	})

	log.Infof("%s listening on %s", t.name, addr)
	return http.ListenAndServe(addr, mux)
}

func (t *Transport) serve(conn *websocket.Conn, handler Handler) {
	defer conn.Close()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			log.Debugf("%s peer connection closed: %v", t.name, err)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		req := &cibpd.Request{}
		if err := pd.Unmarshal(req, data); err != nil {
			log.Warnf("%s dropping undecodable envelope: %v", t.name, err)
			continue
		}
		handler(req)
	}
}
