// Package netplay broadcasts a per-tick determinism digest to attached
// websocket peers. It is the authority side only: a peer that computes a
// different digest for the same tick has proof of a desync rather than
// a guess.
package netplay

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/gorilla/websocket"

	"github.com/coretiming/scheduler/pkg/log"
)

// Frame is what's sent to every attached peer after each Advance.
type Frame struct {
	Tick uint64 `json:"tick"`
	Hash uint64 `json:"hash"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Broadcaster fans a Frame out to every attached peer. Writes carry no
// deadline, so a slow peer delays the broadcast; a write error detaches
// that peer.
type Broadcaster struct {
	mu    sync.Mutex
	peers map[*websocket.Conn]struct{}
	log   log.Logger
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster(logger log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.NewNull()
	}
	return &Broadcaster{peers: make(map[*websocket.Conn]struct{}), log: logger}
}

// Upgrade promotes an HTTP request to a websocket connection and attaches
// it as a peer.
func (b *Broadcaster) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	b.Attach(conn)
	return conn, nil
}

// Attach registers an already-established connection as a peer.
func (b *Broadcaster) Attach(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[conn] = struct{}{}
}

// Detach removes a peer and closes its connection.
func (b *Broadcaster) Detach(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.peers[conn]; !ok {
		return
	}
	delete(b.peers, conn)
	conn.Close()
}

// PeerCount reports how many peers are currently attached.
func (b *Broadcaster) PeerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// Digest computes the determinism hash for one tick: an xxhash over the
// global timer and sequence counter, the two values that fully determine
// "what should have happened by now".
func Digest(globalTimer int64, sequenceCounter uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(globalTimer))
	binary.LittleEndian.PutUint64(buf[8:16], sequenceCounter)
	return xxhash.Sum64(buf[:])
}

// BroadcastTick sends a Frame carrying tick and its digest to every
// attached peer, dropping any peer whose write fails.
func (b *Broadcaster) BroadcastTick(tick uint64, hash uint64) {
	frame, err := json.Marshal(Frame{Tick: tick, Hash: hash})
	if err != nil {
		b.log.Errorf("netplay: failed to marshal frame: %v", err)
		return
	}

	b.mu.Lock()
	peers := make([]*websocket.Conn, 0, len(b.peers))
	for c := range b.peers {
		peers = append(peers, c)
	}
	b.mu.Unlock()

	for _, c := range peers {
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			b.log.Warnf("netplay: dropping peer after write error: %v", err)
			b.Detach(c)
		}
	}
}
