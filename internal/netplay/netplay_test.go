package netplay

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestDigestIsDeterministic(t *testing.T) {
	a := Digest(100, 7)
	b := Digest(100, 7)
	require.Equal(t, a, b)
}

func TestDigestDiffersOnTickOrSequence(t *testing.T) {
	base := Digest(100, 7)
	require.NotEqual(t, base, Digest(101, 7))
	require.NotEqual(t, base, Digest(100, 8))
}

func TestPeerCountAndAttachDetach(t *testing.T) {
	b := NewBroadcaster(nil)
	require.Equal(t, 0, b.PeerCount())

	srv, conn := newTestPeer(t, b)
	defer srv.Close()
	defer conn.Close()

	require.Equal(t, 1, b.PeerCount())
}

func TestBroadcastTickDeliversFrame(t *testing.T) {
	b := NewBroadcaster(nil)
	srv, conn := newTestPeer(t, b)
	defer srv.Close()
	defer conn.Close()

	b.BroadcastTick(42, 999)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), `"tick":42`)
	require.Contains(t, string(msg), `"hash":999`)
}

func newTestPeer(t *testing.T, b *Broadcaster) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := b.Upgrade(w, r)
		require.NoError(t, err)
	}))

	url := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	// Give the server-side Attach a moment to run before the test inspects
	// PeerCount from the client's goroutine.
	time.Sleep(50 * time.Millisecond)
	return srv, conn
}
