package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kbessonov/roomhub/pkg/logging"
)

// dialConnection spins up a real websocket pair and returns the
// server-side Connection plus the client socket.
func dialConnection(t *testing.T) (*Connection, *websocket.Conn) {
	t.Helper()

	var wg sync.WaitGroup
	connCh := make(chan *Connection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conn := NewConnection(context.Background(), &wg, ws, ConnectionConfig{}, logging.Discard())
		conn.Run()
		connCh <- conn
		<-conn.Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(websocket.StatusNormalClosure, "") })

	select {
	case conn := <-connCh:
		return conn, client
	case <-ctx.Done():
		t.Fatal("server connection never established")
		return nil, nil
	}
}

func TestSendDeliversFrame(t *testing.T) {
	conn, client := dialConnection(t)
	defer conn.Close(nil)

	conn.Send([]byte(`{"event":"ping"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, frame, err := client.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"event":"ping"}`, string(frame))
}

func TestSendAfterCloseDropsFrames(t *testing.T) {
	conn, _ := dialConnection(t)

	conn.Close(nil)
	<-conn.Done()

	for i := 0; i < 200; i++ {
		conn.Send([]byte("late frame"))
	}
}

func TestSendRacingCloseNeverPanics(t *testing.T) {
	conn, _ := dialConnection(t)

	var senders sync.WaitGroup
	for i := 0; i < 8; i++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for j := 0; j < 100; j++ {
				conn.Send([]byte("frame"))
			}
		}()
	}
	conn.Close(nil)
	senders.Wait()
	<-conn.Done()
}

func TestCloseFiresHandlerOnce(t *testing.T) {
	conn, _ := dialConnection(t)

	var mu sync.Mutex
	calls := 0
	conn.SetOnCloseHandler(func(_ uuid.UUID, _ error) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	for i := 0; i < 4; i++ {
		conn.Close(nil)
	}
	<-conn.Done()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}
