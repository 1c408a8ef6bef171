package synthesis

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeProvider runs the connect/start handshake, consumes the text and
// end-of-input directives, then hands the connection to script.
func fakeProvider(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		if r.Header.Get("Authorization") != "Bearer test-key" {
			conn.WriteJSON(map[string]string{"event": "connect_failed"})
			return
		}

		conn.WriteJSON(map[string]interface{}{"event": "connected_success", "session_id": "sess-1"})

		var start map[string]interface{}
		if err := conn.ReadJSON(&start); err != nil || start["event"] != "task_start" {
			t.Errorf("expected task_start, got %v (err %v)", start, err)
			return
		}
		conn.WriteJSON(map[string]string{"event": "task_started"})

		var cont map[string]interface{}
		if err := conn.ReadJSON(&cont); err != nil || cont["event"] != "task_continue" {
			t.Errorf("expected task_continue, got %v (err %v)", cont, err)
			return
		}
		var finish map[string]interface{}
		if err := conn.ReadJSON(&finish); err != nil || finish["event"] != "task_finish" {
			t.Errorf("expected task_finish, got %v (err %v)", finish, err)
			return
		}

		script(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: "test-key", Endpoint: wsURL(srv)}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

type recordedChunk struct {
	data    []byte
	isFinal bool
	format  string
}

func TestSynthesizeStreamsHexChunks(t *testing.T) {
	first := []byte("audio-one")
	second := []byte("audio-two")

	srv := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{
			"data":       map[string]string{"audio": hex.EncodeToString(first)},
			"extra_info": map[string]string{"audio_format": "mp3"},
		})
		conn.WriteJSON(map[string]interface{}{
			"data": map[string]string{"audio": hex.EncodeToString(second)},
		})
		conn.WriteJSON(map[string]string{"event": "task_finished"})
	})
	defer srv.Close()

	var got []recordedChunk
	client := newTestClient(t, srv)
	result, err := client.Synthesize(context.Background(), "hello", func(chunk []byte, isFinal bool, format string) {
		got = append(got, recordedChunk{append([]byte(nil), chunk...), isFinal, format})
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if result.Chunks != 2 {
		t.Errorf("Chunks = %d, want 2", result.Chunks)
	}
	if want := len(first) + len(second); result.AudioBytes != want {
		t.Errorf("AudioBytes = %d, want %d", result.AudioBytes, want)
	}

	if len(got) != 3 {
		t.Fatalf("callback invoked %d times, want 3", len(got))
	}
	if got[0].isFinal || got[1].isFinal {
		t.Error("streaming chunks must not be final")
	}
	if !got[2].isFinal {
		t.Error("last callback must be final")
	}
	// The final callback re-sends the last received chunk's bytes.
	if string(got[2].data) != string(second) {
		t.Errorf("final chunk = %q, want %q", got[2].data, second)
	}

	finals := 0
	for _, c := range got {
		if c.isFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("got %d final chunks, want exactly 1", finals)
	}
}

func TestSynthesizeDecodesBase64Fallback(t *testing.T) {
	// 0xfb 0xef 0xbe encodes to "++++" in base64, which is not valid hex.
	payload := []byte{0xfb, 0xef, 0xbe}
	encoded := base64.StdEncoding.EncodeToString(payload)
	if _, err := hex.DecodeString(encoded); err == nil {
		t.Fatalf("test payload %q must not be valid hex", encoded)
	}

	srv := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"data": map[string]string{"audio": encoded}})
		conn.WriteJSON(map[string]string{"event": "task_finished"})
	})
	defer srv.Close()

	var got []recordedChunk
	client := newTestClient(t, srv)
	if _, err := client.Synthesize(context.Background(), "hi", func(chunk []byte, isFinal bool, format string) {
		got = append(got, recordedChunk{append([]byte(nil), chunk...), isFinal, format})
	}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(got) == 0 || string(got[0].data) != string(payload) {
		t.Fatalf("base64 chunk not decoded, got %v", got)
	}
}

func TestSynthesizeDropsUndecodableChunks(t *testing.T) {
	valid := []byte("ok")

	srv := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"data": map[string]string{"audio": "!!not-audio!!"}})
		conn.WriteJSON(map[string]interface{}{"data": map[string]string{"audio": hex.EncodeToString(valid)}})
		conn.WriteJSON(map[string]string{"event": "task_finished"})
	})
	defer srv.Close()

	var got []recordedChunk
	client := newTestClient(t, srv)
	result, err := client.Synthesize(context.Background(), "hi", func(chunk []byte, isFinal bool, format string) {
		got = append(got, recordedChunk{append([]byte(nil), chunk...), isFinal, format})
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if result.Chunks != 1 {
		t.Errorf("Chunks = %d, want 1 (undecodable chunk dropped)", result.Chunks)
	}
	if len(got) != 2 || string(got[0].data) != "ok" {
		t.Fatalf("unexpected callback sequence: %v", got)
	}
}

func TestSynthesizeTaskFailed(t *testing.T) {
	srv := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"event": "task_failed"})
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	if _, err := client.Synthesize(context.Background(), "hi", nil); err == nil {
		t.Fatal("task_failed must yield an error")
	}
}

func TestSynthesizeImplicitCompletionOnTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the inter-chunk timeout")
	}

	chunk := []byte("tail")
	srv := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"data": map[string]string{"audio": hex.EncodeToString(chunk)}})
		// Never send task_finished; the client should assume completion.
		time.Sleep(3 * time.Second)
	})
	defer srv.Close()

	var got []recordedChunk
	client := newTestClient(t, srv)
	result, err := client.Synthesize(context.Background(), "hi", func(data []byte, isFinal bool, format string) {
		got = append(got, recordedChunk{append([]byte(nil), data...), isFinal, format})
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if result.Chunks != 1 {
		t.Errorf("Chunks = %d, want 1", result.Chunks)
	}
	if len(got) != 2 {
		t.Fatalf("callback invoked %d times, want 2", len(got))
	}
	if !got[1].isFinal || string(got[1].data) != string(chunk) {
		t.Errorf("timeout path must re-send the last chunk as final, got %+v", got[1])
	}
}

func TestSynthesizeEmptyStreamSendsEmptyFinal(t *testing.T) {
	srv := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"event": "task_finished"})
	})
	defer srv.Close()

	var got []recordedChunk
	client := newTestClient(t, srv)
	result, err := client.Synthesize(context.Background(), "hi", func(data []byte, isFinal bool, format string) {
		got = append(got, recordedChunk{append([]byte(nil), data...), isFinal, format})
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if result.Chunks != 0 || result.AudioBytes != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
	if len(got) != 1 || !got[0].isFinal || len(got[0].data) != 0 {
		t.Fatalf("want exactly one empty final callback, got %v", got)
	}
}

func TestSynthesizeRejectsBadHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]string{"event": "connect_failed"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	if _, err := client.Synthesize(context.Background(), "hi", nil); err == nil {
		t.Fatal("bad handshake must yield an error")
	}
	if client.conn != nil {
		t.Error("connection must be reset after a failed handshake")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}, zap.NewNop()); err == nil {
		t.Fatal("missing API key must be rejected")
	}
}

func TestSynthesizeIsReusableAcrossSessions(t *testing.T) {
	srv := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"data": map[string]string{"audio": hex.EncodeToString([]byte("x"))}})
		conn.WriteJSON(map[string]string{"event": "task_finished"})
	})
	defer srv.Close()

	client := newTestClient(t, srv)
	for i := 0; i < 2; i++ {
		if _, err := client.Synthesize(context.Background(), "hi", nil); err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
		if client.conn != nil || client.sessionID != "" {
			t.Fatalf("session %d: state not reset after teardown", i)
		}
	}
}
