package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/domain/repositories"
)

func sseChunk(content, finishReason string) string {
	if finishReason != "" {
		return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q},"finish_reason":%q}]}`+"\n\n", content, finishReason)
	}
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`+"\n\n", content)
}

func newTestTranslator(t *testing.T, handler http.HandlerFunc) (*MiniMaxTranslator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	tr, err := NewMiniMaxTranslator("test-key", zap.NewNop())
	if err != nil {
		t.Fatalf("NewMiniMaxTranslator: %v", err)
	}
	tr.SetEndpoint(srv.URL)
	return tr, srv
}

func TestMiniMaxTranslateAccumulatesStream(t *testing.T) {
	tr, srv := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Hello", ""))
		fmt.Fprint(w, sseChunk(", world", ""))
		fmt.Fprint(w, sseChunk("!", "stop"))
		// Content after the stop marker must be ignored.
		fmt.Fprint(w, sseChunk(" trailing garbage", ""))
	})
	defer srv.Close()

	got, err := tr.Translate(context.Background(), "你好，世界！", "English", nil, repositories.StyleDefault)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hello, world!" {
		t.Errorf("Translate = %q, want %q", got, "Hello, world!")
	}
}

func TestMiniMaxTranslateEmptyResultFallsBack(t *testing.T) {
	tr, srv := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("", "stop"))
	})
	defer srv.Close()

	got, err := tr.Translate(context.Background(), "original text", "English", nil, repositories.StyleDefault)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "original text" {
		t.Errorf("empty stream should fall back to original text, got %q", got)
	}
}

func TestMiniMaxTranslateNonOKStatus(t *testing.T) {
	tr, srv := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	defer srv.Close()

	if _, err := tr.Translate(context.Background(), "text", "English", nil, repositories.StyleDefault); err == nil {
		t.Fatal("non-200 response must yield an error")
	}
}

func TestMiniMaxTranslateSkipsMalformedLines(t *testing.T) {
	tr, srv := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, sseChunk("ok", "stop"))
	})
	defer srv.Close()

	got, err := tr.Translate(context.Background(), "text", "English", nil, repositories.StyleDefault)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "ok" {
		t.Errorf("Translate = %q, want %q", got, "ok")
	}
}

func TestMiniMaxTranslateHonorsContext(t *testing.T) {
	block := make(chan struct{})
	tr, srv := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Translate(ctx, "text", "English", nil, repositories.StyleDefault); err == nil {
		t.Fatal("cancelled context must yield an error")
	}
}

func TestNewMiniMaxTranslatorRequiresKey(t *testing.T) {
	if _, err := NewMiniMaxTranslator("", zap.NewNop()); err == nil {
		t.Fatal("missing API key must be rejected")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("bonjour", "English", []string{"CRDT", "WAL"}, repositories.StyleBusiness)

	for _, want := range []string{"English", "CRDT, WAL", "business", "bonjour", "Output ONLY the translated text"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	plain := buildPrompt("hola", "German", nil, repositories.StyleDefault)
	if strings.Contains(plain, "Translation style") {
		t.Error("default style must not add a style block")
	}
	if strings.Contains(plain, "Domain terms") {
		t.Error("prompt without hot words must not add a hot words block")
	}
}

func TestParseTranslationStyle(t *testing.T) {
	cases := map[string]repositories.TranslationStyle{
		"colloquial": repositories.StyleColloquial,
		"business":   repositories.StyleBusiness,
		"academic":   repositories.StyleAcademic,
		"default":    repositories.StyleDefault,
		"":           repositories.StyleDefault,
		"sarcastic":  repositories.StyleDefault,
	}
	for in, want := range cases {
		if got := repositories.ParseTranslationStyle(in); got != want {
			t.Errorf("ParseTranslationStyle(%q) = %q, want %q", in, got, want)
		}
	}
}
