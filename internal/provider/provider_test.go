package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

type captured struct {
	method string
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured, *atomic.Int32) {
	t.Helper()
	got := &captured{}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got, &calls
}

func newTestAdapter(srv *httptest.Server) *Adapter {
	logger, _ := test.NewNullLogger()
	return NewAdapter(
		WithLogger(logger),
		WithHTTPClient(srv.Client()),
		WithBaseURL(OpenAI, srv.URL),
		WithBaseURL(Gemini, srv.URL),
		WithBaseURL(Claude, srv.URL+"/"),
	)
}

func sampleTranscript() transcript.Transcript {
	return transcript.Transcript{
		transcript.NewMessage(transcript.RoleSystem, "be brief"),
		transcript.NewMessage(transcript.RoleUser, "hello"),
		transcript.NewMessage(transcript.RoleAssistant, "hi"),
		transcript.NewMessage(transcript.RoleUser, "list files"),
	}
}

func TestOpenAIRequestShape(t *testing.T) {
	srv, got, _ := newServer(t, http.StatusOK,
		`{"choices":[{"index":0,"message":{"role":"assistant","content":"Use [RUN: ls]"}}]}`)

	reply, err := newTestAdapter(srv).Send(context.Background(),
		Config{Provider: OpenAI, APIKey: "sk-test"}, sampleTranscript())
	require.NoError(t, err)
	require.Equal(t, "Use [RUN: ls]", reply)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-test", got.header.Get("Authorization"))
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "gpt-4o-mini", got.body["model"])

	messages := got.body["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, map[string]any{"role": "system", "content": "be brief"}, messages[0])
	assert.Equal(t, map[string]any{"role": "assistant", "content": "hi"}, messages[2])
}

func TestGeminiRequestShape(t *testing.T) {
	srv, got, _ := newServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"gemini says hi"}]}}]}`)

	reply, err := newTestAdapter(srv).Send(context.Background(),
		Config{Provider: Gemini, APIKey: "g-key"}, sampleTranscript())
	require.NoError(t, err)
	require.Equal(t, "gemini says hi", reply)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", got.path)
	assert.Empty(t, got.query)
	assert.Equal(t, "g-key", got.header.Get("x-goog-api-key"))
	assert.Empty(t, got.header.Get("Authorization"))

	contents := got.body["contents"].([]any)
	require.Len(t, contents, 3)
	roles := []any{}
	for _, c := range contents {
		roles = append(roles, c.(map[string]any)["role"])
	}
	assert.Equal(t, []any{"user", "model", "user"}, roles)
	assert.Equal(t,
		map[string]any{"parts": []any{map[string]any{"text": "be brief"}}},
		got.body["system_instruction"])
}

func TestGeminiWithoutSystemOmitsInstruction(t *testing.T) {
	srv, got, _ := newServer(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)

	_, err := newTestAdapter(srv).Send(context.Background(),
		Config{Provider: Gemini, APIKey: "k", Model: "gemini-2.0-pro"},
		transcript.Transcript{transcript.NewMessage(transcript.RoleUser, "hey")})
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-2.0-pro:generateContent", got.path)
	assert.NotContains(t, got.body, "system_instruction")
}

func TestClaudeRequestShape(t *testing.T) {
	srv, got, _ := newServer(t, http.StatusOK,
		`{"content":[{"type":"text","text":"claude reply"}]}`)

	reply, err := newTestAdapter(srv).Send(context.Background(),
		Config{Provider: Claude, APIKey: "c-key", Model: "claude-3-5-haiku"}, sampleTranscript())
	require.NoError(t, err)
	require.Equal(t, "claude reply", reply)

	assert.Equal(t, "/v1/messages", got.path)
	assert.Equal(t, "c-key", got.header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", got.header.Get("anthropic-version"))
	assert.Equal(t, "claude-3-5-haiku", got.body["model"])
	assert.EqualValues(t, 4096, got.body["max_tokens"])
	assert.Equal(t, "be brief", got.body["system"])

	messages := got.body["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, map[string]any{"role": "user", "content": "hello"}, messages[0])
	assert.Equal(t, map[string]any{"role": "assistant", "content": "hi"}, messages[1])
}

func TestClaudeDefaultModel(t *testing.T) {
	srv, got, _ := newServer(t, http.StatusOK, `{"content":[{"text":"x"}]}`)

	_, err := newTestAdapter(srv).Send(context.Background(),
		Config{Provider: Claude, APIKey: "k"}, sampleTranscript())
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", got.body["model"])
}

func TestNonSuccessStatusIsProviderError(t *testing.T) {
	for _, name := range []string{OpenAI, Gemini, Claude} {
		srv, _, _ := newServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`)

		_, err := newTestAdapter(srv).Send(context.Background(),
			Config{Provider: name, APIKey: "k"}, sampleTranscript())

		require.ErrorIs(t, err, apperr.ErrProvider, name)
		var e *apperr.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, http.StatusUnauthorized, e.StatusCode)
		assert.Equal(t, `{"error":{"message":"bad key"}}`, e.Body)
	}
}

func TestMissingReplyFieldIsParseError(t *testing.T) {
	cases := map[string][]string{
		OpenAI: {`{}`, `{"choices":[]}`, `{"choices":[{"message":{}}]}`, `{"choices":[{"message":{"content":""}}]}`, `not json`},
		Gemini: {`{}`, `{"candidates":[{}]}`, `{"candidates":[{"content":{"parts":[]}}]}`, `{"candidates":[{"content":{"parts":[{}]}}]}`},
		Claude: {`{}`, `{"content":[]}`, `{"content":[{"type":"tool_use"}]}`, `{"content":null}`},
	}

	for name, bodies := range cases {
		for _, body := range bodies {
			srv, _, _ := newServer(t, http.StatusOK, body)

			reply, err := newTestAdapter(srv).Send(context.Background(),
				Config{Provider: name, APIKey: "k"}, sampleTranscript())

			require.ErrorIs(t, err, apperr.ErrParse, "%s %s", name, body)
			require.Empty(t, reply)
		}
	}
}

func TestConfigErrorsBeforeNetwork(t *testing.T) {
	srv, _, calls := newServer(t, http.StatusOK, `{}`)
	adapter := newTestAdapter(srv)

	_, err := adapter.Send(context.Background(), Config{Provider: OpenAI}, sampleTranscript())
	require.ErrorIs(t, err, apperr.ErrConfig)

	_, err = adapter.Send(context.Background(), Config{Provider: "mistral", APIKey: "k"}, sampleTranscript())
	require.ErrorIs(t, err, apperr.ErrProvider)
	_, hasStatus := apperr.ProviderStatus(err)
	require.False(t, hasStatus)

	require.Zero(t, calls.Load())
}

func TestCancelledInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	reply, err := newTestAdapter(srv).Send(ctx, Config{Provider: Claude, APIKey: "k"}, sampleTranscript())

	require.ErrorIs(t, err, apperr.ErrCancelled)
	require.False(t, errors.Is(err, apperr.ErrProvider))
	require.Empty(t, reply)
}

func TestNames(t *testing.T) {
	require.Equal(t, []string{Claude, Gemini, OpenAI}, NewAdapter().Names())
}
