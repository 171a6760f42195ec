package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/media"
	"github.com/vovakirdan/socialchat-server/internal/proto"
	"github.com/vovakirdan/socialchat-server/internal/service/follows"
	"github.com/vovakirdan/socialchat-server/internal/service/messages"
	"github.com/vovakirdan/socialchat-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	auth  *auth.Service
	store *sqlite.SQLiteStore
	fs    afero.Fs
}

type testUser struct {
	id    int64
	token string
}

func defaultTestConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	cfg.MaxAttachmentBytes = 1 << 10
	cfg.WSPingInterval = 0
	return cfg
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	hub := core.NewHub(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	fs := afero.NewMemMapFs()
	mediaStore := media.NewAferoStore(fs, cfg.MaxAttachmentBytes)
	followService := follows.New(st)
	messageService := messages.New(st, mediaStore, hub, followService, &logger,
		messages.WithMaxAttachments(cfg.MaxAttachments))

	server := NewServer(Deps{
		Hub:      hub,
		Auth:     authService,
		Store:    st,
		Follows:  followService,
		Messages: messageService,
		Media:    mediaStore,
	}, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService, store: st, fs: fs}
}

func (e *testEnv) register(t *testing.T, username string) testUser {
	t.Helper()

	token, err := e.auth.Register(context.Background(), auth.Registration{Username: username, Password: "password123"})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	claims, err := e.auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	return testUser{id: claims.UserID, token: token}
}

// do sends a JSON request and decodes the response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return e.send(t, req, out)
}

func (e *testEnv) send(t *testing.T, req *http.Request, out any) int {
	t.Helper()

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", req.Method, req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) follow(t *testing.T, from testUser, to testUser) {
	t.Helper()
	if code := e.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/follow", to.id), from.token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("follow: expected 204, got %d", code)
	}
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		wsURL += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readUntil reads outbound envelopes until one matches event and decodes its data into out.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, out any) {
	t.Helper()

	for {
		var envelope struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &envelope); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if envelope.Type == proto.OutboundTypeEvent && envelope.Event == event {
			if out != nil {
				if err := json.Unmarshal(envelope.Data, out); err != nil {
					t.Fatalf("decode %s: %v", event, err)
				}
			}
			return
		}
	}
}

// readError reads envelopes until an error envelope arrives.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()

	for {
		var outbound struct {
			Type  string       `json:"type"`
			Error *proto.Error `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("waiting for error: %v", err)
		}
		if outbound.Type == proto.OutboundTypeError {
			return outbound.Error
		}
	}
}

// waitOnline reads presence events on conn until ids are exactly the online set.
func waitOnline(t *testing.T, ctx context.Context, conn *websocket.Conn, ids ...int64) {
	t.Helper()

	for {
		var presence proto.EventPresenceData
		readUntil(t, ctx, conn, proto.EventPresence, &presence)
		if len(presence.Users) != len(ids) {
			continue
		}
		match := true
		for i, u := range presence.Users {
			if u.UserID != ids[i] {
				match = false
				break
			}
		}
		if match {
			return
		}
	}
}

func writeInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal inbound: %v", err)
		}
		raw = payload
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}
