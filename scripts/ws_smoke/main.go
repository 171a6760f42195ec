package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/vovakirdan/socialchat-server/internal/proto"
)

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run registers two throwaway users, connects the receiver and checks that a
// REST send reaches it live.
func run() error {
	base := flag.String("http", "http://localhost:8080", "server base URL")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := uuid.NewString()[:8]
	senderToken, _, err := register(ctx, *base, "smoke-a-"+suffix)
	if err != nil {
		return err
	}
	receiverToken, receiverID, err := register(ctx, *base, "smoke-b-"+suffix)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + receiverToken
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// The first frame is always the presence snapshot.
	var first outbound
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		return fmt.Errorf("read presence: %w", err)
	}
	fmt.Printf("Received outbound: type=%s event=%s\n", first.Type, first.Event)

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypePing}); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	body, err := json.Marshal(map[string]string{"text": *text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/conversations/%d/messages", *base, receiverID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+senderToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("send message: status %d", resp.StatusCode)
	}

	var gotPong bool
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}
		switch out.Event {
		case proto.EventPong:
			gotPong = true
		case proto.EventNewMessage:
			var msg proto.Message
			if err := json.Unmarshal(out.Data, &msg); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			fmt.Printf("Received message %d: %q (pong=%v)\n", msg.ID, msg.Text, gotPong)
			return nil
		}
	}
}

func register(ctx context.Context, base, username string) (string, int64, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": "smoke-password"})
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/register", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("register %s: %w", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", 0, fmt.Errorf("register %s: status %d", username, resp.StatusCode)
	}
	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", 0, fmt.Errorf("decode register: %w", err)
	}

	meReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/users/me", nil)
	if err != nil {
		return "", 0, err
	}
	meReq.Header.Set("Authorization", "Bearer "+auth.Token)
	meResp, err := http.DefaultClient.Do(meReq)
	if err != nil {
		return "", 0, fmt.Errorf("me: %w", err)
	}
	defer meResp.Body.Close()
	var me proto.User
	if err := json.NewDecoder(meResp.Body).Decode(&me); err != nil {
		return "", 0, fmt.Errorf("decode me: %w", err)
	}
	return auth.Token, me.ID, nil
}
