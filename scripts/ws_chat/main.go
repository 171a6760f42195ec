package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/socialchat-server/internal/proto"
)

type session struct {
	base  string
	token string
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("http", "http://localhost:8080", "server base URL")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "password123", "password")
	to := flag.Int64("to", 0, "user id to chat with")
	flag.Parse()

	if *to <= 0 {
		return errors.New("-to is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	s, err := authenticate(ctx, *base, *user, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + s.token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected as %s, chatting with user %d\n", *user, *to)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, s, *to)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// authenticate logs in, registering the account first if it does not exist.
func authenticate(ctx context.Context, base, user, password string) (*session, error) {
	creds := map[string]string{"username": user, "password": password}
	var resp struct {
		Token string `json:"token"`
	}

	s := &session{base: base}
	status, err := s.post(ctx, "/api/login", creds, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if status, err = s.post(ctx, "/api/register", creds, &resp); err != nil {
			return nil, err
		}
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("authentication failed with status %d", status)
	}
	s.token = resp.Token
	return s, nil
}

func (s *session) post(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			fmt.Printf("error %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case proto.EventNewMessage:
			var msg proto.Message
			if err := json.Unmarshal(outbound.Data, &msg); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("[%d] %s (%d attachments)\n", msg.SenderID, msg.Text, len(msg.Attachments))
		case proto.EventTyping:
			var evt proto.EventTypingData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal typing: %v", err)
				continue
			}
			if evt.IsTyping {
				fmt.Printf("user %d is typing...\n", evt.FromUserID)
			}
		case proto.EventPresence:
			var evt proto.EventPresenceData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal presence: %v", err)
				continue
			}
			names := make([]string, 0, len(evt.Users))
			for _, u := range evt.Users {
				names = append(names, u.Username)
			}
			fmt.Printf("online: %s\n", strings.Join(names, ", "))
		case proto.EventMessageDeleted:
			var evt proto.EventMessageDeletedData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal message_deleted: %v", err)
				continue
			}
			fmt.Printf("message %d deleted\n", evt.MessageID)
		default:
			fmt.Printf("event=%s data=%s\n", outbound.Event, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, s *session, to int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	typing := func(kind string) error {
		payload, err := json.Marshal(proto.TypingData{ToUserID: to})
		if err != nil {
			return err
		}
		return wsjson.Write(ctx, conn, proto.Inbound{Type: kind, Data: payload})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if err := typing(proto.InboundTypeTypingStart); err != nil {
				log.Printf("send error: %v", err)
				return
			}
			status, err := s.post(ctx, fmt.Sprintf("/api/conversations/%d/messages", to), map[string]string{"text": text}, nil)
			if err != nil {
				log.Printf("send message: %v", err)
			} else if status != http.StatusCreated {
				log.Printf("send message: status %d", status)
			}
			if err := typing(proto.InboundTypeTypingStop); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
