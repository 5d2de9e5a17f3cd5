package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/restobook/realtime-server/internal/proto"
)

// ws_smoke announces a guest, sends a staff reply to it over the main
// namespace and waits for the guest to receive it.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "ws://localhost:8080", "server websocket base address")
	api := flag.String("api", "http://localhost:8080", "server REST base address")
	token := flag.String("token", "", "employee bearer token (see: restobook-realtime token <id>)")
	visitor := flag.String("visitor", "smoke-visitor", "visitor id to announce")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := ensureGuest(ctx, *api, *visitor); err != nil {
		return err
	}

	guest, _, err := websocket.Dial(ctx, *base+"/ws/guest", nil)
	if err != nil {
		return fmt.Errorf("dial guest: %w", err)
	}
	defer guest.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, guest, proto.EventGuestOnline, *visitor); err != nil {
		return err
	}

	staff, resp, err := websocket.Dial(ctx, *base+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial main: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial main: %w", err)
	}
	defer staff.Close(websocket.StatusNormalClosure, "bye")

	connected, err := await(ctx, staff, proto.EventConnected)
	if err != nil {
		return err
	}
	fmt.Printf("connected: %s\n", connected)

	if err := send(ctx, staff, proto.EventSendMessageFromEmployee, proto.SendFromEmployeeData{VisitorID: *visitor, Text: *text}); err != nil {
		return err
	}

	raw, err := await(ctx, guest, proto.EventNewMessage)
	if err != nil {
		return err
	}
	var msg proto.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	fmt.Printf("guest received: id=%s sender=%s text=%q\n", msg.ID, msg.SenderType, msg.Text)
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Envelope{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func await(ctx context.Context, conn *websocket.Conn, event string) (json.RawMessage, error) {
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		switch env.Event {
		case event:
			return env.Data, nil
		case proto.EventErrorMessage:
			return nil, fmt.Errorf("server error: %s", env.Data)
		default:
			fmt.Printf("skipping %s\n", env.Event)
		}
	}
}

func ensureGuest(ctx context.Context, api, visitorID string) error {
	body, _ := json.Marshal(map[string]string{"visitorId": visitorID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/api/guests", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ensure guest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ensure guest: status %d", resp.StatusCode)
	}
	return nil
}
