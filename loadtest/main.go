package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	UserCount = 200 // each user gets their own playbook thread
	MsgCount  = 20  // messages per user
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error"`
}

type loginData struct {
	Token string `json:"access_token"`
	ID    string `json:"id"`
}

type playbookData struct {
	ID string `json:"id"`
}

type event struct {
	Type string `json:"type"`
}

var received atomic.Int64

func main() {
	log.Info().Int("users", UserCount).Int("messages", MsgCount).Msg("starting chat load test")
	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < UserCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runUser(id)
		}(i)
	}

	wg.Wait()
	log.Info().
		Int64("events_received", received.Load()).
		Int("events_expected", UserCount*MsgCount).
		Dur("elapsed", time.Since(start)).
		Msg("load test complete")
}

func runUser(n int) {
	username := fmt.Sprintf("lt_user_%d", n)
	ulog := log.With().Str("user", username).Logger()

	token := authenticate(username, "password123")
	if token == "" {
		return
	}

	var pb envelope[playbookData]
	if err := call(http.MethodPost, "/api/playbooks", token, map[string]any{"title": "Load test " + username}, &pb); err != nil {
		ulog.Error().Err(err).Msg("create playbook failed")
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s&playbook_id=%s", WSURL, token, pb.Data.ID), nil)
	if err != nil {
		ulog.Error().Err(err).Msg("websocket connect failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		got := 0
		for got < MsgCount {
			conn.SetReadDeadline(time.Now().Add(10 * time.Second))
			var ev event
			if err := conn.ReadJSON(&ev); err != nil {
				ulog.Warn().Err(err).Int("received", got).Msg("stopped reading")
				return
			}
			if ev.Type == "message.created" {
				got++
				received.Add(1)
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		msg := map[string]string{"type": "message", "message": fmt.Sprintf("load test message %d from %s", i, username)}
		if err := conn.WriteJSON(msg); err != nil {
			ulog.Error().Err(err).Msg("send failed")
			break
		}
		// pace writes so localhost is not the bottleneck
		time.Sleep(10 * time.Millisecond)
	}
	<-done
	ulog.Debug().Int("sent", MsgCount).Msg("user finished")
}

// authenticate registers (ignoring conflicts) and logs in.
func authenticate(username, password string) string {
	creds := map[string]string{"username": username, "password": password}
	_ = call(http.MethodPost, "/register", "", creds, nil)

	var res envelope[loginData]
	if err := call(http.MethodPost, "/login", "", creds, &res); err != nil {
		log.Error().Err(err).Str("user", username).Msg("login failed")
		return ""
	}
	return res.Data.Token
}

func call(method, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e envelope[json.RawMessage]
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
