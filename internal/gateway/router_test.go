package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

func testServer(t *testing.T, token string) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Gateway.Token = token
	cfg.Gateway.RatePerSec = 100
	cfg.Gateway.RateBurst = 100
	return NewServer(cfg, nil)
}

func testClient(s *Server) *Client {
	return &Client{id: "test-client", server: s, send: make(chan []byte, 16)}
}

func nextResponse(t *testing.T, c *Client) *protocol.ResponseFrame {
	t.Helper()
	select {
	case data := <-c.send:
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		return &resp
	case <-time.After(time.Second):
		t.Fatal("no response")
		return nil
	}
}

func request(id, method, params string) *protocol.RequestFrame {
	req := &protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: id, Method: method}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return req
}

func TestConnect_NoTokenConfigured(t *testing.T) {
	s := testServer(t, "")
	c := testClient(s)

	s.router.Handle(context.Background(), c, request("1", protocol.MethodConnect, ""))

	resp := nextResponse(t, c)
	if !resp.OK {
		t.Fatalf("connect failed: %+v", resp.Error)
	}
	if !c.Authenticated() {
		t.Error("client not authenticated after connect")
	}
}

func TestConnect_WrongToken(t *testing.T) {
	s := testServer(t, "secret")
	c := testClient(s)

	s.router.Handle(context.Background(), c, request("1", protocol.MethodConnect, `{"token":"wrong"}`))

	resp := nextResponse(t, c)
	if resp.OK || resp.Error.Code != protocol.ErrUnauthorized {
		t.Fatalf("resp = %+v, want unauthorized", resp)
	}
	if c.Authenticated() {
		t.Error("client authenticated with wrong token")
	}
}

func TestConnect_CorrectToken(t *testing.T) {
	s := testServer(t, "secret")
	c := testClient(s)

	s.router.Handle(context.Background(), c, request("1", protocol.MethodConnect, `{"token":"secret"}`))

	if resp := nextResponse(t, c); !resp.OK {
		t.Fatalf("connect failed: %+v", resp.Error)
	}
}

func TestHandleFrame_RequiresConnectFirst(t *testing.T) {
	s := testServer(t, "secret")
	c := testClient(s)

	frame, _ := json.Marshal(request("1", protocol.MethodHealth, ""))
	c.handleFrame(context.Background(), frame)

	resp := nextResponse(t, c)
	if resp.OK || resp.Error.Code != protocol.ErrUnauthorized {
		t.Fatalf("resp = %+v, want unauthorized before connect", resp)
	}
}

func TestHandle_UnknownMethod(t *testing.T) {
	s := testServer(t, "")
	c := testClient(s)
	c.authenticated.Store(true)

	s.router.Handle(context.Background(), c, request("1", "no.such.method", ""))

	resp := nextResponse(t, c)
	if resp.OK || resp.Error.Code != protocol.ErrInvalidRequest {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandle_RateLimit(t *testing.T) {
	cfg := &config.Config{}
	cfg.Gateway.RatePerSec = 1
	cfg.Gateway.RateBurst = 2
	s := NewServer(cfg, nil)
	c := testClient(s)
	c.authenticated.Store(true)

	var limited bool
	for i := 0; i < 5; i++ {
		s.router.Handle(context.Background(), c, request("r", protocol.MethodHealth, ""))
		if resp := nextResponse(t, c); !resp.OK && resp.Error.Code == protocol.ErrResourceExhausted {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst of requests never hit the rate limit")
	}
}

func TestEventSequenceNumbers(t *testing.T) {
	s := testServer(t, "")
	c := testClient(s)

	c.SendEvent(protocol.EventFrame{Type: protocol.FrameTypeEvent, Event: protocol.EventChat})
	c.SendEvent(protocol.EventFrame{Type: protocol.FrameTypeEvent, Event: protocol.EventChat})

	var first, second protocol.EventFrame
	json.Unmarshal(<-c.send, &first)
	json.Unmarshal(<-c.send, &second)

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d, %d; want 1, 2", first.Seq, second.Seq)
	}
}

func TestParseFrameType_Invalid(t *testing.T) {
	s := testServer(t, "")
	c := testClient(s)

	c.handleFrame(context.Background(), []byte("not json"))

	resp := nextResponse(t, c)
	if resp.OK || resp.Error.Code != protocol.ErrInvalidRequest {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRateLimiter_DisabledAllowsAll(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("k") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if rl.Enabled() {
		t.Error("limiter with perSec=0 reports enabled")
	}
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.Allow("a") {
		t.Fatal("first request for key a rejected")
	}
	if rl.Allow("a") {
		t.Error("burst of 1 allowed a second immediate request")
	}
	if !rl.Allow("b") {
		t.Error("key b throttled by key a's usage")
	}
}
