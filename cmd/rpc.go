package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// gatewayAddr returns the dialable host:port for the configured gateway.
func gatewayAddr(cfg *config.Config) string {
	host := cfg.Gateway.Host
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, cfg.Gateway.Port)
}

func isGatewayRunning(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// dialGateway opens a WebSocket to the gateway and authenticates.
func dialGateway(cfg *config.Config) (*websocket.Conn, error) {
	wsURL := fmt.Sprintf("ws://%s/ws", gatewayAddr(cfg))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	if err := wsConnect(conn, cfg.Gateway.Token); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// wsConnect sends the connect handshake and waits for the auth response.
func wsConnect(conn *websocket.Conn, token string) error {
	params := map[string]string{}
	if token != "" {
		params["token"] = token
	}
	paramsJSON, _ := json.Marshal(params)

	req := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "connect-1",
		Method: protocol.MethodConnect,
		Params: paramsJSON,
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}

	var resp protocol.ResponseFrame
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read connect response: %w", err)
	}
	if !resp.OK {
		if resp.Error != nil {
			return fmt.Errorf("connect rejected: %s", resp.Error.Message)
		}
		return fmt.Errorf("connect rejected")
	}
	return nil
}

// gatewayRPC performs a single request/response round trip on a fresh
// connection. Event frames received while waiting are discarded.
func gatewayRPC(cfg *config.Config, method string, params any) (*protocol.ResponseFrame, error) {
	conn, err := dialGateway(cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return rpcOnConn(conn, method, params, nil)
}

// rpcOnConn sends one request on an authenticated connection and waits for
// the matching response. Events seen in the meantime go to onEvent when set.
func rpcOnConn(conn *websocket.Conn, method string, params any, onEvent func(protocol.EventFrame)) (*protocol.ResponseFrame, error) {
	reqID := uuid.NewString()[:8]
	req := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     reqID,
		Method: method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}

		frameType, _ := protocol.ParseFrameType(raw)
		switch frameType {
		case protocol.FrameTypeResponse:
			var resp protocol.ResponseFrame
			if err := json.Unmarshal(raw, &resp); err != nil {
				continue
			}
			if resp.ID != reqID {
				continue
			}
			return &resp, nil

		case protocol.FrameTypeEvent:
			if onEvent == nil {
				continue
			}
			var evt protocol.EventFrame
			if err := json.Unmarshal(raw, &evt); err != nil {
				continue
			}
			onEvent(evt)
		}
	}
}

// decodePayload re-marshals a response payload into out.
func decodePayload(resp *protocol.ResponseFrame, out any) error {
	raw, err := json.Marshal(resp.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// mustRPC runs an RPC and exits with a message on any failure.
func mustRPC(cfg *config.Config, method string, params any) *protocol.ResponseFrame {
	resp, err := gatewayRPC(cfg, method, params)
	if err != nil {
		fatalf("%v", err)
	}
	if !resp.OK {
		if resp.Error != nil {
			fatalf("%s failed: %s", method, resp.Error.Message)
		}
		fatalf("%s failed", method)
	}
	return resp
}
