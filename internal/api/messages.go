package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/grote-beer/MySensors/internal/audit"
	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/protocol"
)

// MessageView is the JSON form of a message, used by the injection
// endpoint and the live stream. Stream payloads are upper-case hex, every
// other payload is the text as sent.
type MessageView struct {
	NodeID   uint8  `json:"node_id"`
	SensorID uint8  `json:"sensor_id"`
	Command  uint8  `json:"command"`
	Type     uint8  `json:"type"`
	TypeName string `json:"type_name,omitempty"`
	Ack      bool   `json:"ack"`
	Payload  string `json:"payload"`
}

// NewMessageView renders msg for JSON clients.
func NewMessageView(msg protocol.Message) MessageView {
	payload := msg.String()
	if msg.Command == protocol.CommandStream {
		payload = strings.ToUpper(hex.EncodeToString(msg.Payload))
	}
	return MessageView{
		NodeID:   msg.NodeID,
		SensorID: msg.SensorID,
		Command:  uint8(msg.Command),
		Type:     msg.Type,
		TypeName: msg.TypeName(),
		Ack:      msg.Ack,
		Payload:  payload,
	}
}

// sendMessageRequest is the body of POST /messages. Command and type are
// required since zero is a meaningful value for both.
type sendMessageRequest struct {
	NodeID   uint8  `json:"node_id"`
	SensorID uint8  `json:"sensor_id"`
	Command  *uint8 `json:"command"`
	Type     *uint8 `json:"type"`
	Ack      bool   `json:"ack"`
	Payload  string `json:"payload"`
}

// message validates the request and builds the message it describes.
func (req sendMessageRequest) message() (protocol.Message, error) {
	if req.Command == nil || req.Type == nil {
		return protocol.Message{}, errors.New("command and type are required")
	}
	cmd := protocol.Command(*req.Command)
	if !cmd.Valid() {
		return protocol.Message{}, fmt.Errorf("unknown command %d", *req.Command)
	}
	if !protocol.ValidType(cmd, *req.Type) {
		return protocol.Message{}, fmt.Errorf("type %d is not valid for command %s", *req.Type, cmd)
	}

	msg := protocol.Message{
		NodeID:   req.NodeID,
		SensorID: req.SensorID,
		Command:  cmd,
		Type:     *req.Type,
		Ack:      req.Ack,
	}
	if cmd == protocol.CommandStream {
		raw, err := hex.DecodeString(req.Payload)
		if err != nil {
			return protocol.Message{}, errors.New("stream payload must be hex")
		}
		if len(raw) > protocol.MaxPayloadSize {
			return protocol.Message{}, fmt.Errorf("payload exceeds %d bytes", protocol.MaxPayloadSize)
		}
		msg.SetBytes(raw)
		return msg, nil
	}
	if len(req.Payload) > protocol.MaxPayloadSize {
		return protocol.Message{}, fmt.Errorf("payload exceeds %d bytes", protocol.MaxPayloadSize)
	}
	msg.SetString(req.Payload)
	return msg, nil
}

// handleSendMessage publishes a message to the controller as if a node of
// the sensor network had sent it. Useful to exercise controller setups
// without hardware.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeUnavailable(w, "message injection is not available")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	msg, err := req.message()
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.sender.Send(r.Context(), msg); err != nil {
		switch {
		case errors.Is(err, gateway.ErrNotConnected), errors.Is(err, gateway.ErrRunnerStopped):
			writeUnavailable(w, "gateway is not connected to the broker")
		default:
			s.logger.Warn("injected message not sent", "message", msg.Format(), "error", err)
			writeInternalError(w, "failed to send message")
		}
		return
	}

	s.logger.Info("injected message sent", "message", msg.Format(),
		"request_id", r.Context().Value(ctxKeyRequestID))
	s.recordAudit(r, audit.ActionMessageInject, &msg.NodeID, map[string]any{"message": msg.Format()})
	writeJSON(w, http.StatusOK, NewMessageView(msg))
}
