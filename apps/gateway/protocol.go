package main

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/bazarya/chat-core/pkg/model"
)

// Frame types spoken over the websocket. Client to server:
//
//	{"type":"joinConversation","conversationId":10}
//	{"type":"sendMessage","ackId":"<uuid>","data":{"conversationId":10,"text":"hi"}}
//
// Server to client:
//
//	{"type":"ack","ackId":"<uuid>","status":"ok","message":{...}}
//	{"type":"ack","ackId":"<uuid>","status":"error","error":"Unauthorized"}
//	{"type":"receiveMessage","message":{...}}
//	{"type":"getOnlineUsers","userIds":["1","2"]}
const (
	frameJoinConversation = "joinConversation"
	frameSendMessage      = "sendMessage"
	frameAck              = "ack"
	frameReceiveMessage   = "receiveMessage"
	frameGetOnlineUsers   = "getOnlineUsers"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

type inboundFrame struct {
	Type           string    `json:"type"`
	AckID          string    `json:"ackId,omitempty"`
	ConversationID int64     `json:"conversationId,omitempty"`
	Data           *sendData `json:"data,omitempty"`
}

type sendData struct {
	ConversationID int64  `json:"conversationId"`
	Text           string `json:"text"`
}

type outboundFrame struct {
	Type    string         `json:"type"`
	AckID   string         `json:"ackId,omitempty"`
	Status  string         `json:"status,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	UserIDs []string       `json:"userIds,omitempty"`
}

func ackOK(ackID string, msg model.Message) outboundFrame {
	return outboundFrame{Type: frameAck, AckID: ackID, Status: statusOK, Message: &msg}
}

func ackError(ackID string, reason string) outboundFrame {
	return outboundFrame{Type: frameAck, AckID: ackID, Status: statusError, Error: reason}
}

func receiveMessageFrame(msg model.Message) outboundFrame {
	return outboundFrame{Type: frameReceiveMessage, Message: &msg}
}

func onlineUsersFrame(userIDs []string) outboundFrame {
	return outboundFrame{Type: frameGetOnlineUsers, UserIDs: userIDs}
}

func encodeFrame(log zerolog.Logger, frame outboundFrame) []byte {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("frame", frame.Type).Msg("failed to marshal frame")
		return nil
	}
	return payload
}
