package chatclient

import "github.com/bazarya/chat-core/pkg/model"

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

type sendData struct {
	ConversationID int64  `json:"conversationId"`
	Text           string `json:"text"`
}

type clientFrame struct {
	Type           string    `json:"type"`
	AckID          string    `json:"ackId,omitempty"`
	ConversationID int64     `json:"conversationId,omitempty"`
	Data           *sendData `json:"data,omitempty"`
}

type serverFrame struct {
	Type    string         `json:"type"`
	AckID   string         `json:"ackId,omitempty"`
	Status  string         `json:"status,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	UserIDs []string       `json:"userIds,omitempty"`
}
