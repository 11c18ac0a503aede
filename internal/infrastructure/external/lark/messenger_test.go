package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMessageCreator struct {
	createFunc func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)
	lastReq    *larkim.CreateMessageReq
}

func (m *mockMessageCreator) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	m.lastReq = req
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	id := "om_123"
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}, nil
}

func newTestMessenger(creator messageCreator) *Messenger {
	return &Messenger{
		messageAPI: &MessageAPI{messages: creator, logger: zap.NewNop()},
		chatID:     "oc_chat",
		logger:     zap.NewNop(),
	}
}

type sentMessage struct {
	receiveIDType string
	receiveID     string
	msgType       string
	content       string
}

type recordingSender struct {
	sent []sentMessage
}

func (r *recordingSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	r.sent = append(r.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_123", nil
}

func TestMessenger_SendText(t *testing.T) {
	sender := &recordingSender{}
	m := &Messenger{messageAPI: sender, chatID: "oc_chat", logger: zap.NewNop()}

	require.NoError(t, m.SendText(context.Background(), "Line \"one\"\nline two"))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "chat_id", msg.receiveIDType)
	assert.Equal(t, "oc_chat", msg.receiveID)
	assert.Equal(t, "text", msg.msgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg.content), &content))
	assert.Equal(t, "Line \"one\"\nline two", content["text"])
}

func TestMessageAPI_SendMessage(t *testing.T) {
	creator := &mockMessageCreator{}
	api := &MessageAPI{messages: creator, logger: zap.NewNop()}

	id, err := api.SendMessage(context.Background(), "chat_id", "oc_chat", "text", `{"text":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, "om_123", id)
	assert.NotNil(t, creator.lastReq)
}

func TestMessenger_SendText_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		create  func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)
	}{
		{
			name:    "empty content",
			content: "",
		},
		{
			name:    "transport error",
			content: "hi",
			create: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
				return nil, errors.New("dial tcp: timeout")
			},
		},
		{
			name:    "api failure",
			content: "hi",
			create: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
				return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMessenger(&mockMessageCreator{createFunc: tt.create})
			assert.Error(t, m.SendText(context.Background(), tt.content))
		})
	}
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{AppID: "a", AppSecret: "s"}.Enabled())
	assert.True(t, Config{AppID: "a", AppSecret: "s", ChatID: "c"}.Enabled())

	_, err := NewMessenger(Config{AppID: "a"}, zap.NewNop())
	assert.Error(t, err)
}
