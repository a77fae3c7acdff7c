package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	receiveIDType string
	receiveID     string
	msgType       string
	content       string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_1", nil
}

func TestMessenger_SendMessage(t *testing.T) {
	sender := &fakeSender{}
	m := NewMessenger(sender, zap.NewNop())

	text := "見積 #1 が却下されました。\n理由: \"金額\" \\ 超過"
	require.NoError(t, m.SendMessage(context.Background(), "ou_1", text))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "open_id", msg.receiveIDType)
	assert.Equal(t, "ou_1", msg.receiveID)
	assert.Equal(t, "text", msg.msgType)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg.content), &body))
	assert.Equal(t, text, body["text"])
}

func TestMessenger_SendCardMessage(t *testing.T) {
	sender := &fakeSender{}
	m := NewMessenger(sender, zap.NewNop())

	card := map[string]interface{}{"header": map[string]interface{}{"template": "blue"}}
	require.NoError(t, m.SendCardMessage(context.Background(), "ou_2", card))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "interactive", sender.sent[0].msgType)
	assert.JSONEq(t, `{"header":{"template":"blue"}}`, sender.sent[0].content)
}

func TestMessenger_InvalidInput(t *testing.T) {
	m := NewMessenger(&fakeSender{}, zap.NewNop())
	ctx := context.Background()

	assert.Error(t, m.SendMessage(ctx, "", "hello"))
	assert.Error(t, m.SendMessage(ctx, "ou_1", ""))
	assert.Error(t, m.SendCardMessage(ctx, "", map[string]string{}))
	assert.Error(t, m.SendCardMessage(ctx, "ou_1", nil))
	assert.Error(t, m.SendCardMessage(ctx, "ou_1", make(chan int)))
}

func TestMessenger_SenderFailure(t *testing.T) {
	m := NewMessenger(&fakeSender{err: errors.New("code=99991663")}, zap.NewNop())

	err := m.SendMessage(context.Background(), "ou_1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code=99991663")
}
