package connectors

import (
	"context"

	"github.com/slack-go/slack"
)

const (
	MethodOpenView      = "views.open"
	MethodPostMessage   = "chat.postMessage"
	MethodUpdateMessage = "chat.update"
)

// SlackAPI — подмножество *slack.Client, которым пользуется бот.
type SlackAPI interface {
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// Message — новое сообщение. Channel может быть ID пользователя: Slack откроет DM.
type Message struct {
	Channel string
	Text    string // fallback для уведомлений
	Blocks  []slack.Block
}

// Update — замена существующего сообщения целиком.
type Update struct {
	Channel   string
	Timestamp string
	Text      string
	Blocks    []slack.Block
}

// Posted — координаты отправленного сообщения.
type Posted struct {
	Channel   string
	Timestamp string
}

type SlackConnector struct {
	api SlackAPI
}

// NewSlackConnector создает экземпляр адаптера
func NewSlackConnector(api SlackAPI) *SlackConnector {
	return &SlackConnector{api: api}
}

func (c *SlackConnector) OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	_, err := c.api.OpenViewContext(ctx, triggerID, view)
	return classify(MethodOpenView, err)
}

func (c *SlackConnector) PostMessage(ctx context.Context, msg Message) (Posted, error) {
	channel, ts, err := c.api.PostMessageContext(ctx, msg.Channel, msgOptions(msg.Text, msg.Blocks)...)
	if err != nil {
		return Posted{}, classify(MethodPostMessage, err)
	}
	return Posted{Channel: channel, Timestamp: ts}, nil
}

func (c *SlackConnector) UpdateMessage(ctx context.Context, upd Update) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, upd.Channel, upd.Timestamp, msgOptions(upd.Text, upd.Blocks)...)
	return classify(MethodUpdateMessage, err)
}

func msgOptions(text string, blocks []slack.Block) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	return opts
}
