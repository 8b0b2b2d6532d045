package connectors

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
)

// Recorder — in-memory Slack для тестов и локального прогона: запоминает все вызовы.
// Fail* позволяют имитировать отказ конкретного метода для конкретного канала.
type Recorder struct {
	mu      sync.Mutex
	Views   []slack.ModalViewRequest
	Posts   []Message
	Updates []Update

	FailOpenView bool
	FailPostTo   map[string]error // channel -> ошибка
	FailUpdate   error

	seq int
}

func NewRecorder() *Recorder {
	return &Recorder{FailPostTo: make(map[string]error)}
}

func (r *Recorder) OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOpenView {
		return fmt.Errorf("slack %s failed: expired_trigger_id", MethodOpenView)
	}
	r.Views = append(r.Views, view)
	return nil
}

func (r *Recorder) PostMessage(ctx context.Context, msg Message) (Posted, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.FailPostTo[msg.Channel]; ok {
		return Posted{}, err
	}
	r.Posts = append(r.Posts, msg)
	r.seq++
	return Posted{Channel: "D" + msg.Channel, Timestamp: fmt.Sprintf("1700000000.%06d", r.seq)}, nil
}

func (r *Recorder) UpdateMessage(ctx context.Context, upd Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	r.Updates = append(r.Updates, upd)
	return nil
}

// PostsTo возвращает сообщения, отправленные в канал/пользователю.
func (r *Recorder) PostsTo(channel string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.Posts {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) UpdateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Updates)
}
