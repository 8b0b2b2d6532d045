package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Handlers — то, что диспетчер вызывает после Ack.
type Handlers interface {
	HandleCommand(ctx context.Context, cmd slack.SlashCommand)
	HandleSubmission(ctx context.Context, ev SubmissionEvent)
	HandleDecision(ctx context.Context, ev DecisionEvent)
}

type DispatcherConfig struct {
	SigningSecret  string
	Command        string
	HandlerTimeout time.Duration
	MetricsPath    string
	Metrics        http.Handler // nil — /metrics не публикуется
}

// Dispatcher принимает HTTP-запросы Slack, отвечает 200 в пределах 3 секунд
// и запускает обработчик в отдельной горутине.
type Dispatcher struct {
	h      Handlers
	cfg    DispatcherConfig
	logger *zap.Logger

	wg sync.WaitGroup
}

func NewDispatcher(h Handlers, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Dispatcher{h: h, cfg: cfg, logger: logger.Named("dispatcher")}
}

func (d *Dispatcher) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if d.cfg.Metrics != nil {
		r.Method(http.MethodGet, d.cfg.MetricsPath, d.cfg.Metrics)
	}

	r.Route("/slack", func(r chi.Router) {
		r.Use(SlackVerifier(d.cfg.SigningSecret, d.logger))
		r.Post("/events", d.handleEvents)
		r.Post("/commands", d.handleCommand)
		r.Post("/interactions", d.handleInteraction)
	})
	return r
}

// Wait дожидается завершения запущенных обработчиков (graceful shutdown).
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// handleEvents — единая точка входа: команда или interaction по содержимому формы.
func (d *Dispatcher) handleEvents(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("payload") != "" {
		d.handleInteraction(w, r)
		return
	}
	d.handleCommand(w, r)
}

func (d *Dispatcher) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "bad command", http.StatusBadRequest)
		return
	}
	if cmd.Command != d.cfg.Command {
		d.logger.Warn("unknown slash command", zap.String("command", cmd.Command))
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	d.spawn(r.Context(), "command", func(ctx context.Context) {
		d.h.HandleCommand(ctx, cmd)
	})
}

func (d *Dispatcher) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &cb); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	switch cb.Type {
	case slack.InteractionTypeViewSubmission:
		if cb.View.CallbackID != ModalCallbackID {
			break
		}
		ev := SubmissionEvent{RequesterID: cb.User.ID}
		if cb.View.State != nil {
			ev.Values = cb.View.State.Values
		}
		w.WriteHeader(http.StatusOK)
		d.spawn(r.Context(), "submission", func(ctx context.Context) {
			d.h.HandleSubmission(ctx, ev)
		})
		return

	case slack.InteractionTypeBlockActions:
		action := decisionAction(cb.ActionCallback.BlockActions)
		if action == nil {
			break
		}
		channelID := cb.Channel.ID
		if channelID == "" {
			channelID = cb.Container.ChannelID
		}
		ev := DecisionEvent{
			ActionID:  action.ActionID,
			UserID:    cb.User.ID,
			ChannelID: channelID,
			Message:   cb.Message,
		}
		w.WriteHeader(http.StatusOK)
		d.spawn(r.Context(), "decision", func(ctx context.Context) {
			d.h.HandleDecision(ctx, ev)
		})
		return
	}

	d.logger.Debug("ignored interaction", zap.String("type", string(cb.Type)))
	w.WriteHeader(http.StatusOK)
}

func decisionAction(actions []*slack.BlockAction) *slack.BlockAction {
	for _, a := range actions {
		if a != nil && decisionActionPattern.MatchString(a.ActionID) {
			return a
		}
	}
	return nil
}

// spawn отвязывает обработчик от HTTP-запроса: Slack уже получил Ack,
// а контекст запроса отменится сразу после возврата из ServeHTTP.
func (d *Dispatcher) spawn(reqCtx context.Context, kind string, fn func(ctx context.Context)) {
	traceID := extractTraceID(reqCtx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("handler panicked",
					zap.String("kind", kind), zap.String("trace_id", traceID), zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(withTraceID(context.Background(), traceID), d.cfg.HandlerTimeout)
		defer cancel()
		fn(ctx)
	}()
}
