package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/response"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
	"github.com/stemsi/exstem-mocktest/internal/service"
	ws "github.com/stemsi/exstem-mocktest/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session and accepts its actions.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Pushes question, grid, clock and result events; accepts navigate, select,
// review, language, submit and ping actions.
func (h *WSHandler) SessionStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	live, err := h.sessionService.Get(id)
	if err != nil {
		failFromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().Str("session_id", id.String()).Logger()
	wsLog.Info().Msg("Stream connected")

	events, unsubscribe := live.Hub.Subscribe()
	replies := make(chan interface{}, 8)
	done := make(chan struct{})

	// The writer goroutine is the only one writing to conn.
	go func() {
		defer close(done)
		defer conn.Close()
		ping := time.NewTicker(ws.PingPeriod)
		defer ping.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					_ = ws.WriteClose(conn, "stream closed")
					return
				}
				if err := ws.WriteTyped(conn, ev); err != nil {
					return
				}
			case r := <-replies:
				if err := ws.WriteTyped(conn, r); err != nil {
					return
				}
			case <-ping.C:
				if err := ws.WritePing(conn); err != nil {
					return
				}
			}
		}
	}()

	reply := func(v interface{}) {
		select {
		case replies <- v:
		case <-done:
		}
	}

	for _, ev := range snapshotEvents(live.Session.View()) {
		reply(ev)
	}

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(live, &msg, reply, wsLog)
	}

	unsubscribe()
	<-done
}

// dispatch applies one action. State changes reach the client through the
// hub; only pongs and errors are direct replies.
func (h *WSHandler) dispatch(live *service.LiveSession, msg *ws.RequestPayload, reply func(interface{}), log zerolog.Logger) {
	h.sessionService.Touch(live)

	s := live.Session
	switch msg.Action {
	case ws.ActionNavigate:
		switch {
		case msg.Index != nil:
			s.Navigate(*msg.Index)
		case msg.Delta > 0:
			s.Next()
		case msg.Delta < 0:
			s.Prev()
		default:
			reply(ws.ErrorResponse{Event: ws.EventError, Error: "index or delta is required"})
		}
	case ws.ActionSelect:
		if msg.QuestionIndex == nil || msg.OptionIndex == nil {
			reply(ws.ErrorResponse{Event: ws.EventError, Error: "question_index and option_index are required"})
			return
		}
		s.SelectOption(*msg.QuestionIndex, *msg.OptionIndex)
	case ws.ActionReview:
		if msg.QuestionIndex == nil {
			reply(ws.ErrorResponse{Event: ws.EventError, Error: "question_index is required"})
			return
		}
		s.ToggleReview(*msg.QuestionIndex)
	case ws.ActionLanguage:
		lang, ok := richtext.ParseLanguage(msg.Language)
		if !ok {
			reply(ws.ErrorResponse{Event: ws.EventError, Error: "language must be one of en, hi"})
			return
		}
		s.SetLanguage(lang)
	case ws.ActionSubmit:
		s.Submit()
	case ws.ActionPing:
		reply(ws.PongResponse{Event: ws.EventPong})
	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		reply(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
	}
}

// snapshotEvents brings a new stream up to date with the session.
func snapshotEvents(v exam.View) []interface{} {
	events := []interface{}{
		ws.QuestionResponse{Event: ws.EventQuestion, Question: v.Current},
		ws.GridResponse{Event: ws.EventGrid, Grid: v.Grid},
		ws.ClockResponse{Event: ws.EventClock, RemainingSeconds: v.RemainingSeconds, Remaining: v.Remaining},
	}
	if v.Result != nil {
		events = append(events, ws.ResultResponse{Event: ws.EventResult, Result: *v.Result})
	}
	return events
}
