// Chung Sức show hub
//
// The control page drives the game; the board and leaderboard pages only
// watch. Every page holds one websocket:
// - /control/ws accepts commands and receives state
// - /board/ws and /leaderboard/ws receive state only
//
// State reaches pages as whole snapshots together with the sudden-death
// phase and the server clock, so each page derives the countdown itself.
// Win celebrations are pushed as separate start and end messages.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/chungsuc/clock"
	"github.com/Seednode/chungsuc/games/feud"
	"github.com/Seednode/chungsuc/storage"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

const (
	pageControl     = "control"
	pageBoard       = "board"
	pageLeaderboard = "leaderboard"

	maxMessageSize = 64 << 10
	sendBuffer     = 16
)

// CommandMessage is sent by the control page. Type names the operation;
// the other fields are its arguments.
type CommandMessage struct {
	Type        string              `json:"type"`
	QuestionID  string              `json:"questionId,omitempty"`
	AnswerID    string              `json:"answerId,omitempty"`
	TeamID      string              `json:"teamId,omitempty"`
	Seconds     int                 `json:"seconds,omitempty"`
	Team        *feud.TeamPatch     `json:"team,omitempty"`
	Question    *feud.QuestionPatch `json:"question,omitempty"`
	NewQuestion *feud.Question      `json:"newQuestion,omitempty"`
	Settings    *feud.SettingsPatch `json:"settings,omitempty"`
	Program     *feud.ProgramPatch  `json:"program,omitempty"`
}

// StateMessage carries the whole game to every page.
type StateMessage struct {
	Type       string           `json:"type"` // "state"
	State      *feud.GameState  `json:"state"`
	Phase      feud.PhaseChange `json:"phase"`
	ServerTime int64            `json:"serverTime"`
}

type CelebrationMessage struct {
	Type        string           `json:"type"` // "celebration_start" or "celebration_end"
	Celebration feud.Celebration `json:"celebration"`
}

// SessionInfoMessage is sent first on connect so the page knows whether
// its controls will be honored.
type SessionInfoMessage struct {
	Type       string `json:"type"` // "session_info"
	Page       string `json:"page"`
	CanControl bool   `json:"canControl"`
}

// SimpleMessage is for notices sent to one page ("forbidden", "error")
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
	page string
}

type command struct {
	client *Client
	msg    CommandMessage
	err    error
}

type Hub struct {
	cfg          *Config
	store        *feud.Store
	kv           storage.KV
	director     *feud.SuddenDeath
	celebrations *feud.Celebrations
	metrics      *Metrics
	clock        clock.Clock
	log          logrus.FieldLogger

	// Owned by run
	clients map[*Client]bool
	latest  StateMessage
	active  map[string]feud.Celebration

	register chan *Client
	unreg    chan *Client
	commands chan command
	wake     chan struct{}
	done     chan struct{}

	// Store listeners and timers queue messages here for run to broadcast
	mu     sync.Mutex
	outbox []any

	unsubscribe func()
}

func newHub(cfg *Config, store *feud.Store, kv storage.KV, m *Metrics, clk clock.Clock) *Hub {
	h := &Hub{
		cfg:      cfg,
		store:    store,
		kv:       kv,
		director: feud.NewSuddenDeath(store),
		metrics:  m,
		clock:    clk,
		log:      cfg.logger().WithField("component", "hub"),
		clients:  make(map[*Client]bool),
		active:   make(map[string]feud.Celebration),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		commands: make(chan command),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	h.celebrations = feud.NewCelebrations(feud.CelebrationConfig{
		Threshold: cfg.celebrationThreshold,
		Duration:  cfg.celebrationDuration,
		Clock:     clk,
		OnStart: func(c feud.Celebration) {
			m.Celebrations.Inc()
			logf(cfg, "GAMES: %s reached %d points", c.TeamName, c.Score)
			h.post(CelebrationMessage{Type: "celebration_start", Celebration: c})
		},
		OnEnd: func(c feud.Celebration) {
			h.post(CelebrationMessage{Type: "celebration_end", Celebration: c})
		},
	})

	h.unsubscribe = store.Subscribe(h.observe)

	initial := store.Snapshot()
	h.celebrations.Observe(initial.Teams)
	h.latest = h.stateMessage(initial, h.director.Observe(initial))

	return h
}

func (h *Hub) stateMessage(st *feud.GameState, phase feud.PhaseChange) StateMessage {
	return StateMessage{
		Type:       "state",
		State:      st,
		Phase:      phase,
		ServerTime: h.clock.Now().UnixMilli(),
	}
}

// observe runs inside store notifications, so it must only queue work.
func (h *Hub) observe(st *feud.GameState) {
	phase := h.director.Observe(st)
	h.post(h.stateMessage(st, phase))
	h.celebrations.Observe(st.Teams)
}

func (h *Hub) post(msg any) {
	h.mu.Lock()
	h.outbox = append(h.outbox, msg)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()

			return

		case c := <-h.register:
			// Anything queued predates this client's snapshot
			h.flush()

			h.clients[c] = true
			h.metrics.Clients.WithLabelValues(c.page).Inc()

			c.send <- SessionInfoMessage{
				Type:       "session_info",
				Page:       c.page,
				CanControl: c.page == pageControl,
			}
			c.send <- h.latest
			for _, cel := range h.active {
				c.send <- CelebrationMessage{Type: "celebration_start", Celebration: cel}
			}

		case c := <-h.unreg:
			h.drop(c)

		case cmd := <-h.commands:
			h.handleCommand(ctx, cmd)

		case <-h.wake:
			h.flush()
		}
	}
}

func (h *Hub) flush() {
	h.mu.Lock()
	pending := h.outbox
	h.outbox = nil
	h.mu.Unlock()

	for _, msg := range pending {
		switch m := msg.(type) {
		case StateMessage:
			h.latest = m
		case CelebrationMessage:
			if m.Type == "celebration_start" {
				h.active[m.Celebration.TeamID] = m.Celebration
			} else {
				delete(h.active, m.Celebration.TeamID)
			}
		}

		h.broadcast(msg)
	}
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.drop(client)
		}
	}
}

// reply sends msg to one client if it is still connected.
func (h *Hub) reply(c *Client, msg any) {
	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
	h.metrics.Clients.WithLabelValues(c.page).Dec()
}

// shutdown disconnects every page and stops the show's timers.
func (h *Hub) shutdown() {
	h.unsubscribe()
	h.director.Close()
	h.celebrations.Close()

	for c := range h.clients {
		h.drop(c)
		_ = c.conn.Close()
	}
}

func (h *Hub) handleCommand(ctx context.Context, cmd command) {
	c := cmd.client

	// Only the control page may change the game
	if c.page != pageControl {
		h.metrics.RejectedCommands.WithLabelValues("forbidden").Inc()
		h.reply(c, SimpleMessage{
			Type:    "forbidden",
			Message: "Only the control panel can change the game.",
		})

		return
	}

	err := cmd.err
	if err == nil {
		err = applyCommand(ctx, h.store, cmd.msg)
	}
	if err != nil {
		h.metrics.RejectedCommands.WithLabelValues("invalid").Inc()
		h.reply(c, SimpleMessage{
			Type:    "error",
			Message: err.Error(),
		})

		return
	}

	logf(h.cfg, "GAMES: Applied %s", cmd.msg.Type)
}

var errMissingArgument = errors.New("missing command argument")

// applyCommand maps a control page command onto a store operation.
// Operations that do not apply to the current state are silently ignored
// by the store, just as they are when called directly.
func applyCommand(ctx context.Context, store *feud.Store, msg CommandMessage) error {
	switch msg.Type {
	case "reveal_answer":
		store.RevealAnswer(ctx, msg.QuestionID, msg.AnswerID)
	case "add_strike":
		store.AddStrike(ctx)
	case "clear_strikes":
		store.ClearStrikes(ctx)
	case "award_points":
		store.AwardPoints(ctx, msg.TeamID)
	case "next_question":
		store.NextQuestion(ctx)
	case "prev_question":
		store.PrevQuestion(ctx)
	case "update_team":
		if msg.Team == nil {
			return fmt.Errorf("%w: team", errMissingArgument)
		}
		store.UpdateTeam(ctx, msg.TeamID, *msg.Team)
	case "update_question":
		if msg.Question == nil {
			return fmt.Errorf("%w: question", errMissingArgument)
		}
		store.UpdateQuestion(ctx, msg.QuestionID, *msg.Question)
	case "add_question":
		q := feud.NewQuestion()
		if msg.NewQuestion != nil {
			q = *msg.NewQuestion
		}
		store.AddQuestion(ctx, q)
	case "delete_question":
		store.DeleteQuestion(ctx, msg.QuestionID)
	case "reset_game":
		store.ResetGame(ctx)
	case "update_settings":
		if msg.Settings == nil {
			return fmt.Errorf("%w: settings", errMissingArgument)
		}
		store.UpdateSettings(ctx, *msg.Settings)
	case "update_program":
		if msg.Program == nil {
			return fmt.Errorf("%w: program", errMissingArgument)
		}
		store.UpdateProgram(ctx, *msg.Program)
	case "set_control":
		store.SetControl(ctx, msg.TeamID)
	case "start_steal":
		store.StartSteal(ctx, msg.TeamID)
	case "end_steal":
		store.EndSteal(ctx)
	case "start_timer":
		store.StartTimer(ctx, msg.Seconds)
	case "stop_timer":
		store.StopTimer(ctx)
	default:
		return fmt.Errorf("unknown command %q", msg.Type)
	}

	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func serveWS(cfg *Config, h *Hub, page string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade for %s from %s: %v", page, realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, sendBuffer),
			page: page,
		}

		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "SERVE: %s page connected from %s", page, realIP(r))

		go client.writePump()
		client.readPump(h)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		cmd := command{client: c}
		if err := json.Unmarshal(data, &cmd.msg); err != nil {
			cmd.err = fmt.Errorf("malformed command: %w", err)
		}

		select {
		case h.commands <- cmd:
		case <-h.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func serveState(cfg *Config, h *Hub, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		msg := h.stateMessage(h.store.Snapshot(), h.director.Phase())

		writeJSON(cfg, w, http.StatusOK, msg, errs)
	}
}

func servePreferences(cfg *Config, h *Hub, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		prefs, err := feud.LoadPreferences(r.Context(), h.kv, cfg.prefsKey)
		if err != nil {
			h.log.WithError(err).Warn("unable to load preferences, using defaults")
		}

		writeJSON(cfg, w, http.StatusOK, prefs, errs)
	}
}

func savePreferences(cfg *Config, h *Hub, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var prefs feud.Preferences

		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&prefs); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, SimpleMessage{Type: "error", Message: "malformed preferences"}, errs)

			return
		}

		err := feud.SavePreferences(r.Context(), h.kv, cfg.prefsKey, prefs)
		switch {
		case errors.Is(err, feud.ErrInvalidPrefs):
			writeJSON(cfg, w, http.StatusBadRequest, SimpleMessage{Type: "error", Message: err.Error()}, errs)
		case err != nil:
			h.log.WithError(err).Warn("unable to save preferences")
			writeJSON(cfg, w, http.StatusInternalServerError, SimpleMessage{Type: "error", Message: "preferences could not be saved"}, errs)
		default:
			logf(cfg, "SERVE: Saved preferences from %s", realIP(r))
			writeJSON(cfg, w, http.StatusOK, prefs, errs)
		}
	}
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) {
	data, err := json.Marshal(v)
	if err != nil {
		errs <- err

		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		errs <- err
	}
}

// registerShow sets up routes so that:
//   - /control, /board, /leaderboard       → HTML pages
//   - /control/ws, /board/ws, ...          → WebSocket per page
//   - /api/state                           → current snapshot
//   - /api/preferences                     → control panel preferences
//   - /qr/:page                            → PNG QR code for a page URL
func registerShow(cfg *Config, h *Hub, mux *httprouter.Router, errs chan<- error) {
	for _, page := range []string{pageControl, pageBoard, pageLeaderboard} {
		mux.GET(cfg.prefix+"/"+page, serveShowPage(cfg, page, errs))
		mux.GET(cfg.prefix+"/"+page+"/ws", serveWS(cfg, h, page))
	}

	mux.GET(cfg.prefix+"/show/*file", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/api/state", serveState(cfg, h, errs))
	mux.GET(cfg.prefix+"/api/preferences", servePreferences(cfg, h, errs))
	mux.PUT(cfg.prefix+"/api/preferences", savePreferences(cfg, h, errs))

	mux.GET(cfg.prefix+"/qr/:page", serveQR(cfg, errs))
}
