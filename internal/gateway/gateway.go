// Package gateway exposes the dictation pipeline to the UI over a single
// websocket. Inbound traffic is JSON commands as text messages plus Opus
// audio packets as binary messages; outbound traffic is JSON events.
//
// One connection drives at most one live session. Pipeline events
// (countdown, status, segment, errors, settled) are forwarded to whichever
// connection is currently attached; slow commands such as enrichment and
// archive search run off the read loop so audio keeps flowing.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/dictaflow/internal/archive"
	"github.com/MrWong99/dictaflow/internal/enrich"
	"github.com/MrWong99/dictaflow/internal/live"
	"github.com/MrWong99/dictaflow/internal/store"
	"github.com/MrWong99/dictaflow/pkg/provider/stt"
	"github.com/MrWong99/dictaflow/pkg/types"
)

const (
	// maxMessageBytes bounds a single websocket message. Opus packets are a
	// few hundred bytes; commands are small JSON objects.
	maxMessageBytes = 1 << 20

	// writeTimeout bounds one outbound event write so a stalled client
	// cannot wedge the pipeline's notifier callbacks.
	writeTimeout = 5 * time.Second

	// defaultSearchLimit applies when a search command omits limit.
	defaultSearchLimit = 10
)

// Handler is the websocket endpoint. It owns the pipeline [live.Controller]
// so that session events can be routed to the attached connection.
type Handler struct {
	controller *live.Controller
	relay      *relay
	projects   store.ProjectStore
	prompts    store.PromptStore
	enricher   *enrich.Service
	archive    *archive.Store
	logger     *slog.Logger

	originPatterns []string
	pipelineOpts   []live.ControllerOption
}

// Option configures a Handler.
type Option func(*Handler)

// WithProjects attaches the project store. It backs both session
// persistence and transcript lookups for enrich and archive commands.
func WithProjects(s store.ProjectStore) Option {
	return func(h *Handler) { h.projects = s }
}

// WithPrompts enables the prompt CRUD commands.
func WithPrompts(s store.PromptStore) Option {
	return func(h *Handler) { h.prompts = s }
}

// WithEnricher enables the enrich command.
func WithEnricher(e *enrich.Service) Option {
	return func(h *Handler) { h.enricher = e }
}

// WithArchive enables the archive and search commands.
func WithArchive(a *archive.Store) Option {
	return func(h *Handler) { h.archive = a }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithOriginPatterns allows cross-origin websocket upgrades from the given
// host patterns. Without it only same-origin upgrades are accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// WithPipelineOptions appends extra controller options (metrics, corrector,
// clock) to the pipeline built by NewHandler.
func WithPipelineOptions(opts ...live.ControllerOption) Option {
	return func(h *Handler) { h.pipelineOpts = append(h.pipelineOpts, opts...) }
}

// NewHandler builds the endpoint and its pipeline controller.
func NewHandler(cfg live.Config, transcriber stt.Transcriber, opts ...Option) *Handler {
	h := &Handler{
		relay:  &relay{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	controllerOpts := []live.ControllerOption{
		live.WithNotifier(h.relay),
		live.WithLogger(h.logger),
	}
	if h.projects != nil {
		controllerOpts = append(controllerOpts, live.WithStore(h.projects))
	}
	controllerOpts = append(controllerOpts, h.pipelineOpts...)
	h.controller = live.NewController(cfg, transcriber, controllerOpts...)
	return h
}

// Controller returns the pipeline controller, for shutdown wiring.
func (h *Handler) Controller() *live.Controller { return h.controller }

// UpdatePipeline replaces the pipeline tuning for sessions started after
// the call. Used by config hot reload.
func (h *Handler) UpdatePipeline(cfg live.Config) {
	h.controller.SetConfig(cfg)
}

// Register mounts the websocket endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws", h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &client{h: h, conn: conn, ctx: r.Context(), logger: h.logger}
	h.relay.attach(c)
	defer h.relay.detach(c)

	h.logger.Info("client connected", "remote", r.RemoteAddr)
	c.run()
	h.logger.Info("client disconnected", "remote", r.RemoteAddr)
}

// client is one websocket connection's state: the read loop, the write
// mutex, and the capture source for the session it started.
type client struct {
	h      *Handler
	conn   *websocket.Conn
	ctx    context.Context
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	source *captureSource
}

var _ live.Notifier = (*client)(nil)

// run reads messages until the connection drops. A session left running at
// disconnect is stopped so queued transcriptions settle and the manifest
// gets written.
func (c *client) run() {
	defer c.stopOrphanedSession()

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		switch typ {
		case websocket.MessageBinary:
			c.handleAudio(data)
		case websocket.MessageText:
			c.handleCommand(data)
		}
	}
}

func (c *client) handleAudio(packet []byte) {
	c.mu.Lock()
	src := c.source
	c.mu.Unlock()
	if src == nil {
		// Audio before start or after settle is not an error worth a round
		// trip per packet; drop it.
		return
	}
	if err := src.Push(c.ctx, packet); err != nil {
		c.logger.Warn("dropping audio packet", "error", err)
	}
}

func (c *client) handleCommand(data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("", "invalid command payload")
		return
	}

	switch cmd.Type {
	case cmdStart:
		c.handleStart(cmd)
	case cmdStop:
		c.handleStop()
	case cmdEdit:
		c.handleEdit(cmd)
	case cmdEnrich:
		c.async(cmd.Type, func(ctx context.Context) error { return c.handleEnrich(ctx, cmd) })
	case cmdPromptList:
		c.handlePromptList()
	case cmdPromptGet:
		c.handlePromptGet(cmd)
	case cmdPromptSave:
		c.handlePromptSave(cmd)
	case cmdPromptDelete:
		c.handlePromptDelete(cmd)
	case cmdArchive:
		c.async(cmd.Type, func(ctx context.Context) error { return c.handleArchive(ctx, cmd) })
	case cmdSearch:
		c.async(cmd.Type, func(ctx context.Context) error { return c.handleSearch(ctx, cmd) })
	default:
		c.sendError(cmd.Type, fmt.Sprintf("unknown command %q", cmd.Type))
	}
}

// async runs a slow command off the read loop so audio keeps flowing while
// it works. Errors surface as error events tagged with the command name.
func (c *client) async(of string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(c.ctx); err != nil {
			c.sendError(of, err.Error())
		}
	}()
}

func (c *client) handleStart(cmd command) {
	if strings.TrimSpace(cmd.Project) == "" {
		c.sendError(cmdStart, "start requires a project")
		return
	}

	src, err := newCaptureSource()
	if err != nil {
		c.sendError(cmdStart, err.Error())
		return
	}

	if _, err := c.h.controller.Start(c.ctx, cmd.Project, src); err != nil {
		_ = src.Close()
		c.sendError(cmdStart, err.Error())
		return
	}

	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
}

func (c *client) handleStop() {
	// Stop drains the queue; run it off the read loop and let the settled
	// event signal completion. The detached context keeps the final manifest
	// write alive if the client disconnects mid-drain.
	ctx := context.WithoutCancel(c.ctx)
	go func() {
		if err := c.h.controller.Stop(ctx); err != nil {
			c.sendError(cmdStop, err.Error())
		}
	}()
}

func (c *client) handleEdit(cmd command) {
	if cmd.SegmentID == nil {
		c.sendError(cmdEdit, "edit requires segment_id")
		return
	}
	session := c.h.controller.Session()
	if session == nil {
		c.sendError(cmdEdit, "no session")
		return
	}
	if err := session.EditSegment(c.ctx, *cmd.SegmentID, cmd.Text); err != nil {
		c.sendError(cmdEdit, err.Error())
		return
	}
	c.send(event{Type: "ack", Of: cmdEdit})
}

func (c *client) handleEnrich(ctx context.Context, cmd command) error {
	if c.h.enricher == nil {
		return errors.New("enrichment not configured")
	}
	if strings.TrimSpace(cmd.Prompt) == "" {
		return errors.New("enrich requires prompt")
	}

	text := cmd.Text
	if text == "" {
		var err error
		text, err = c.transcriptText(ctx, cmd.Project)
		if err != nil {
			return err
		}
	}

	result, err := c.h.enricher.Enrich(ctx, cmd.Prompt, text)
	if err != nil {
		return err
	}
	c.send(event{Type: "enrichment", Of: cmd.Prompt, Result: result})
	return nil
}

// transcriptText resolves the text an enrich or archive command operates on:
// the named project's stored transcript, or the current session's when no
// project is given.
func (c *client) transcriptText(ctx context.Context, projectID string) (string, error) {
	segs, err := c.transcriptSegments(ctx, projectID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, "\n"), nil
}

func (c *client) transcriptSegments(ctx context.Context, projectID string) ([]types.Segment, error) {
	if projectID == "" {
		session := c.h.controller.Session()
		if session == nil {
			return nil, errors.New("no session and no project given")
		}
		return session.Segments(), nil
	}
	if c.h.projects == nil {
		return nil, errors.New("project store not configured")
	}
	segs, err := c.h.projects.LoadSegments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %q: %w", projectID, err)
	}
	return segs, nil
}

func (c *client) handlePromptList() {
	if c.h.prompts == nil {
		c.sendError(cmdPromptList, "prompt store not configured")
		return
	}
	prompts, err := c.h.prompts.ListPrompts(c.ctx)
	if err != nil {
		c.sendError(cmdPromptList, err.Error())
		return
	}
	payload := make([]promptPayload, 0, len(prompts))
	for _, p := range prompts {
		payload = append(payload, toPromptPayload(p))
	}
	c.send(event{Type: "prompts", Prompts: payload})
}

func (c *client) handlePromptGet(cmd command) {
	if c.h.prompts == nil {
		c.sendError(cmdPromptGet, "prompt store not configured")
		return
	}
	p, err := c.h.prompts.GetPrompt(c.ctx, cmd.Prompt)
	if err != nil {
		c.sendError(cmdPromptGet, err.Error())
		return
	}
	c.send(event{Type: "prompts", Prompts: []promptPayload{toPromptPayload(p)}})
}

func (c *client) handlePromptSave(cmd command) {
	if c.h.prompts == nil {
		c.sendError(cmdPromptSave, "prompt store not configured")
		return
	}
	if strings.TrimSpace(cmd.Prompt) == "" {
		c.sendError(cmdPromptSave, "prompt_save requires a name")
		return
	}
	p := types.Prompt{Name: cmd.Prompt, Text: cmd.Text, UpdatedAt: time.Now().UTC()}
	if err := c.h.prompts.SavePrompt(c.ctx, p); err != nil {
		c.sendError(cmdPromptSave, err.Error())
		return
	}
	c.send(event{Type: "ack", Of: cmdPromptSave})
}

func (c *client) handlePromptDelete(cmd command) {
	if c.h.prompts == nil {
		c.sendError(cmdPromptDelete, "prompt store not configured")
		return
	}
	if err := c.h.prompts.DeletePrompt(c.ctx, cmd.Prompt); err != nil {
		c.sendError(cmdPromptDelete, err.Error())
		return
	}
	c.send(event{Type: "ack", Of: cmdPromptDelete})
}

func (c *client) handleArchive(ctx context.Context, cmd command) error {
	if c.h.archive == nil {
		return errors.New("archive not configured")
	}
	projectID := cmd.Project
	if projectID == "" {
		session := c.h.controller.Session()
		if session == nil {
			return errors.New("archive requires a project or an active session")
		}
		projectID = session.ProjectID()
	}

	segs, err := c.transcriptSegments(ctx, cmd.Project)
	if err != nil {
		return err
	}
	if err := c.h.archive.IndexProject(ctx, projectID, segs); err != nil {
		return err
	}
	c.send(event{Type: "ack", Of: cmdArchive})
	return nil
}

func (c *client) handleSearch(ctx context.Context, cmd command) error {
	if c.h.archive == nil {
		return errors.New("archive not configured")
	}
	if strings.TrimSpace(cmd.Query) == "" {
		return errors.New("search requires a query")
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	filter := archive.Filter{ProjectID: cmd.Project}

	var hits []searchHit
	switch cmd.Mode {
	case "", "semantic":
		results, err := c.h.archive.SemanticSearch(ctx, cmd.Query, limit, filter)
		if err != nil {
			return err
		}
		hits = make([]searchHit, 0, len(results))
		for _, res := range results {
			d := res.Distance
			hits = append(hits, toSearchHit(res.Entry, &d))
		}
	case "text":
		entries, err := c.h.archive.TextSearch(ctx, cmd.Query, limit, filter)
		if err != nil {
			return err
		}
		hits = make([]searchHit, 0, len(entries))
		for _, entry := range entries {
			hits = append(hits, toSearchHit(entry, nil))
		}
	default:
		return fmt.Errorf("unknown search mode %q", cmd.Mode)
	}

	c.send(event{Type: "search_results", Hits: hits})
	return nil
}

// stopOrphanedSession stops a still-running session after the connection
// dropped, so queued work settles and nothing is lost.
func (c *client) stopOrphanedSession() {
	c.mu.Lock()
	src := c.source
	c.mu.Unlock()
	if src == nil {
		return
	}

	session := c.h.controller.Session()
	if session == nil || !session.Active() {
		return
	}
	c.logger.Warn("client disconnected with active session, stopping", "project", session.ProjectID())
	if err := c.h.controller.Stop(context.Background()); err != nil && !errors.Is(err, live.ErrSessionNotActive) {
		c.logger.Error("stopping orphaned session", "error", err)
	}
}

// ── outbound ──────────────────────────────────────────────────────────────────

// send marshals and writes one event. Writes are serialized: pipeline
// goroutines and command goroutines all emit through here.
func (c *client) send(evt event) {
	data, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error("marshaling event", "type", evt.Type, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.logger.Debug("writing event", "type", evt.Type, "error", err)
	}
}

func (c *client) sendError(of, message string) {
	c.send(event{Type: "error", Of: of, Message: message})
}

// Countdown implements [live.Notifier].
func (c *client) Countdown(remaining time.Duration, running bool) {
	c.send(event{Type: "countdown", RemainingMS: remaining.Milliseconds(), Running: running})
}

// Status implements [live.Notifier].
func (c *client) Status(status string) {
	c.send(event{Type: "status", Status: status})
}

// Segment implements [live.Notifier].
func (c *client) Segment(seg types.Segment) {
	payload := toSegmentPayload(seg)
	c.send(event{Type: "segment", Segment: &payload})
}

// SessionError implements [live.Notifier].
func (c *client) SessionError(err error) {
	c.sendError("", err.Error())
}

// Draining implements [live.Notifier].
func (c *client) Draining(depth int) {
	c.send(event{Type: "draining", QueueDepth: depth})
}

// Settled implements [live.Notifier].
func (c *client) Settled() {
	c.send(event{Type: "settled"})
}

// relay forwards pipeline events to the currently attached connection. The
// pipeline outlives any one websocket: a session keeps draining after a
// disconnect, and its tail events go to whoever is connected then, or
// nowhere.
type relay struct {
	mu     sync.Mutex
	target live.Notifier
}

var _ live.Notifier = (*relay)(nil)

func (r *relay) attach(n live.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = n
}

func (r *relay) detach(n live.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target == n {
		r.target = nil
	}
}

func (r *relay) current() live.Notifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target == nil {
		return live.NopNotifier{}
	}
	return r.target
}

func (r *relay) Countdown(remaining time.Duration, running bool) {
	r.current().Countdown(remaining, running)
}
func (r *relay) Status(status string)      { r.current().Status(status) }
func (r *relay) Segment(seg types.Segment) { r.current().Segment(seg) }
func (r *relay) SessionError(err error)    { r.current().SessionError(err) }
func (r *relay) Draining(depth int)        { r.current().Draining(depth) }
func (r *relay) Settled()                  { r.current().Settled() }
