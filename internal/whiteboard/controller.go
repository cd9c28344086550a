package whiteboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/input"
	"github.com/okultahta/tahta-server/internal/proto"
	"github.com/okultahta/tahta-server/internal/realtime"
	"github.com/okultahta/tahta-server/internal/stroke"
)

const (
	// DefaultNoticeDuration is how long the multi-user notice stays up.
	DefaultNoticeDuration = 5 * time.Second
	// DefaultChangeSettle delays change notifications so broadcasts sent
	// alongside the same write land first.
	DefaultChangeSettle = 300 * time.Millisecond

	writeTimeout = 10 * time.Second
)

// ErrStopped is returned when the controller loop is no longer running.
var ErrStopped = errors.New("whiteboard: controller stopped")

// Painter draws the stroke list. *render.Renderer implements it.
type Painter interface {
	Render(strokes []stroke.Stroke, live *stroke.Stroke) error
	Resize(width, height int, strokes []stroke.Stroke, live *stroke.Stroke) error
}

// Config wires a Controller. Store and Channel are required.
type Config struct {
	UserID         string
	Username       string
	Store          SessionStore
	Channel        realtime.Channel
	Renderer       Painter
	Logger         *zerolog.Logger
	NoticeDuration time.Duration
	ChangeSettle   time.Duration
	// OnChange is called on the controller goroutine after every render.
	OnChange func(State)
}

// State is a copy of the controller's view.
type State struct {
	SessionID    string
	Strokes      []stroke.Stroke
	Live         *stroke.Stroke
	Drawing      bool
	MultiUser    bool
	Participants int
	Tool         stroke.ToolConfig
}

// Controller is the only writer of a session's local stroke list. All state
// lives on the Run goroutine; exported methods post work to it.
type Controller struct {
	cfg    Config
	log    zerolog.Logger
	notice time.Duration
	settle time.Duration

	inputs   chan func()
	quit     chan struct{}
	quitOnce sync.Once
	outbox   chan job

	// owned by the Run goroutine
	sessionID    string
	strokes      []stroke.Stroke
	capture      input.Capture
	tool         stroke.ToolConfig
	growing      int
	multiUser    bool
	participants int
	noticeGen    uint64
	noticeTimer  *time.Timer
	changeGen    uint64
	changeTimer  *time.Timer
	sub          realtime.Subscription
}

type job func(ctx context.Context)

// New builds a controller. Call Run to start it.
func New(cfg Config) *Controller {
	c := &Controller{
		cfg:     cfg,
		log:     zerolog.Nop(),
		notice:  cfg.NoticeDuration,
		settle:  cfg.ChangeSettle,
		inputs:  make(chan func(), 256),
		quit:    make(chan struct{}),
		outbox:  make(chan job, 256),
		tool:    stroke.DefaultToolConfig(),
		growing: -1,
	}
	if c.notice <= 0 {
		c.notice = DefaultNoticeDuration
	}
	if c.settle <= 0 {
		c.settle = DefaultChangeSettle
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "whiteboard").Str("user_id", cfg.UserID).Logger()
	}
	return c
}

// Run acquires the session, joins its topic and serves inputs until ctx is
// done. Pending writes are flushed before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stop()

	sess, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	c.sessionID = sess.ID
	c.strokes = stroke.CloneAll(sess.Strokes)
	c.log = c.log.With().Str("session_id", sess.ID).Logger()

	workerDone := make(chan struct{})
	go c.worker(workerDone)
	defer func() {
		c.stop()
		close(c.outbox)
		<-workerDone
		if c.sub != nil {
			if err := c.sub.Close(); err != nil {
				c.log.Warn().Err(err).Msg("close subscription")
			}
		}
		if c.noticeTimer != nil {
			c.noticeTimer.Stop()
		}
		if c.changeTimer != nil {
			c.changeTimer.Stop()
		}
	}()

	c.render()

	sub, err := c.cfg.Channel.Subscribe(ctx, realtime.Topic(sess.ID), realtime.Handler{
		OnEvent:    func(ev realtime.Event) { c.post(func() { c.applyEvent(ev) }) },
		OnPresence: func(p []realtime.Presence) { c.post(func() { c.applyPresence(p) }) },
		OnChange:   func(s []stroke.Stroke) { c.post(func() { c.scheduleChange(s) }) },
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", realtime.Topic(sess.ID), err)
	}
	c.sub = sub

	self := realtime.Presence{UserID: c.cfg.UserID, Username: c.cfg.Username}
	c.enqueue(func(ctx context.Context) {
		if err := sub.Track(ctx, self); err != nil {
			c.log.Warn().Err(err).Msg("track presence")
		}
		if err := sub.Publish(ctx, realtime.Join(c.cfg.Username)); err != nil {
			c.log.Warn().Err(err).Msg("announce join")
		}
	})

	c.log.Info().Int("strokes", len(c.strokes)).Msg("session ready")

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.inputs:
			fn()
		}
	}
}

func (c *Controller) stop() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *Controller) acquire(ctx context.Context) (*Session, error) {
	sess, err := c.cfg.Store.Get(ctx, c.cfg.UserID)
	if errors.Is(err, ErrSessionNotFound) {
		sess, err = c.cfg.Store.Create(ctx, c.cfg.UserID)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		c.log.Info().Str("session_id", sess.ID).Msg("session created")
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// worker runs outbound I/O one job at a time so a client's writes stay ordered.
func (c *Controller) worker(done chan<- struct{}) {
	defer close(done)
	for j := range c.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		j(ctx)
		cancel()
	}
}

func (c *Controller) enqueue(j job) {
	select {
	case c.outbox <- j:
	default:
		c.log.Warn().Msg("outbox full, running write inline")
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		j(ctx)
		cancel()
	}
}

func (c *Controller) post(fn func()) bool {
	select {
	case c.inputs <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PointerDown starts a gesture at p using the current tool snapshot.
func (c *Controller) PointerDown(p stroke.Point) {
	c.post(func() {
		if c.growing >= 0 {
			c.commit()
		}
		act := c.capture.Down(p, c.tool)
		if act.Kind == input.ActionAppend {
			c.strokes = append(c.strokes, act.Stroke)
			c.growing = len(c.strokes) - 1
		}
		c.render()
	})
}

// PointerMove extends the active gesture.
func (c *Controller) PointerMove(p stroke.Point) {
	c.post(func() {
		act := c.capture.Move(p)
		switch act.Kind {
		case input.ActionExtend:
			if c.growing >= 0 {
				c.strokes[c.growing].Points = append(c.strokes[c.growing].Points, act.Point)
			}
		case input.ActionLive:
		default:
			return
		}
		c.render()
	})
}

// PointerUp commits the active gesture.
func (c *Controller) PointerUp() {
	c.post(func() {
		c.commit()
		c.render()
	})
}

func (c *Controller) commit() {
	done, ok := c.capture.Up()
	growing := c.growing
	c.growing = -1
	if !ok {
		return
	}

	var committed stroke.Stroke
	if done.Tool.IsShape() {
		c.strokes = append(c.strokes, done)
		committed = done
	} else {
		if growing < 0 || growing >= len(c.strokes) {
			return
		}
		committed = c.strokes[growing]
	}

	sessionID := c.sessionID
	snapshot := stroke.CloneAll(c.strokes)
	event := realtime.Draw(committed)
	sub := c.sub
	c.enqueue(func(ctx context.Context) {
		if err := c.cfg.Store.Replace(ctx, sessionID, snapshot); err != nil {
			c.log.Error().Err(err).Msg("persist strokes")
		}
		if sub == nil {
			return
		}
		if err := sub.Publish(ctx, event); err != nil {
			c.log.Warn().Err(err).Msg("publish draw")
		}
	})
}

// Clear empties the canvas for everyone.
func (c *Controller) Clear() {
	c.post(func() {
		c.capture.Cancel()
		c.growing = -1
		c.strokes = []stroke.Stroke{}

		sessionID := c.sessionID
		sub := c.sub
		c.enqueue(func(ctx context.Context) {
			if err := c.cfg.Store.Replace(ctx, sessionID, []stroke.Stroke{}); err != nil {
				c.log.Error().Err(err).Msg("persist clear")
			}
			if sub == nil {
				return
			}
			if err := sub.Publish(ctx, realtime.Clear()); err != nil {
				c.log.Warn().Err(err).Msg("publish clear")
			}
		})
		c.render()
	})
}

// SetTool selects the tool for the next gesture.
func (c *Controller) SetTool(t stroke.Tool) error {
	if _, err := stroke.DefaultToolConfig().WithTool(t); err != nil {
		return err
	}
	c.post(func() { c.tool, _ = c.tool.WithTool(t) })
	return nil
}

// SetColor selects the color for the next gesture.
func (c *Controller) SetColor(color string) error {
	if _, err := stroke.DefaultToolConfig().WithColor(color); err != nil {
		return err
	}
	c.post(func() { c.tool, _ = c.tool.WithColor(color) })
	return nil
}

// SetSize selects the size for the next gesture.
func (c *Controller) SetSize(size float64) error {
	if _, err := stroke.DefaultToolConfig().WithSize(size); err != nil {
		return err
	}
	c.post(func() { c.tool, _ = c.tool.WithSize(size) })
	return nil
}

// Resize resets the surface and replays the stroke list.
func (c *Controller) Resize(width, height int) {
	c.post(func() {
		if c.cfg.Renderer == nil {
			return
		}
		if err := c.cfg.Renderer.Resize(width, height, c.strokes, c.capture.Live()); err != nil {
			c.log.Warn().Err(err).Int("width", width).Int("height", height).Msg("resize")
			return
		}
		c.emit()
	})
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := c.call(ctx, func() { st = c.state() })
	return st, err
}

// Wait blocks until every input posted before it has been applied and the
// writes it caused have finished.
func (c *Controller) Wait(ctx context.Context) error {
	flushed := make(chan struct{})
	if err := c.call(ctx, func() {
		c.enqueue(func(context.Context) { close(flushed) })
	}); err != nil {
		return err
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) applyEvent(ev realtime.Event) {
	switch ev.Name {
	case proto.EventDraw:
		if ev.Line == nil {
			return
		}
		c.strokes = append(c.strokes, ev.Line.Clone())
	case proto.EventClear:
		c.strokes = []stroke.Stroke{}
		if c.growing >= 0 {
			c.capture.Cancel()
			c.growing = -1
		}
	case proto.EventJoin:
		c.log.Info().Str("message", ev.Message).Msg("participant joined")
		return
	default:
		return
	}
	c.render()
}

// scheduleChange keeps only the latest notification and applies it once the
// settle window passes without a newer one.
func (c *Controller) scheduleChange(incoming []stroke.Stroke) {
	c.changeGen++
	gen := c.changeGen
	if c.changeTimer != nil {
		c.changeTimer.Stop()
	}
	c.changeTimer = time.AfterFunc(c.settle, func() {
		c.post(func() {
			if c.changeGen == gen {
				c.applyChange(incoming)
			}
		})
	})
}

// applyChange replaces the local list when the persisted one differs.
// An in-progress freehand stroke survives the replace.
func (c *Controller) applyChange(incoming []stroke.Stroke) {
	local := c.strokes
	var pending *stroke.Stroke
	if c.growing >= 0 && c.growing < len(c.strokes) {
		g := c.strokes[c.growing]
		pending = &g
		local = append(stroke.CloneAll(c.strokes[:c.growing]), c.strokes[c.growing+1:]...)
	}
	if stroke.Equal(local, incoming) {
		return
	}

	next := stroke.CloneAll(incoming)
	if next == nil {
		next = []stroke.Stroke{}
	}
	if pending != nil {
		next = append(next, *pending)
		c.growing = len(next) - 1
	}
	c.strokes = next
	c.log.Debug().Int("strokes", len(next)).Msg("reconciled from change notification")
	c.render()
}

func (c *Controller) applyPresence(roster []realtime.Presence) {
	c.participants = len(roster)
	c.noticeGen++
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	c.multiUser = len(roster) > 1
	if c.multiUser {
		gen := c.noticeGen
		c.noticeTimer = time.AfterFunc(c.notice, func() {
			c.post(func() {
				if c.noticeGen != gen {
					return
				}
				c.multiUser = false
				c.emit()
			})
		})
	}
	c.emit()
}

func (c *Controller) render() {
	if c.cfg.Renderer != nil {
		if err := c.cfg.Renderer.Render(c.strokes, c.capture.Live()); err != nil {
			c.log.Warn().Err(err).Msg("render")
		}
	}
	c.emit()
}

func (c *Controller) emit() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.state())
	}
}

func (c *Controller) state() State {
	return State{
		SessionID:    c.sessionID,
		Strokes:      stroke.CloneAll(c.strokes),
		Live:         c.capture.Live(),
		Drawing:      c.capture.State() == input.StateDrawing,
		MultiUser:    c.multiUser,
		Participants: c.participants,
		Tool:         c.tool,
	}
}
