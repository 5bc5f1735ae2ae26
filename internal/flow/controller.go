package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/civilens/civilens/internal/civilens"
	"github.com/civilens/civilens/internal/detect"
	"github.com/civilens/civilens/internal/metrics"
	"github.com/civilens/civilens/internal/otp"
	"github.com/civilens/civilens/internal/session"
)

// ComplaintRecorder stores confirmed reports.
type ComplaintRecorder interface {
	Record(ctx context.Context, c civilens.Complaint) (civilens.Complaint, error)
}

// Update is published after every committed transition that changed
// something a client displays.
type Update struct {
	Type string `json:"type"`
	View View   `json:"view"`
}

const (
	UpdateStage     = "stage_changed"
	UpdateCredits   = "credits_changed"
	UpdateDetection = "detection_finished"
)

type Deps struct {
	Repo       session.Repository
	Sender     otp.Sender
	Detector   detect.Detector
	Complaints ComplaintRecorder // optional
	Logger     *slog.Logger
	OnUpdate   func(Update) // optional
}

// Controller owns one device's flow. Transitions are serialized; the
// detection call runs without holding the lock.
type Controller struct {
	mu    sync.Mutex
	model Model
	deps  Deps
}

// NewController restores the persisted session, if any, and opens the flow.
func NewController(ctx context.Context, deps Deps) (*Controller, error) {
	var sess *civilens.Session
	s, err := deps.Repo.Load(ctx)
	switch {
	case err == nil:
		sess = &s
	case errors.Is(err, session.ErrNotFound):
	default:
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{model: Initial(sess), deps: deps}, nil
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.View()
}

// Dispatch applies ev and runs its effects. A UserError leaves the flow
// unchanged; any other error comes from persistence or the OTP channel.
// A report that needs detection blocks until the detector answers and the
// returned View already carries the outcome.
func (c *Controller) Dispatch(ctx context.Context, ev Event) (View, error) {
	if e, ok := ev.(SubmitPhone); ok && e.Code == "" {
		code, err := otp.Generate()
		if err != nil {
			return c.View(), err
		}
		e.Code = code
		ev = e
	}

	v, pending, err := c.apply(ctx, ev)
	if err != nil || pending == nil {
		return v, err
	}
	return c.detect(ctx, *pending)
}

func (c *Controller) apply(ctx context.Context, ev Event) (View, *detect.Request, error) {
	c.mu.Lock()

	if _, ok := ev.(SubmitReport); ok {
		if err := c.refresh(ctx); err != nil {
			v := c.model.View()
			c.mu.Unlock()
			return v, nil, err
		}
	}

	prev := c.model
	next, effects, err := Transition(prev, ev)
	c.observe(ev, err)
	if err != nil {
		c.mu.Unlock()
		return prev.View(), nil, err
	}

	var pending *detect.Request
	for _, eff := range effects {
		switch eff := eff.(type) {
		case SaveSession:
			if err := c.deps.Repo.Save(ctx, eff.Session); err != nil {
				c.mu.Unlock()
				return prev.View(), nil, fmt.Errorf("persisting session: %w", err)
			}
		case SendCode:
			if err := c.deps.Sender.Send(ctx, eff.Phone, eff.Code); err != nil {
				c.mu.Unlock()
				return prev.View(), nil, fmt.Errorf("sending code: %w", err)
			}
			metrics.OTPSentTotal.Inc()
		case RecordComplaint:
			if c.deps.Complaints == nil {
				continue
			}
			if _, err := c.deps.Complaints.Record(ctx, eff.Complaint); err != nil {
				c.deps.Logger.ErrorContext(ctx, "recording complaint failed", "error", err)
			}
		case Detect:
			req := eff.Request
			pending = &req
		}
	}

	c.model = next
	v := next.View()
	c.mu.Unlock()

	c.publish(prev, next, ev, v)
	return v, pending, nil
}

// refresh picks up credits saved by another flow on the same device, such as
// a refund that landed after this flow was opened. Caller holds c.mu.
func (c *Controller) refresh(ctx context.Context) error {
	if c.model.Session == nil {
		return nil
	}
	s, err := c.deps.Repo.Load(ctx)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("reloading session: %w", err)
	}
	if s.Phone == c.model.Session.Phone && s.Credits != c.model.Session.Credits {
		sess := *c.model.Session
		sess.Credits = s.Credits
		c.model.Session = &sess
	}
	return nil
}

func (c *Controller) detect(ctx context.Context, req detect.Request) (View, error) {
	// The flow never cancels an outstanding detection; the caller going
	// away must not either.
	ctx = context.WithoutCancel(ctx)

	metrics.DetectionsInFlight.Inc()
	outcome, err := c.deps.Detector.Detect(ctx, req)
	metrics.DetectionsInFlight.Dec()

	switch {
	case err != nil:
		metrics.DetectionsTotal.WithLabelValues("error").Inc()
		c.deps.Logger.WarnContext(ctx, "detection failed", "error", err)
	case outcome.Detected:
		metrics.DetectionsTotal.WithLabelValues("detected").Inc()
	default:
		metrics.DetectionsTotal.WithLabelValues("not_detected").Inc()
	}

	v, _, err := c.apply(ctx, DetectionFinished{Request: req, Outcome: outcome, Err: err})
	if err != nil {
		// The refund could not be persisted; unblock the submit anyway.
		c.mu.Lock()
		c.model.InFlight = false
		v = c.model.View()
		c.mu.Unlock()
	}
	return v, err
}

func (c *Controller) observe(ev Event, err error) {
	switch ev := ev.(type) {
	case SubmitCode:
		switch {
		case err == nil:
			metrics.OTPVerificationsTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, ErrInvalidCode):
			metrics.OTPVerificationsTotal.WithLabelValues("mismatch").Inc()
		}
	case SubmitReport:
		if err == nil {
			metrics.ReportsTotal.WithLabelValues(string(ev.Draft.ViolationType)).Inc()
		}
	}
}

func (c *Controller) publish(prev, next Model, ev Event, v View) {
	if c.deps.OnUpdate == nil {
		return
	}
	if prev.State.Stage() != next.State.Stage() {
		c.deps.OnUpdate(Update{Type: UpdateStage, View: v})
	}
	if credits(prev) != credits(next) {
		c.deps.OnUpdate(Update{Type: UpdateCredits, View: v})
	}
	if _, ok := ev.(DetectionFinished); ok {
		c.deps.OnUpdate(Update{Type: UpdateDetection, View: v})
	}
}

func credits(m Model) int {
	if m.Session == nil {
		return -1
	}
	return m.Session.Credits
}
