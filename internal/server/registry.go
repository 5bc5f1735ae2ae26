package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/civilens/civilens/internal/flow"
	"github.com/civilens/civilens/internal/landing"
)

// Client is one browser: its page chrome, its reporting flow and a pending
// alert to show on the next render.
type Client struct {
	DeviceID string

	deps    flow.Deps
	publish func(flow.Update)

	mu    sync.Mutex
	flow  *flow.Controller
	page  landing.Page
	flash string
}

func (c *Client) Flow() *flow.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow
}

func (c *Client) Page() landing.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Client) ToggleMenu() {
	c.mu.Lock()
	c.page.ToggleMenu()
	c.mu.Unlock()
}

// ToggleReport opens or closes the reporting modal. Opening starts a fresh
// flow from the persisted session, unless the current flow still waits on a
// detection: that flow is kept so its refund and submit guard stay in place.
func (c *Client) ToggleReport(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.page.ReportOpen && (c.flow == nil || !c.flow.View().InFlight) {
		ctrl, err := c.open(ctx)
		if err != nil {
			return err
		}
		c.flow = ctrl
	}
	c.page.ToggleReport()
	return nil
}

func (c *Client) SetFlash(msg string) {
	c.mu.Lock()
	c.flash = msg
	c.mu.Unlock()
}

// TakeFlash returns the pending alert and clears it.
func (c *Client) TakeFlash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.flash
	c.flash = ""
	return msg
}

func (c *Client) open(ctx context.Context) (*flow.Controller, error) {
	var ctrl *flow.Controller
	deps := c.deps
	deps.OnUpdate = func(u flow.Update) {
		if c.Flow() == ctrl {
			c.publish(u)
		}
	}

	ctrl, err := flow.NewController(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("opening flow for device %q: %w", c.DeviceID, err)
	}
	return ctrl, nil
}

// Registry holds the Client of every device seen since startup.
type Registry struct {
	deps   Deps
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry(deps Deps, logger *slog.Logger) *Registry {
	return &Registry{
		deps:    deps,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

func (r *Registry) Get(ctx context.Context, deviceID string) (*Client, error) {
	r.mu.RLock()
	c, ok := r.clients[deviceID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if c, ok := r.clients[deviceID]; ok {
		return c, nil
	}

	c, err := r.open(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	r.clients[deviceID] = c
	return c, nil
}

func (r *Registry) open(ctx context.Context, deviceID string) (*Client, error) {
	deps := flow.Deps{
		Repo:     r.deps.Sessions.For(deviceID),
		Sender:   r.deps.Sender,
		Detector: r.deps.Detector,
		Logger:   r.logger.With("device", deviceID),
	}
	if r.deps.Complaints != nil {
		deps.Complaints = r.deps.Complaints
	}

	c := &Client{
		DeviceID: deviceID,
		deps:     deps,
		publish: func(u flow.Update) {
			r.deps.Broker.Publish(deviceID, u)
		},
	}
	ctrl, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	c.flow = ctrl
	return c, nil
}
