package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrConfirmationRequired is returned by destructive operations called
// without confirmation.
var ErrConfirmationRequired = errors.New("confirmation required")

// Recoverer hands a saved conversation over to the live agent of a session.
type Recoverer interface {
	Recover(ctx context.Context, sessionID, agentID string, messages []Message) error
}

// Page is the initial state of the history view.
type Page struct {
	Records []Record      `json:"records"`
	Stats   Stats         `json:"stats"`
	Agents  []AgentOption `json:"agents"`
}

// Controller wires history actions to the store.
type Controller struct {
	store     *Store
	recoverer Recoverer
	now       func() time.Time
	seed      bool
	logger    *slog.Logger
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Store is the record store. Required.
	Store *Store

	// Recoverer receives recovered conversations. Optional; Recover fails without it.
	Recoverer Recoverer

	// SeedExamples stores example records on Init when the store is empty.
	SeedExamples bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewController creates a controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		store:     cfg.Store,
		recoverer: cfg.Recoverer,
		now:       cfg.Now,
		seed:      cfg.SeedExamples,
		logger:    cfg.Logger,
	}
}

// Init seeds the store on first run and returns the unfiltered page.
func (c *Controller) Init(ctx context.Context) (Page, error) {
	var records []Record
	if c.seed {
		var seeded bool
		var err error
		records, seeded, err = c.store.SeedIfEmpty(ctx, func() []Record { return ExampleRecords(c.now()) })
		if err != nil {
			return Page{}, fmt.Errorf("seeding history: %w", err)
		}
		if seeded {
			c.logger.InfoContext(ctx, "history seeded with examples", "records", len(records))
		}
	} else {
		var err error
		if records, err = c.store.Load(ctx); err != nil {
			return Page{}, err
		}
	}

	now := c.now()
	return Page{
		Records: records,
		Stats:   Summarize(records, now),
		Agents:  AgentOptions(records),
	}, nil
}

// List returns the records matching criteria.
func (c *Controller) List(ctx context.Context, criteria Criteria) ([]Record, error) {
	records, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(records, criteria, c.now()), nil
}

// View returns one record.
func (c *Controller) View(ctx context.Context, id int64) (Record, error) {
	return c.store.Get(ctx, id)
}

// Save stores a finished conversation and returns its id.
func (c *Controller) Save(ctx context.Context, agentID, agentName string, messages []Message) (int64, error) {
	return c.store.Append(ctx, agentID, agentName, messages)
}

// Recover stages the conversation for the session so its agent can resume it.
func (c *Controller) Recover(ctx context.Context, sessionID string, id int64) (Record, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if c.recoverer == nil {
		return Record{}, errors.New("conversation recovery is not configured")
	}
	if err := c.recoverer.Recover(ctx, sessionID, rec.AgentID, rec.Messages); err != nil {
		return Record{}, fmt.Errorf("recovering conversation %d: %w", id, err)
	}
	c.logger.InfoContext(ctx, "conversation recovered", "id", id, "agent_id", rec.AgentID)
	return rec, nil
}

// Delete removes one record once confirmed.
func (c *Controller) Delete(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := c.store.Remove(ctx, id); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "conversation deleted", "id", id)
	return nil
}

// ClearAll removes every record once confirmed.
func (c *Controller) ClearAll(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "history cleared")
	return nil
}

// Now returns the controller clock reading, used by renderers.
func (c *Controller) Now() time.Time {
	return c.now()
}
