package slate

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Event is one record of the server's event stream: dispatched by clients
// and services, consumed by listeners and enrolled workers.
type Event struct {
	ID          string         `json:"id"`
	Topic       string         `json:"topic"`
	Sender      string         `json:"sender,omitempty"`
	Project     string         `json:"project,omitempty"`
	User        string         `json:"user,omitempty"`
	DependsOn   string         `json:"dependsOn,omitempty"`
	Status      string         `json:"status,omitempty"`
	Description string         `json:"description,omitempty"`
	Summary     map[string]any `json:"summary,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitzero"`
	UpdatedAt   time.Time      `json:"updatedAt,omitzero"`
}

// DispatchEvent posts a new event and returns its server-assigned ID.
// Topic is required; the other fields are optional.
func (c *Connection) DispatchEvent(ctx context.Context, ev Event) (string, error) {
	body := map[string]any{
		"topic": ev.Topic,
	}

	if ev.Sender != "" {
		body["sender"] = ev.Sender
	} else if c.sender != "" {
		body["sender"] = c.sender
	}

	if ev.Project != "" {
		body["project"] = ev.Project
	}

	if ev.DependsOn != "" {
		body["dependsOn"] = ev.DependsOn
	}

	if ev.Description != "" {
		body["description"] = ev.Description
	}

	if ev.Summary != nil {
		body["summary"] = ev.Summary
	}

	if ev.Payload != nil {
		body["payload"] = ev.Payload
	}

	resp, err := c.Post(ctx, "events", body)
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}

	if err := resp.DecodeJSON(&created); err != nil {
		return "", err
	}

	return created.ID, nil
}

// GetEvent fetches one event by ID.
func (c *Connection) GetEvent(ctx context.Context, id string) (Event, error) {
	resp, err := c.Get(ctx, "events/"+url.PathEscape(id))
	if err != nil {
		return Event{}, err
	}

	var ev Event
	if err := resp.DecodeJSON(&ev); err != nil {
		return Event{}, err
	}

	return ev, nil
}

// EventPatch updates selected fields of an existing event. Nil fields are
// left untouched.
type EventPatch struct {
	Status      *string
	Description *string
	Summary     map[string]any
	Payload     map[string]any
	Progress    *float64
}

// UpdateEvent applies a patch to an existing event — typically a worker
// reporting progress or completion on an enrolled job.
func (c *Connection) UpdateEvent(ctx context.Context, id string, patch EventPatch) error {
	body := map[string]any{}

	if patch.Status != nil {
		body["status"] = *patch.Status
	}

	if patch.Description != nil {
		body["description"] = *patch.Description
	}

	if patch.Summary != nil {
		body["summary"] = patch.Summary
	}

	if patch.Payload != nil {
		body["payload"] = patch.Payload
	}

	if patch.Progress != nil {
		body["progress"] = *patch.Progress
	}

	_, err := c.Patch(ctx, "events/"+url.PathEscape(id), body)

	return err
}

// EnrollRequest asks the server to hand this worker the next unprocessed
// source event, creating a dependent job event in one atomic step.
type EnrollRequest struct {
	SourceTopic string `json:"sourceTopic"`
	TargetTopic string `json:"targetTopic"`
	Sender      string `json:"sender"`
	Description string `json:"description,omitempty"`
	// Sequential workers refuse to take a new job while a previous one for
	// the same target topic is still pending.
	Sequential bool `json:"sequential,omitempty"`
}

// EnrollEventJob claims the next pending job for a worker. A nil event with
// a nil error means there is currently nothing to process.
func (c *Connection) EnrollEventJob(ctx context.Context, req EnrollRequest) (*Event, error) {
	if req.Sender == "" {
		req.Sender = c.sender
	}

	resp, err := c.Post(ctx, "enroll", req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, nil
	}

	var ev Event
	if err := resp.DecodeJSON(&ev); err != nil {
		return nil, err
	}

	return &ev, nil
}
