// Package agent manages the agent personas on the desk and runs their
// interactions: prompt assembly, provider failover and transcript updates.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// ErrIndexOutOfRange is returned when an update, select or interact names
// an index outside the agent list. Delete never returns it.
var ErrIndexOutOfRange = errors.New("agent index out of range")

// ErrEmptyName is returned when saving an agent without an expert name.
var ErrEmptyName = domain.ErrEmptyName

// ErrInvalidName is returned when an expert name cannot be used as an
// agent file name.
var ErrInvalidName = domain.ErrInvalidName

// NoSelection is the SelectedIndex of a desk with nothing selected.
const NoSelection = -1

// AgentStore persists agent records, one file per expert name.
type AgentStore interface {
	Write(expertName, description string) error
	Delete(expertName string) (bool, error)
	LoadAll() ([]domain.AgentRecord, error)
}

// State is the desk state rendered by clients.
type State struct {
	Agents           []domain.AgentRecord `json:"agents"`
	SelectedIndex    int                  `json:"selectedIndex"`
	FormName         string               `json:"formName"`
	FormDescription  string               `json:"formDescription"`
	UserRequest      string               `json:"userRequest,omitempty"`
	UserInput        string               `json:"userInput,omitempty"`
	RephrasedRequest string               `json:"rephrasedRequest,omitempty"`
}

// Desk owns the agent list and selection state and keeps the agent files
// in step with it. State changes are serialized by mu; interactions are
// serialized separately so that reads stay responsive while a provider
// call is in flight.
type Desk struct {
	mu    sync.Mutex
	state State

	interactMu sync.Mutex

	files      AgentStore
	interactor *Interactor
	hooks      *hooks.Manager
	log        *logging.Logger
}

// NewDesk creates an empty desk. hk may be nil.
func NewDesk(files AgentStore, interactor *Interactor, hk *hooks.Manager, log *logging.Logger) *Desk {
	return &Desk{
		state:      State{SelectedIndex: NoSelection},
		files:      files,
		interactor: interactor,
		hooks:      hk,
		log:        log.Sub("desk"),
	}
}

// Load replaces the agent list with the records found on disk and clears
// the selection.
func (d *Desk) Load() error {
	records, err := d.files.LoadAll()
	if err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}
	d.mu.Lock()
	d.state.Agents = records
	d.state.SelectedIndex = NoSelection
	d.mu.Unlock()
	d.log.Info().Int("agents", len(records)).Msg("agents loaded")
	return nil
}

// AddOrUpdate appends a new record when index is nil, otherwise replaces
// the record at *index. The record is then written to disk. It returns the
// index of the saved record.
//
// The list is changed before the file is written, so a write error leaves
// memory and disk out of step until the next successful save.
func (d *Desk) AddOrUpdate(ctx context.Context, index *int, expertName, description string) (int, error) {
	rec := domain.AgentRecord{ExpertName: expertName, Description: description}
	if err := rec.Validate(); err != nil {
		return NoSelection, err
	}

	d.mu.Lock()
	var at int
	if index == nil {
		d.state.Agents = append(d.state.Agents, rec)
		at = len(d.state.Agents) - 1
	} else {
		at = *index
		if at < 0 || at >= len(d.state.Agents) {
			d.mu.Unlock()
			return NoSelection, fmt.Errorf("%w: %d", ErrIndexOutOfRange, at)
		}
		d.state.Agents[at] = rec
	}
	err := d.files.Write(expertName, description)
	d.mu.Unlock()

	if err != nil {
		return at, fmt.Errorf("saving agent %q: %w", expertName, err)
	}

	d.log.Info().Str("expert", expertName).Int("index", at).Bool("created", index == nil).Msg("agent saved")
	d.hooks.Emit(ctx, hooks.EventAgentSaved, map[string]any{
		"index":      at,
		"expertName": expertName,
		"created":    index == nil,
	})
	return at, nil
}

// Delete removes the record at index and its file. An index outside the
// list is ignored.
func (d *Desk) Delete(ctx context.Context, index int) error {
	d.mu.Lock()
	if index < 0 || index >= len(d.state.Agents) {
		d.mu.Unlock()
		d.log.Debug().Int("index", index).Msg("delete ignored, index out of range")
		return nil
	}

	rec := d.state.Agents[index]
	d.state.Agents = append(d.state.Agents[:index:index], d.state.Agents[index+1:]...)
	switch {
	case d.state.SelectedIndex == index:
		d.state.SelectedIndex = NoSelection
	case d.state.SelectedIndex > index:
		d.state.SelectedIndex--
	}
	removed, err := d.files.Delete(rec.ExpertName)
	d.mu.Unlock()

	if err != nil {
		return fmt.Errorf("deleting agent %q: %w", rec.ExpertName, err)
	}

	d.hooks.Emit(ctx, hooks.EventAgentDeleted, map[string]any{
		"index":       index,
		"expertName":  rec.ExpertName,
		"fileRemoved": removed,
	})
	return nil
}

// SetContext stores the user strings quoted into later prompts.
func (d *Desk) SetContext(ic InteractContext) {
	d.mu.Lock()
	d.state.UserRequest = ic.UserRequest
	d.state.UserInput = ic.UserInput
	d.state.RephrasedRequest = ic.RephrasedRequest
	d.mu.Unlock()
}

// Select makes index the current agent, loads it into the edit form and
// runs an interaction with it.
func (d *Desk) Select(ctx context.Context, index int) (*InteractResult, error) {
	d.mu.Lock()
	rec, err := d.recordLocked(index)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.selectLocked(index, rec)
	d.mu.Unlock()

	d.hooks.Emit(ctx, hooks.EventAgentSelected, map[string]any{
		"index":      index,
		"expertName": rec.ExpertName,
	})
	return d.Interact(ctx, index)
}

// Interact sends the agent at index the current context. Whatever the
// outcome of the provider call, the agent becomes the selection afterwards.
func (d *Desk) Interact(ctx context.Context, index int) (*InteractResult, error) {
	d.interactMu.Lock()
	defer d.interactMu.Unlock()

	d.mu.Lock()
	rec, err := d.recordLocked(index)
	ic := InteractContext{
		UserRequest:      d.state.UserRequest,
		UserInput:        d.state.UserInput,
		RephrasedRequest: d.state.RephrasedRequest,
	}
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result, ierr := d.interactor.Interact(ctx, rec, ic)

	d.mu.Lock()
	// The list may have changed during the provider call.
	if index >= len(d.state.Agents) || d.state.Agents[index] != rec {
		index = d.indexOfLocked(rec)
	}
	if index != NoSelection {
		d.selectLocked(index, rec)
	}
	d.mu.Unlock()

	if result != nil {
		result.Index = index
	}

	return result, ierr
}

func (d *Desk) recordLocked(index int) (domain.AgentRecord, error) {
	if index < 0 || index >= len(d.state.Agents) {
		return domain.AgentRecord{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return d.state.Agents[index], nil
}

func (d *Desk) indexOfLocked(rec domain.AgentRecord) int {
	for i, r := range d.state.Agents {
		if r == rec {
			return i
		}
	}
	return NoSelection
}

func (d *Desk) selectLocked(index int, rec domain.AgentRecord) {
	d.state.SelectedIndex = index
	d.state.FormName = rec.ExpertName
	d.state.FormDescription = rec.Description
}

// Snapshot returns a copy of the desk state.
func (d *Desk) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.Agents = make([]domain.AgentRecord, len(d.state.Agents))
	copy(s.Agents, d.state.Agents)
	return s
}
