package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Completer sends a persona prompt to a completion provider.
type Completer interface {
	Complete(ctx context.Context, expertName, prompt string) (string, error)
}

// TranscriptUpdater appends an agent response to the shared discussion.
type TranscriptUpdater interface {
	Append(ctx context.Context, expertName, response, userInput string) error
}

// TranscriptSource exposes the current discussion text.
type TranscriptSource interface {
	Text() string
}

// InteractContext holds the user-supplied strings quoted into a prompt.
type InteractContext struct {
	UserRequest      string `json:"userRequest,omitempty"`
	UserInput        string `json:"userInput,omitempty"`
	RephrasedRequest string `json:"rephrasedRequest,omitempty"`
}

// InteractResult describes one interaction.
type InteractResult struct {
	Index      int           `json:"index"`
	ExpertName string        `json:"expertName"`
	Prompt     string        `json:"prompt"`
	Response   string        `json:"response,omitempty"`
	Appended   bool          `json:"appended"`
	Error      string        `json:"error,omitempty"` // completion failure, informational only
	Duration   time.Duration `json:"duration"`
}

// Interactor builds a prompt for an agent, sends it and forwards any
// response to the transcript.
type Interactor struct {
	completer Completer
	updater   TranscriptUpdater
	source    TranscriptSource
	window    int
	hooks     *hooks.Manager
	log       *logging.Logger
}

// NewInteractor wires the interaction pipeline. source may be nil when
// there is no discussion to quote; hk may be nil.
func NewInteractor(c Completer, u TranscriptUpdater, source TranscriptSource, window int, hk *hooks.Manager, log *logging.Logger) *Interactor {
	return &Interactor{
		completer: c,
		updater:   u,
		source:    source,
		window:    window,
		hooks:     hk,
		log:       log.Sub("interact"),
	}
}

// Interact runs one round for rec. A failed or empty completion skips the
// transcript update and is not returned as an error; only a failing
// transcript update is.
func (in *Interactor) Interact(ctx context.Context, rec domain.AgentRecord, ic InteractContext) (*InteractResult, error) {
	var discussion string
	if in.source != nil {
		discussion = in.source.Text()
	}

	prompt := BuildRequest(RequestInput{
		ExpertName:       rec.ExpertName,
		Description:      rec.Description,
		UserRequest:      ic.UserRequest,
		RephrasedRequest: ic.RephrasedRequest,
		UserInput:        ic.UserInput,
		Discussion:       discussion,
		Window:           in.window,
	})
	result := &InteractResult{ExpertName: rec.ExpertName, Prompt: prompt}

	in.hooks.Emit(ctx, hooks.EventBeforeInteract, map[string]any{
		"expertName":   rec.ExpertName,
		"promptLength": len(prompt),
	})

	start := time.Now()
	response, err := in.completer.Complete(ctx, rec.ExpertName, prompt)
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		in.log.Warn().Err(err).Str("expert", rec.ExpertName).Msg("completion failed, transcript unchanged")
		result.Error = err.Error()
	case response == "":
		in.log.Warn().Str("expert", rec.ExpertName).Msg("empty completion, transcript unchanged")
	default:
		if err := in.updater.Append(ctx, rec.ExpertName, response, ic.UserInput); err != nil {
			return result, fmt.Errorf("updating transcript: %w", err)
		}
		result.Response = response
		result.Appended = true
	}

	in.log.Info().
		Str("expert", rec.ExpertName).
		Bool("appended", result.Appended).
		Dur("duration", result.Duration).
		Msg("interaction complete")

	in.hooks.Emit(ctx, hooks.EventAfterInteract, map[string]any{
		"expertName": rec.ExpertName,
		"appended":   result.Appended,
		"error":      result.Error,
	})
	return result, nil
}
