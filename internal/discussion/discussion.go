// Package discussion owns the shared transcript that agent responses are
// appended to, and the whiteboard of code extracted from the latest turn.
package discussion

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/store"
)

// Discussion is the append-only transcript shared by every agent.
type Discussion struct {
	mu          sync.RWMutex
	text        strings.Builder
	whiteboard  string
	lastAgent   string
	lastComment string
	turns       []domain.Turn

	store store.TurnStore
	hooks *hooks.Manager
	log   *logging.Logger
	md    goldmark.Markdown
}

// New creates an empty discussion persisted through ts. hk may be nil.
func New(ts store.TurnStore, hk *hooks.Manager, log *logging.Logger) *Discussion {
	return &Discussion{
		store: ts,
		hooks: hk,
		log:   log.Sub("discussion"),
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Append records an agent response. A non-empty userInput is written
// ahead of the response. The whiteboard is replaced with the code blocks
// found in the response.
func (d *Discussion) Append(ctx context.Context, expertName, response, userInput string) error {
	turn, err := d.store.AppendTurn(ctx, domain.Turn{
		ExpertName: expertName,
		UserInput:  userInput,
		Response:   response,
	})
	if err != nil {
		return fmt.Errorf("persisting turn: %w", err)
	}

	d.mu.Lock()
	d.apply(turn)
	length := d.text.Len()
	d.mu.Unlock()

	d.log.Debug().Str("expert", expertName).Int("length", length).Msg("turn appended")
	d.hooks.Emit(ctx, hooks.EventDiscussionAppended, map[string]any{
		"id":         turn.ID,
		"expertName": turn.ExpertName,
		"userInput":  turn.UserInput,
		"response":   turn.Response,
	})
	return nil
}

// apply renders a turn into the transcript. Caller holds d.mu.
func (d *Discussion) apply(turn domain.Turn) {
	if turn.UserInput != "" {
		fmt.Fprintf(&d.text, "\n\n\n\n%s\n\n", turn.UserInput)
	}
	fmt.Fprintf(&d.text, "%s:\n\n    %s\n\n===\n\n", turn.ExpertName, turn.Response)
	d.whiteboard = ExtractCode(turn.Response)
	d.lastAgent = turn.ExpertName
	d.lastComment = turn.Response
	d.turns = append(d.turns, turn)
}

// Restore rebuilds the in-memory transcript from the turn store.
func (d *Discussion) Restore(ctx context.Context) error {
	turns, err := d.store.Turns(ctx)
	if err != nil {
		return fmt.Errorf("loading turns: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear()
	for _, t := range turns {
		d.apply(t)
	}
	d.log.Info().Int("turns", len(turns)).Msg("discussion restored")
	return nil
}

// Reset clears the transcript, the whiteboard and the stored history.
func (d *Discussion) Reset(ctx context.Context) error {
	if err := d.store.ClearTurns(ctx); err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}
	d.mu.Lock()
	d.clear()
	d.mu.Unlock()
	d.hooks.Emit(ctx, hooks.EventDiscussionReset, nil)
	return nil
}

func (d *Discussion) clear() {
	d.text.Reset()
	d.whiteboard = ""
	d.lastAgent = ""
	d.lastComment = ""
	d.turns = nil
}

// Text returns the full transcript.
func (d *Discussion) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text.String()
}

// Whiteboard returns the code extracted from the latest turn.
func (d *Discussion) Whiteboard() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.whiteboard
}

// Last returns the agent and response of the latest turn.
func (d *Discussion) Last() (agent, comment string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastAgent, d.lastComment
}

// Turns returns a copy of the turns in append order.
func (d *Discussion) Turns() []domain.Turn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Turn, len(d.turns))
	copy(out, d.turns)
	return out
}

// Search finds stored turns matching query.
func (d *Discussion) Search(ctx context.Context, query string, limit int) ([]domain.Turn, error) {
	return d.store.SearchTurns(ctx, query, limit)
}

// Markdown renders the transcript as a markdown document, one section per
// turn.
func (d *Discussion) Markdown() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b strings.Builder
	for i, t := range d.turns {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		if t.UserInput != "" {
			for _, line := range strings.Split(t.UserInput, "\n") {
				b.WriteString("> " + line + "\n")
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n", t.ExpertName, t.Response)
	}
	return b.String()
}

// RenderHTML converts the transcript to HTML. Raw HTML in responses is
// not passed through.
func (d *Discussion) RenderHTML() (string, error) {
	var buf bytes.Buffer
	if err := d.md.Convert([]byte(d.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("rendering discussion: %w", err)
	}
	return buf.String(), nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*\n)?(.*?)```")

// ExtractCode returns the distinct fenced code blocks in text, in order of
// first appearance, joined by blank lines.
func ExtractCode(text string) string {
	var blocks []string
	seen := make(map[string]bool)
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		code := strings.TrimRight(m[1], "\n")
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		blocks = append(blocks, code)
	}
	return strings.Join(blocks, "\n\n")
}
