package backend

import (
	"context"
	"strings"

	"github.com/driftlabs/driftroute/pkg/types"
)

// rule is one embedded response rule: if any trigger occurs in the request,
// the response applies.
type rule struct {
	triggers   []string
	response   string
	confidence float64
}

// Embedded is the in-process rule-based responder. It is the emergency path:
// it never fails, answers within its tiny declared budget, and is exempt
// from circuit breaking. Quality is deliberately modest.
type Embedded struct {
	desc  types.BackendDescriptor
	rules []rule
}

// NewEmbedded creates the rule-based responder.
func NewEmbedded(desc types.BackendDescriptor) *Embedded {
	return &Embedded{
		desc: desc,
		rules: []rule{
			{
				triggers:   []string{"hello", "hi", "hey", "good morning", "good evening"},
				response:   "Hello! How can I help you today?",
				confidence: 0.9,
			},
			{
				triggers:   []string{"thank", "thanks"},
				response:   "You're welcome! Anything else I can do?",
				confidence: 0.9,
			},
			{
				triggers:   []string{"bye", "goodbye", "see you"},
				response:   "Goodbye! Take care.",
				confidence: 0.9,
			},
			{
				triggers:   []string{"feel", "sad", "anxious", "stressed", "overwhelmed"},
				response:   "That sounds difficult. I'm here to listen. Tell me more about what's going on.",
				confidence: 0.5,
			},
			{
				triggers:   []string{"should i", "decide", "choose", "which one"},
				response:   "A quick way to decide: list what matters most to you, then score each option against it.",
				confidence: 0.4,
			},
			{
				triggers:   []string{"help", "how do i", "how to"},
				response:   "I can help with that. Could you share a bit more detail about what you're trying to do?",
				confidence: 0.5,
			},
		},
	}
}

// Descriptor returns the static configuration entry.
func (e *Embedded) Descriptor() types.BackendDescriptor {
	return e.desc
}

// Generate matches the request against the rule table and falls back to a
// generic acknowledgement. It cannot fail.
func (e *Embedded) Generate(ctx context.Context, text string) (types.GenerateResult, error) {
	lower := strings.ToLower(text)

	for _, r := range e.rules {
		for _, trigger := range r.triggers {
			if strings.Contains(lower, trigger) {
				return types.GenerateResult{Text: r.response, Confidence: r.confidence}, nil
			}
		}
	}

	if strings.Contains(lower, "?") {
		return types.GenerateResult{
			Text:       "Good question. I don't have a full answer right now, but rephrasing or adding detail would help me try again.",
			Confidence: 0.3,
		}, nil
	}

	return types.GenerateResult{
		Text:       "Got it. I've noted your message; ask me a question or give me a task and I'll do my best.",
		Confidence: 0.25,
	}, nil
}

// Ping always succeeds: the responder is in-process.
func (e *Embedded) Ping(ctx context.Context) error {
	return nil
}
