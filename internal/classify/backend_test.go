package classify

import (
	"context"
	"errors"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	return f.resp, f.err
}

func TestGemini_Complete(t *testing.T) {
	fg := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "100 | [blank] | PDS date: 1 July 2024"}}},
		}},
	}}
	g := newGeminiWith(fg, "")

	got, err := g.Complete(context.Background(), "rubric", "page text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "100 | [blank] | PDS date: 1 July 2024" {
		t.Fatalf("unexpected reply: %q", got)
	}
	if fg.model != DefaultGeminiModel {
		t.Fatalf("expected default model, got %q", fg.model)
	}
	if fg.config == nil || fg.config.SystemInstruction == nil || len(fg.config.SystemInstruction.Parts) == 0 || fg.config.SystemInstruction.Parts[0].Text != "rubric" {
		t.Fatalf("system instruction not set: %#v", fg.config)
	}
}

func TestGemini_EmptyCandidates(t *testing.T) {
	g := newGeminiWith(&fakeGenerator{resp: &genai.GenerateContentResponse{}}, "gemini-x")
	if _, err := g.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}

type fakeMessager struct {
	msg    *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (f *fakeMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.msg, f.err
}

func TestAnthropic_Complete(t *testing.T) {
	fm := &fakeMessager{msg: &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: "0 | "},
		{Type: "text", Text: "Unknown reason"},
	}}}
	a := newAnthropicWith(fm, "claude-test")

	got, err := a.Complete(context.Background(), "rubric", "page text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0 | Unknown reason" {
		t.Fatalf("unexpected reply: %q", got)
	}
	if string(fm.params.Model) != "claude-test" {
		t.Fatalf("unexpected model: %q", fm.params.Model)
	}
	if len(fm.params.System) != 1 || fm.params.System[0].Text != "rubric" {
		t.Fatalf("system prompt not set: %#v", fm.params.System)
	}
}

func TestAnthropic_Errors(t *testing.T) {
	a := newAnthropicWith(&fakeMessager{err: errors.New("overloaded")}, "")
	if _, err := a.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected backend error")
	}

	a = newAnthropicWith(&fakeMessager{msg: &anthropic.Message{}}, "")
	if _, err := a.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error for empty content")
	}
}
