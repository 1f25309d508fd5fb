package testutil

import (
	"context"
	"sync"
)

// GenerateCall records one request made to a fake generator
type GenerateCall struct {
	Prompt      string
	System      string
	User        string
	Temperature float64
}

// FakeGenerator returns canned responses and records every prompt
type FakeGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []GenerateCall
}

// FakeOption is a functional option for configuring fake generators
type FakeOption func(*FakeGenerator)

// WithResponses queues responses; the last one repeats once the queue drains
func WithResponses(responses ...string) FakeOption {
	return func(f *FakeGenerator) {
		f.responses = append(f.responses, responses...)
	}
}

// WithGenerateError makes every call fail with err
func WithGenerateError(err error) FakeOption {
	return func(f *FakeGenerator) {
		f.err = err
	}
}

func NewFakeGenerator(opts ...FakeOption) *FakeGenerator {
	f := &FakeGenerator{}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *FakeGenerator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return f.record(ctx, GenerateCall{Prompt: prompt, Temperature: temperature})
}

func (f *FakeGenerator) GetName() string {
	return "fake"
}

// Calls returns a copy of the recorded calls
func (f *FakeGenerator) Calls() []GenerateCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]GenerateCall, len(f.calls))
	copy(out, f.calls)

	return out
}

// LastCall returns the most recent call, or the zero value when none
func (f *FakeGenerator) LastCall() GenerateCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.calls) == 0 {
		return GenerateCall{}
	}

	return f.calls[len(f.calls)-1]
}

func (f *FakeGenerator) record(ctx context.Context, call GenerateCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if f.err != nil {
		return "", f.err
	}

	if len(f.responses) == 0 {
		return "SELECT 1;", nil
	}

	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}

	return resp, nil
}

// FakeSystemGenerator also accepts a separate system prompt
type FakeSystemGenerator struct {
	*FakeGenerator
}

func NewFakeSystemGenerator(opts ...FakeOption) *FakeSystemGenerator {
	return &FakeSystemGenerator{FakeGenerator: NewFakeGenerator(opts...)}
}

func (f *FakeSystemGenerator) GenerateWithSystem(ctx context.Context, system, user string, temperature float64) (string, error) {
	return f.record(ctx, GenerateCall{System: system, User: user, Temperature: temperature})
}
