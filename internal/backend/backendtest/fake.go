// Package backendtest provides an in-memory backend.Adapter for handler tests.
package backendtest

import (
	"context"
	"io"
	"sync"

	"voice-gateway/internal/shared"
)

type TranscribeCall struct {
	Audio    []byte
	Filename string
	MimeType string
	Language string
}

type ChatCall struct {
	Messages    []shared.ChatMessage
	Persona     string
	Temperature float64
}

type SynthesizeCall struct {
	Text   string
	Voice  string
	Format string
}

// Fake records every call. Zero value answers with empty results.
type Fake struct {
	mu sync.Mutex

	TranscribeText string
	ChatReply      string
	Audio          []byte
	Err            error
	PingErr        error

	// OnTranscribe runs while the upload stream is still open.
	OnTranscribe func()

	TranscribeCalls []TranscribeCall
	ChatCalls       []ChatCall
	SynthesizeCalls []SynthesizeCall
	PingCalls       int
}

func (f *Fake) Transcribe(_ context.Context, audio io.Reader, filename, mimeType, language string) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	if f.OnTranscribe != nil {
		f.OnTranscribe()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TranscribeCalls = append(f.TranscribeCalls, TranscribeCall{Audio: data, Filename: filename, MimeType: mimeType, Language: language})
	if f.Err != nil {
		return "", f.wrap(shared.CapabilityTranscription)
	}
	return f.TranscribeText, nil
}

// Chat mirrors backend.Client: persona first, then messages with roles
// defaulted to user.
func (f *Fake) Chat(_ context.Context, messages []shared.ChatMessage, persona string, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	forwarded := []shared.ChatMessage{{Role: shared.RoleSystem, Content: persona}}
	for _, m := range messages {
		if m.Role == "" {
			m.Role = shared.RoleUser
		}
		forwarded = append(forwarded, m)
	}
	f.ChatCalls = append(f.ChatCalls, ChatCall{Messages: forwarded, Persona: persona, Temperature: temperature})
	if f.Err != nil {
		return "", f.wrap(shared.CapabilityChat)
	}
	return f.ChatReply, nil
}

func (f *Fake) Synthesize(_ context.Context, text, voice, format string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SynthesizeCalls = append(f.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice, Format: format})
	if f.Err != nil {
		return nil, "", f.wrap(shared.CapabilityTTS)
	}
	return f.Audio, "audio/" + format, nil
}

func (f *Fake) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PingCalls++
	return f.PingErr
}

// Calls returns the total number of capability calls made.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.TranscribeCalls) + len(f.ChatCalls) + len(f.SynthesizeCalls)
}

func (f *Fake) wrap(capability string) error {
	return &shared.BackendError{Capability: capability, Err: f.Err}
}
