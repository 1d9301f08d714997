// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/secchat/internal/model"
	"github.com/jeranaias/secchat/internal/ollama"
	"github.com/jeranaias/secchat/internal/storage"
	"github.com/jeranaias/secchat/internal/thinking"
)

// NoResponse is stored when the server returns an empty reply.
const NoResponse = "No response"

// ErrEmptyPrompt is returned by Send for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Generator produces a completion for one prompt. *ollama.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (*ollama.GenerateResponse, error)
}

// Options configures NewSession.
type Options struct {
	Vault     *storage.Vault
	Generator Generator
	// Segmenter defaults to one built from thinking.DefaultTable.
	Segmenter *thinking.Segmenter
	// Model is the model name sent with every request.
	Model string
	Log   zerolog.Logger
}

// Session records exchanges with the model server.
type Session struct {
	vault *storage.Vault
	gen   Generator
	seg   *thinking.Segmenter
	model string
	log   zerolog.Logger
	now   func() time.Time
}

// Reply is the outcome of one Send.
type Reply struct {
	// Conversation is the conversation after the assistant message was added.
	Conversation model.Conversation
	// Message is the stored assistant message.
	Message model.Message
	// Rule names the segmenter rule that produced the split.
	Rule thinking.Rule
	// Created is true when Send started a new conversation.
	Created bool
}

// NewSession builds a session over the vault and generator.
func NewSession(opts Options) *Session {
	seg := opts.Segmenter
	if seg == nil {
		seg = thinking.New(thinking.DefaultTable())
	}
	return &Session{
		vault: opts.Vault,
		gen:   opts.Generator,
		seg:   seg,
		model: opts.Model,
		log:   opts.Log.With().Str("component", "chat").Logger(),
		now:   time.Now,
	}
}

// Model returns the model name used for requests.
func (s *Session) Model() string {
	return s.model
}

// Send appends prompt to conversation id, creating a conversation when id
// is empty, and stores the model's segmented reply. When generation fails
// an "Error: <msg>" assistant message is stored and the generation error is
// returned alongside the reply.
func (s *Session) Send(ctx context.Context, id, prompt string) (Reply, error) {
	if strings.TrimSpace(prompt) == "" {
		return Reply{}, ErrEmptyPrompt
	}

	var reply Reply
	if id == "" {
		conv, err := s.vault.Create(prompt, s.model)
		if err != nil {
			return Reply{}, err
		}
		id = conv.ID
		reply.Created = true
	} else {
		if _, err := s.vault.Append(id, model.NewUserMessage(prompt)); err != nil {
			return Reply{}, err
		}
	}

	start := s.now()
	resp, genErr := s.gen.Generate(ctx, s.model, prompt)
	elapsed := s.now().Sub(start).Seconds()

	var msg model.Message
	if genErr != nil {
		s.log.Warn().Err(genErr).Str("model", s.model).Msg("generation failed")
		msg = model.NewAssistantMessage("Error: " + genErr.Error())
	} else {
		msg, reply.Rule = s.assistantMessage(resp, elapsed)
		s.log.Debug().Str("model", s.model).Stringer("rule", reply.Rule).
			Int("eval_count", resp.EvalCount).Float64("seconds", elapsed).Msg("reply stored")
	}

	conv, err := s.vault.Append(id, msg)
	if err != nil {
		return Reply{}, errors.Join(genErr, err)
	}
	reply.Conversation = conv
	reply.Message = msg
	return reply, genErr
}

// assistantMessage segments the raw reply and attaches the statistics.
func (s *Session) assistantMessage(resp *ollama.GenerateResponse, elapsed float64) (model.Message, thinking.Rule) {
	raw := resp.Response
	if strings.TrimSpace(raw) == "" {
		raw = NoResponse
	}

	split := s.seg.Segment(raw)
	answer := split.Answer
	if strings.TrimSpace(answer) == "" {
		answer = NoResponse
	}

	msg := model.NewAssistantMessage(answer)
	msg.Thinking = split.Reasoning
	msg.ThinkingTime = elapsed
	if resp.EvalCount > 0 || resp.EvalDuration > 0 {
		msg.ThinkingDetails = &model.ThinkingDetails{
			EvalDuration:    resp.EvalSeconds(),
			EvalCount:       resp.EvalCount,
			TokensPerSecond: resp.TokensPerSecond(),
		}
	}
	return msg, split.Rule
}
