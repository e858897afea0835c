// Package voice handles Alexa skill webhook requests: envelope decoding,
// intent dispatch, and hands-free task capture.
package voice

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/maildrop"
	"github.com/knight-systems/productivity-service/tasks"
)

// ErrSkillMismatch is returned when a skill ID is configured and the request
// envelope carries a different application ID. Callers should reject the
// request instead of answering it.
var ErrSkillMismatch = errors.New("alexa application id mismatch")

// Application identifies the skill that sent a request.
type Application struct {
	ApplicationID string `json:"applicationId"`
}

// Session is the request envelope's session block, reduced to the fields the
// skill reads.
type Session struct {
	Application Application `json:"application"`
}

// System mirrors the envelope's context.System block. Out-of-session
// requests carry the application ID here rather than in the session.
type System struct {
	Application Application `json:"application"`
}

type RequestContext struct {
	System System `json:"System"`
}

type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Intent struct {
	Name  string          `json:"name"`
	Slots map[string]Slot `json:"slots"`
}

type RequestBody struct {
	Type   string `json:"type"`
	Intent Intent `json:"intent"`
}

// Envelope is the incoming Alexa request envelope.
type Envelope struct {
	Version string         `json:"version"`
	Session Session        `json:"session"`
	Context RequestContext `json:"context"`
	Request RequestBody    `json:"request"`
}

type OutputSpeech struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Card struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ResponseBody struct {
	OutputSpeech     OutputSpeech `json:"outputSpeech"`
	Card             *Card        `json:"card,omitempty"`
	ShouldEndSession bool         `json:"shouldEndSession"`
}

// Response is the outgoing Alexa response envelope.
type Response struct {
	Version  string       `json:"version"`
	Response ResponseBody `json:"response"`
}

func build(speech string, endSession bool, card *Card) Response {
	return Response{
		Version: "1.0",
		Response: ResponseBody{
			OutputSpeech:     OutputSpeech{Type: "PlainText", Text: speech},
			Card:             card,
			ShouldEndSession: endSession,
		},
	}
}

const unknownSpeech = "I'm not sure how to help with that. Try saying: Add, followed by your task."

// TaskParser turns free-form speech into structured task fields.
type TaskParser interface {
	Parse(ctx context.Context, text string) tasks.ParseResult
}

// TaskCreator delivers the parsed task to the task manager.
type TaskCreator interface {
	CreateTask(ctx context.Context, task domain.TaskFields) maildrop.TaskResult
}

// Handler dispatches Alexa skill requests. When skillID is non-empty, only
// requests from that skill are answered.
type Handler struct {
	parser  TaskParser
	creator TaskCreator
	skillID string
	logger  *log.Logger
}

func NewHandler(parser TaskParser, creator TaskCreator, skillID string, logger *log.Logger) *Handler {
	return &Handler{parser: parser, creator: creator, skillID: skillID, logger: logger}
}

// Handle processes one request envelope.
func (h *Handler) Handle(ctx context.Context, env Envelope) (Response, error) {
	if h.skillID != "" && !h.fromSkill(env) {
		h.logger.WithField("applicationId", env.Session.Application.ApplicationID).Warn("alexa skill id mismatch")
		return Response{}, ErrSkillMismatch
	}

	h.logger.WithField("type", env.Request.Type).Info("alexa request")

	switch env.Request.Type {
	case "LaunchRequest":
		return build("Welcome to Task Capture. Tell me a task to add, like: add buy milk tomorrow for groceries.", false, nil), nil
	case "IntentRequest":
		return h.handleIntent(ctx, env.Request.Intent), nil
	case "SessionEndedRequest":
		return build("", true, nil), nil
	}
	return build(unknownSpeech, false, nil), nil
}

func (h *Handler) fromSkill(env Envelope) bool {
	return env.Session.Application.ApplicationID == h.skillID ||
		env.Context.System.Application.ApplicationID == h.skillID
}

func (h *Handler) handleIntent(ctx context.Context, intent Intent) Response {
	switch intent.Name {
	case "CaptureTaskIntent":
		return h.captureTask(ctx, intent)
	case "AMAZON.HelpIntent":
		return build("You can say things like: Add buy milk tomorrow for groceries. Or: Add call mom at work. I'll parse your task and send it to your task manager.", false, nil)
	case "AMAZON.CancelIntent", "AMAZON.StopIntent":
		return build("Goodbye!", true, nil)
	case "AMAZON.FallbackIntent":
		return build("I didn't understand that. Try saying: Add, followed by your task.", false, nil)
	}
	return build(unknownSpeech, false, nil)
}

func (h *Handler) captureTask(ctx context.Context, intent Intent) Response {
	text := intent.Slots["taskText"].Value
	if text == "" {
		return build("I didn't catch the task. Please say: Add, followed by what you want to do.", false, nil)
	}

	parsed := h.parser.Parse(ctx, text)
	h.logger.WithFields(log.Fields{
		"title":   parsed.Title,
		"project": parsed.Project,
		"context": parsed.Context,
		"due":     parsed.DueDate,
	}).Info("voice task parsed")

	res := h.creator.CreateTask(ctx, domain.TaskFields{
		Title:      parsed.Title,
		Note:       parsed.Note,
		Project:    parsed.Project,
		Context:    strings.TrimPrefix(parsed.Context, "@"),
		Tags:       parsed.Tags,
		DueDate:    parsed.DueDate,
		DeferDate:  parsed.DeferDate,
		Flagged:    parsed.Flagged,
		Confidence: parsed.Confidence,
	})
	if !res.Success {
		return build("Sorry, I couldn't add that task. "+res.Message, true, nil)
	}

	parts := []string{"Added: " + parsed.Title}
	if parsed.Project != "" {
		parts = append(parts, "to "+parsed.Project)
	}
	if parsed.DueDate != "" {
		parts = append(parts, "due "+parsed.DueDate)
	}

	content := res.MailDropSubject
	if content == "" {
		content = parsed.Title
	}
	card := &Card{Type: "Simple", Title: "Task Added", Content: content}
	return build(strings.Join(parts, ". ")+".", true, card)
}
