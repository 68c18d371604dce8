package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailmirror/internal/mail"
)

// SetMessageTypeRequest records a triage decision.
type SetMessageTypeRequest struct {
	ID   int64  `json:"id" jsonschema:"local message ID"`
	Type string `json:"type" jsonschema:"new type: read-only, junk-uncertain, junk, response-needed, sent, draft"`
}

// SetReadStateRequest marks a message read or unread.
type SetReadStateRequest struct {
	ID   int64 `json:"id" jsonschema:"local message ID"`
	Read bool  `json:"read" jsonschema:"true marks the message read"`
}

// MessageResponse wraps the updated message.
type MessageResponse struct {
	Message MessageSummary `json:"message" jsonschema:"the updated message"`
}

type typeSetter interface {
	SetType(ctx context.Context, id int64, t mail.Type) (mail.Message, error)
}

type readStateSetter interface {
	SetReadState(ctx context.Context, id int64, read bool) (mail.Message, error)
}

func NewSetMessageType(svc typeSetter) *SetMessageType {
	return &SetMessageType{svc: svc}
}

// SetMessageType changes the triage type locally and moves the matching provider labels.
type SetMessageType struct {
	svc typeSetter
}

func (t *SetMessageType) SetMessageType(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SetMessageTypeRequest,
) (*mcp.CallToolResult, MessageResponse, error) {
	typ, ok := mail.ParseType(input.Type)
	if !ok {
		return nil, MessageResponse{}, fmt.Errorf("unknown type %q: %w", input.Type, mail.ErrValidation)
	}

	msg, err := t.svc.SetType(ctx, input.ID, typ)
	if err != nil {
		return nil, MessageResponse{}, fmt.Errorf("svc.SetType failed: %w", err)
	}

	return nil, MessageResponse{Message: newMessageSummary(msg)}, nil
}

func NewSetReadState(svc readStateSetter) *SetReadState {
	return &SetReadState{svc: svc}
}

type SetReadState struct {
	svc readStateSetter
}

func (t *SetReadState) SetReadState(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SetReadStateRequest,
) (*mcp.CallToolResult, MessageResponse, error) {
	msg, err := t.svc.SetReadState(ctx, input.ID, input.Read)
	if err != nil {
		return nil, MessageResponse{}, fmt.Errorf("svc.SetReadState failed: %w", err)
	}

	return nil, MessageResponse{Message: newMessageSummary(msg)}, nil
}

// ClassifyMessageRequest names the message to analyze.
type ClassifyMessageRequest struct {
	ID int64 `json:"id" jsonschema:"local message ID"`
}

// ClassifyMessageResponse carries the message after classification.
type ClassifyMessageResponse struct {
	Applied bool           `json:"applied" jsonschema:"whether the classifier produced a suggestion"`
	Message MessageSummary `json:"message" jsonschema:"the message"`
}

type messageClassifier interface {
	Classify(ctx context.Context, id int64) (mail.Message, bool, error)
}

func NewClassifyMessage(svc messageClassifier) *ClassifyMessage {
	return &ClassifyMessage{svc: svc}
}

type ClassifyMessage struct {
	svc messageClassifier
}

func (t *ClassifyMessage) ClassifyMessage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ClassifyMessageRequest,
) (*mcp.CallToolResult, ClassifyMessageResponse, error) {
	msg, applied, err := t.svc.Classify(ctx, input.ID)
	if err != nil {
		return nil, ClassifyMessageResponse{}, fmt.Errorf("svc.Classify failed: %w", err)
	}

	return nil, ClassifyMessageResponse{
		Applied: applied,
		Message: newMessageSummary(msg),
	}, nil
}

// SuggestReplyRequest asks for reply text to a stored message.
type SuggestReplyRequest struct {
	ID int64    `json:"id" jsonschema:"local message ID"`
	To []string `json:"to,omitempty" jsonschema:"reply recipients, the sender when omitted"`
	CC []string `json:"cc,omitempty" jsonschema:"CC recipients"`
}

// SuggestReplyResponse carries the generated reply, which is also stored as the pending draft text.
type SuggestReplyResponse struct {
	Generated bool   `json:"generated" jsonschema:"whether reply text was produced"`
	Reply     string `json:"reply,omitempty" jsonschema:"reply text"`
}

type replySuggester interface {
	SuggestReply(ctx context.Context, id int64, to, cc []string) (string, bool, error)
}

func NewSuggestReply(svc replySuggester) *SuggestReply {
	return &SuggestReply{svc: svc}
}

type SuggestReply struct {
	svc replySuggester
}

func (t *SuggestReply) SuggestReply(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SuggestReplyRequest,
) (*mcp.CallToolResult, SuggestReplyResponse, error) {
	text, ok, err := t.svc.SuggestReply(ctx, input.ID, input.To, input.CC)
	if err != nil {
		return nil, SuggestReplyResponse{}, fmt.Errorf("svc.SuggestReply failed: %w", err)
	}

	return nil, SuggestReplyResponse{Generated: ok, Reply: text}, nil
}
