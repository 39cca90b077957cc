package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dreamflow/internal/models"
)

const tracerName = "dreamflow/internal/chat"

// Conversations persists chat history. Lookups for conversations the owner
// does not have return models.ErrNotFound.
type Conversations interface {
	Create(ctx context.Context, owner uint) (models.Conversation, error)
	Get(ctx context.Context, owner, id uint) (models.Conversation, error)
	History(ctx context.Context, owner, conversationID uint, limit int) ([]models.Message, error)
	AppendTurn(ctx context.Context, owner, conversationID uint, userText, assistantText string, toolLog []models.ToolCallRecord) (models.Message, models.Message, error)
}

type TurnResult struct {
	ConversationID uint                    `json:"conversation_id"`
	MessageID      uint                    `json:"message_id"`
	Response       string                  `json:"response"`
	ToolCalls      []models.ToolCallRecord `json:"tool_calls"`
}

type Service struct {
	tasks         Tasks
	conversations Conversations
	completion    Completion
	historyWindow int
	log           *zap.Logger
	tracer        trace.Tracer
}

func NewService(tasks Tasks, conversations Conversations, completion Completion, historyWindow int, log *zap.Logger) *Service {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		tasks:         tasks,
		conversations: conversations,
		completion:    completion,
		historyWindow: historyWindow,
		log:           log,
		tracer:        otel.Tracer(tracerName),
	}
}

// HandleTurn answers one user message. It makes at most two completion calls:
// the first may request tools, which run against the caller's tasks, and the
// second turns their results into the final reply. Completion failures become
// an apology reply; only storage errors are returned.
func (s *Service) HandleTurn(ctx context.Context, userID uint, text string, conversationID *uint) (TurnResult, error) {
	// The message is stored as sent; trimming only decides whether it is empty.
	if strings.TrimSpace(text) == "" {
		return TurnResult{}, models.NewValidationError("message", "must not be empty")
	}

	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()

	conv, err := s.resolveConversation(ctx, userID, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve conversation")
		return TurnResult{}, err
	}
	span.SetAttributes(attribute.Int64("conversation.id", int64(conv.ID)))

	history, err := s.conversations.History(ctx, userID, conv.ID, s.historyWindow)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load history")
		return TurnResult{}, err
	}

	prompt := buildPrompt(history, text)
	reply, records := s.respond(ctx, userID, prompt)

	_, assistantMsg, err := s.conversations.AppendTurn(ctx, userID, conv.ID, text, reply, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist turn")
		return TurnResult{}, err
	}

	if records == nil {
		records = []models.ToolCallRecord{}
	}
	span.SetAttributes(attribute.Int("chat.tool_calls", len(records)))
	return TurnResult{
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		Response:       reply,
		ToolCalls:      records,
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, userID uint, conversationID *uint) (models.Conversation, error) {
	if conversationID == nil {
		return s.conversations.Create(ctx, userID)
	}
	return s.conversations.Get(ctx, userID, *conversationID)
}

func buildPrompt(history []models.Message, text string) []*schema.Message {
	prompt := make([]*schema.Message, 0, len(history)+2)
	prompt = append(prompt, schema.SystemMessage(systemPrompt))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			prompt = append(prompt, schema.UserMessage(m.Content))
		case models.RoleAssistant:
			prompt = append(prompt, schema.AssistantMessage(m.Content, nil))
		}
	}
	return append(prompt, schema.UserMessage(text))
}

func (s *Service) respond(ctx context.Context, userID uint, prompt []*schema.Message) (string, []models.ToolCallRecord) {
	first, err := s.complete(ctx, 1, prompt)
	if err != nil {
		s.log.Warn("chat completion failed", zap.Uint("user_id", userID), zap.Error(err))
		return ApologyReply, nil
	}
	if len(first.ToolCalls) == 0 {
		return first.Content, nil
	}

	records := make([]models.ToolCallRecord, 0, len(first.ToolCalls))
	followUp := make([]*schema.Message, 0, len(prompt)+1+len(first.ToolCalls))
	followUp = append(followUp, prompt...)
	followUp = append(followUp, schema.AssistantMessage(first.Content, first.ToolCalls))
	for _, call := range first.ToolCalls {
		record := s.runTool(ctx, userID, call)
		records = append(records, record)

		payload, err := json.Marshal(record.Result)
		if err != nil {
			payload = []byte(`{"success":false,"error":"unencodable result"}`)
		}
		followUp = append(followUp, schema.ToolMessage(string(payload), call.ID))
	}

	final, err := s.complete(ctx, 2, followUp)
	if err != nil {
		s.log.Warn("chat follow-up completion failed", zap.Uint("user_id", userID), zap.Error(err))
		return summarize(records), records
	}
	if strings.TrimSpace(final.Content) == "" {
		return summarize(records), records
	}
	return final.Content, records
}

func (s *Service) complete(ctx context.Context, round int, prompt []*schema.Message) (*schema.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.completion", trace.WithAttributes(
		attribute.Int("chat.round", round),
		attribute.Int("chat.prompt_messages", len(prompt)),
	))
	defer span.End()

	if s.completion == nil {
		span.SetStatus(codes.Error, ErrNotConfigured.Error())
		return nil, ErrNotConfigured
	}
	msg, err := s.completion.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}
	if msg == nil {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, ErrEmptyResponse
	}
	span.SetAttributes(attribute.Int("chat.requested_tools", len(msg.ToolCalls)))
	return msg, nil
}

func (s *Service) runTool(ctx context.Context, userID uint, call schema.ToolCall) models.ToolCallRecord {
	ctx, span := s.tracer.Start(ctx, "chat.tool", trace.WithAttributes(attribute.String("tool.name", call.Function.Name)))
	defer span.End()

	record := executeTool(ctx, s.tasks, userID, call)
	ok, _ := record.Result["success"].(bool)
	span.SetAttributes(attribute.Bool("tool.success", ok))
	if !ok {
		span.SetStatus(codes.Error, "tool reported failure")
		s.log.Debug("tool call failed",
			zap.String("tool", call.Function.Name),
			zap.Uint("user_id", userID),
			zap.Any("result", record.Result),
		)
	}
	return record
}

// summarize builds a reply from tool results when the follow-up completion
// produced nothing usable.
func summarize(records []models.ToolCallRecord) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		if msg, ok := r.Result["message"].(string); ok && msg != "" {
			lines = append(lines, msg)
			continue
		}
		if success, _ := r.Result["success"].(bool); success {
			if count, ok := r.Result["count"].(int); ok {
				lines = append(lines, pluralTasks(count))
			}
		}
	}
	if len(lines) == 0 {
		return ApologyReply
	}
	return strings.Join(lines, "\n")
}

func pluralTasks(n int) string {
	if n == 1 {
		return "You have 1 task."
	}
	return fmt.Sprintf("You have %d tasks.", n)
}
