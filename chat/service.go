package chat

import (
	"cmp"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/search"
	"github.com/poiesic/ragbot/storage"
)

const (
	// DefaultHistoryMessages is how many earlier messages shape the
	// retrieval query.
	DefaultHistoryMessages = 6

	// DefaultContextThreshold is the average score retrieved documents
	// must exceed to be used as context.
	DefaultContextThreshold = 0.4

	sourcePreviewRunes = 200
	imagePrefix        = "【图片内容】\n"
)

// Retriever finds and verifies reference documents.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, minScore float64) ([]core.ScoredChunk, error)
	Verify(query string, docs []core.ScoredChunk) bool
}

// Service answers chat requests, grounding answers in retrieved documents
// when they are relevant and recording every turn in the session history.
type Service struct {
	sessions         storage.SessionRepository
	retriever        Retriever
	generator        ai.Generator
	vision           ai.ImageDescriber
	historyMessages  int
	contextThreshold float64
	k                int
	minScore         float64
	logger           *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithVision enables image analysis for requests carrying an image.
func WithVision(vision ai.ImageDescriber) Option {
	return func(s *Service) error {
		s.vision = vision
		return nil
	}
}

// WithHistoryMessages sets how many earlier messages shape the retrieval
// query. Zero disables history.
func WithHistoryMessages(n int) Option {
	return func(s *Service) error {
		s.historyMessages = max(n, 0)
		return nil
	}
}

// WithContextThreshold sets the average score retrieved documents must
// exceed before they are used.
func WithContextThreshold(threshold float64) Option {
	return func(s *Service) error {
		s.contextThreshold = threshold
		return nil
	}
}

// WithRetrievalParams sets k and the minimum score passed to the
// retriever. Non-positive k and negative minScore use the retriever's defaults.
func WithRetrievalParams(k int, minScore float64) Option {
	return func(s *Service) error {
		s.k = k
		s.minScore = minScore
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a chat service.
func NewService(sessions storage.SessionRepository, retriever Retriever, generator ai.Generator, opts ...Option) (*Service, error) {
	if sessions == nil {
		return nil, ErrSessionRepositoryRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	s := &Service{
		sessions:         sessions,
		retriever:        retriever,
		generator:        generator,
		historyMessages:  DefaultHistoryMessages,
		contextThreshold: DefaultContextThreshold,
		minScore:         -1,
		logger:           slog.Default().With("component", "chat"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Prepared is a request ready for generation.
type Prepared struct {
	SessionID string
	Question  string // The message, prefixed with the image description if any
	Context   string // Assembled reference text, empty for plain conversation
	Sources   []Source
}

// Prepare records the user message and gathers what the model needs to
// answer it. Retrieval and image analysis failures are logged and
// degrade to answering without them.
func (s *Service) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyContent)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		session, err := s.sessions.CreateSession(ctx, "")
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
	}

	var history []core.Message
	if s.historyMessages > 0 {
		var err error
		history, err = s.sessions.RecentMessages(ctx, sessionID, s.historyMessages)
		if err != nil {
			return nil, err
		}
	}

	userMsg := &core.Message{Role: core.RoleUser, Content: req.Message}
	if len(req.Image) > 0 {
		userMsg.HasImage = true
		userMsg.ImageData = base64.StdEncoding.EncodeToString(req.Image)
		userMsg.ImageFormat = req.ImageFormat
	}
	if _, err := s.sessions.AddMessage(ctx, sessionID, userMsg); err != nil {
		return nil, err
	}

	prepared := &Prepared{SessionID: sessionID, Question: req.Message, Sources: []Source{}}

	if len(req.Image) > 0 {
		prepared.Question = s.describeImage(ctx, req)
	}

	if !req.UseSearch {
		s.attachContext(ctx, prepared, historyQuery(history, req.Message), req.Message)
	}

	return prepared, nil
}

// Chat answers a request in one piece and records the reply.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	prepared, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, prepared.Question, prepared.Context)
	if err != nil {
		s.logger.Error("generation failed", "session_id", prepared.SessionID, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	s.recordAnswer(ctx, prepared.SessionID, answer)

	return &Response{
		Content:   answer,
		SessionID: prepared.SessionID,
		Sources:   prepared.Sources,
		Metadata: map[string]any{
			"model":   s.generator.Model(),
			"use_rag": prepared.Context != "",
		},
	}, nil
}

// Stream answers a request token by token. Errors before the first event
// are returned without emitting anything; later failures are also sent as
// an error event.
func (s *Service) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	prepared, err := s.Prepare(ctx, req)
	if err != nil {
		return err
	}

	if err := emit(Event{Name: EventMetadata, Data: MetadataEvent{
		SessionID:  prepared.SessionID,
		Sources:    prepared.Sources,
		HasContext: prepared.Context != "",
	}}); err != nil {
		return err
	}

	full, err := s.generator.Stream(ctx, prepared.Question, prepared.Context, func(token string) error {
		return emit(Event{Name: EventToken, Data: TokenEvent{Token: token}})
	})
	if err != nil {
		s.logger.Error("streaming failed", "session_id", prepared.SessionID, "err", err)
		err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		_ = emit(Event{Name: EventError, Data: ErrorEvent{Error: err.Error()}})
		return err
	}

	s.recordAnswer(ctx, prepared.SessionID, full)
	return emit(Event{Name: EventDone, Data: DoneEvent{SessionID: prepared.SessionID, FullContent: full}})
}

// describeImage prefixes the message with the image description. The bare
// message is returned when vision is unavailable or fails.
func (s *Service) describeImage(ctx context.Context, req Request) string {
	if s.vision == nil {
		s.logger.Warn("image attached but vision is not configured")
		return req.Message
	}
	desc, err := s.vision.DescribeImage(ctx, req.Image, req.ImageFormat, req.Message)
	if err != nil {
		s.logger.Warn("image analysis failed, continuing without it", "err", err)
		return req.Message
	}
	return imagePrefix + desc + "\n\n" + req.Message
}

// attachContext retrieves documents for query and keeps them only when
// they score well on average and share enough terms with message.
func (s *Service) attachContext(ctx context.Context, p *Prepared, query, message string) {
	docs, err := s.retriever.Retrieve(ctx, query, s.k, s.minScore)
	if err != nil {
		s.logger.Warn("retrieval failed, continuing without context", "err", err)
		return
	}
	if len(docs) == 0 {
		return
	}

	avg := search.AverageScore(docs)
	verified := s.retriever.Verify(message, docs)
	s.logger.Debug("retrieved context candidates", "documents", len(docs), "average_score", avg, "verified", verified)
	if avg <= s.contextThreshold || !verified {
		return
	}

	p.Context = search.AssembleContext(docs)
	p.Sources = make([]Source, len(docs))
	for i, doc := range docs {
		p.Sources[i] = Source{
			Content: string([]rune(doc.Content)[:min(sourcePreviewRunes, len([]rune(doc.Content)))]) + "...",
			Source:  cmp.Or(doc.Source(), "Unknown"),
			Score:   doc.Score,
		}
	}
}

func (s *Service) recordAnswer(ctx context.Context, sessionID, answer string) {
	if strings.TrimSpace(answer) == "" {
		s.logger.Warn("model returned an empty answer", "session_id", sessionID)
		return
	}
	if _, err := s.sessions.AddMessage(ctx, sessionID, &core.Message{Role: core.RoleAssistant, Content: answer}); err != nil {
		s.logger.Error("failed to record answer", "session_id", sessionID, "err", err)
	}
}

// historyQuery folds recent conversation into the retrieval query so that
// follow-up questions find the documents the conversation is about.
func historyQuery(history []core.Message, message string) string {
	if len(history) == 0 {
		return message
	}
	lines := make([]string, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role == core.RoleUser {
			lines = append(lines, "User: "+msg.Content)
		} else {
			lines = append(lines, "Assistant: "+msg.Content)
		}
	}
	lines = append(lines, "User: "+message)
	return strings.Join(lines, "\n")
}
