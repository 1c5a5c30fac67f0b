package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/acyrxbrown/chat-app/internal/ai"
	"github.com/acyrxbrown/chat-app/internal/assist"
	"github.com/acyrxbrown/chat-app/internal/blob"
	"github.com/acyrxbrown/chat-app/internal/feed"
	"github.com/acyrxbrown/chat-app/internal/search"
	"github.com/acyrxbrown/chat-app/internal/social"
	"github.com/acyrxbrown/chat-app/internal/store"
	"github.com/acyrxbrown/chat-app/internal/thread"
	"github.com/acyrxbrown/chat-app/internal/timeline"
	"github.com/acyrxbrown/chat-app/internal/util"
)

// enrichTimeout bounds the background work hanging off one committed
// message (classification, assistant interjection, generation).
const enrichTimeout = 5 * time.Minute

type SendMessageInput struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	FileType    string `json:"fileType"`
	ReplyTo     string `json:"replyTo"`
}

type CreateChatInput struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	ParticipantIDs []string `json:"participantIds"`
}

var allowedMessageTypes = map[string]struct{}{
	store.MessageTypeText:     {},
	store.MessageTypeGIF:      {},
	store.MessageTypeSticker:  {},
	store.MessageTypeFile:     {},
	store.MessageTypeImage:    {},
	store.MessageTypePoll:     {},
	store.MessageTypeTask:     {},
	store.MessageTypeCalendar: {},
	store.MessageTypeReminder: {},
}

var allowedSuggestionStatus = map[string]struct{}{
	"accepted": {},
	"ignored":  {},
}

type dataStore interface {
	GetProfile(context.Context, string) (store.Profile, error)
	GetChat(context.Context, string) (store.Chat, error)
	InsertChat(context.Context, store.Chat) (store.Chat, error)
	AddParticipant(context.Context, string, string) error
	ListParticipants(context.Context, string) ([]store.ChatParticipant, error)
	ListChatIDs(context.Context, string) ([]string, error)
	TouchChat(context.Context, string) error
	InsertMessage(context.Context, store.Message) (store.Message, error)
	GetMessage(context.Context, string) (store.Message, error)
	ListMessages(context.Context, string, int) ([]store.Message, error)
	ListMessagesWithDeleted(context.Context, string) ([]store.Message, error)
	SoftDeleteMessage(context.Context, string, string) (store.Message, error)
	ListChannelSuggestions(context.Context, string) ([]store.ChannelSuggestion, error)
	UpdateSuggestionStatus(context.Context, string, string) error
	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, int) ([]store.Notification, error)
	MarkNotificationRead(context.Context, string, string) error
	Ping(ctx context.Context) error
}

// feedSubscription is the consuming half of one conversation's event stream.
type feedSubscription interface {
	Events() <-chan feed.Event
	Close()
}

type feedSource interface {
	Subscribe(ctx context.Context, chatID string) (feedSubscription, error)
}

type feedPublisher interface {
	MessageInserted(ctx context.Context, msg store.Message) error
	MessageUpdated(ctx context.Context, msg store.Message) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexMessage(rec search.MessageRecord)
	DeleteMessage(id string)
}

type blobStore interface {
	Put(ctx context.Context, chatID, userID, filename, contentType string, size int64, r io.Reader) (*blob.Upload, error)
	PutGenerated(ctx context.Context, chatID, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, fileURL string) error
}

type socialCoach interface {
	SuggestReplies(ctx context.Context, message string, history []ai.Turn) []social.ReplySuggestion
	AnalyzeTone(ctx context.Context, message string) social.ToneAnalysis
	ConversationStarters(ctx context.Context, recipientName string) []string
}

type mediaGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
	GenerateVideo(ctx context.Context, prompt string) (string, error)
}

type topicPipeline interface {
	Process(ctx context.Context, msg store.Message) error
}

type assistHandler interface {
	Handle(ctx context.Context, msg store.Message, history []store.Message, aiEnabled bool) assist.State
}

// AdapterSource wraps a feed.Adapter so callers depend on the subscription
// behavior rather than the concrete Redis-backed type.
type AdapterSource struct {
	Adapter *feed.Adapter
}

func (a AdapterSource) Subscribe(ctx context.Context, chatID string) (feedSubscription, error) {
	sub, err := a.Adapter.Subscribe(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// conversationSession is the server-side state of one open conversation:
// its reconciler and the feed subscription driving it.
type conversationSession struct {
	chatID     string
	reconciler *timeline.Reconciler
	sub        feedSubscription
	done       chan struct{}
}

type Service struct {
	store     dataStore
	feed      feedSource
	publisher feedPublisher
	search    searchIndex // nil when search is not configured
	blobs     blobStore   // nil when object storage is not configured
	coach     socialCoach // nil when AI is not configured
	generator mediaGenerator
	assistant assistHandler
	topics    topicPipeline

	assistantID   string
	aiEnabled     bool
	historyWindow int
	pendingTTL    time.Duration

	mu       sync.Mutex
	sessions map[string]*conversationSession
}

type ServiceConfig struct {
	Store         dataStore
	Feed          feedSource
	Publisher     feedPublisher
	Search        searchIndex
	Blobs         blobStore
	Coach         socialCoach
	Generator     mediaGenerator
	Assistant     assistHandler
	Topics        topicPipeline
	AssistantID   string
	AIEnabled     bool
	HistoryWindow int
	PendingTTL    time.Duration
}

func NewService(cfg ServiceConfig) *Service {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = 10
	}
	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		store:         cfg.Store,
		feed:          cfg.Feed,
		publisher:     cfg.Publisher,
		search:        cfg.Search,
		blobs:         cfg.Blobs,
		coach:         cfg.Coach,
		generator:     cfg.Generator,
		assistant:     cfg.Assistant,
		topics:        cfg.Topics,
		assistantID:   cfg.AssistantID,
		aiEnabled:     cfg.AIEnabled,
		historyWindow: window,
		pendingTTL:    ttl,
		sessions:      make(map[string]*conversationSession),
	}
}

// SetAssistant wires the interjection handler after construction. The
// handler commits replies through this service, so it cannot exist before
// the service does.
func (s *Service) SetAssistant(h assistHandler) {
	s.assistant = h
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// OpenConversation starts a session for a chat: subscribe to the change feed
// first, then hydrate from the store, so nothing committed in between can be
// missed; at worst the feed re-delivers rows the fetch already returned,
// which the cache absorbs. Reopening an already-open chat closes the old
// session first.
func (s *Service) OpenConversation(ctx context.Context, chatID, userID string) (int, error) {
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return 0, err
	}
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return 0, err
	}

	s.closeSession(chatID)

	sub, err := s.feed.Subscribe(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("subscribe chat %s: %w", chatID, err)
	}

	messages, err := s.store.ListMessages(ctx, chatID, 200)
	if err != nil {
		sub.Close()
		return 0, fmt.Errorf("hydrate chat %s: %w", chatID, err)
	}

	rec := timeline.NewReconciler()
	rec.Hydrate(messages)

	session := &conversationSession{
		chatID:     chatID,
		reconciler: rec,
		sub:        sub,
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[chatID] = session
	s.mu.Unlock()

	go s.consume(session)

	return len(messages), nil
}

// CloseConversation tears the session down. The subscription closes before
// the session is forgotten, so a subsequent open never races a stale pump.
// Only a participant can close a chat's session.
func (s *Service) CloseConversation(ctx context.Context, chatID, userID string) error {
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return err
	}
	s.closeSession(chatID)
	return nil
}

func (s *Service) closeSession(chatID string) {
	s.mu.Lock()
	session, ok := s.sessions[chatID]
	if ok {
		delete(s.sessions, chatID)
	}
	s.mu.Unlock()

	if ok {
		session.sub.Close()
		<-session.done
	}
}

func (s *Service) session(chatID string) (*conversationSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[chatID]
	return session, ok
}

// consume drives one session's reconciler from the feed. Every event funnels
// through Apply; malformed or duplicate deliveries are absorbed there.
func (s *Service) consume(session *conversationSession) {
	defer close(session.done)
	for event := range session.sub.Events() {
		session.reconciler.Apply(event)
	}
}

// Messages returns the session's cache snapshot plus per-message direct
// reply counts for thread affordances. The conversation must be open and the
// caller a participant; the snapshot is the reconciled view, not a store
// read.
func (s *Service) Messages(ctx context.Context, chatID, userID string) ([]timeline.Entry, map[string]int, error) {
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return nil, nil, err
	}
	session, ok := s.session(chatID)
	if !ok {
		return nil, nil, domainError(http.StatusConflict, "CONVERSATION_NOT_OPEN", "Conversation is not open", nil)
	}
	rows, err := s.store.ListMessagesWithDeleted(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("load reply counts: %w", err)
	}
	return session.reconciler.Snapshot(), thread.ReplyCounts(rows), nil
}

// SendMessage runs the optimistic send flow: a client-minted entry lands in
// the cache immediately, the store write follows, and confirmation replaces
// the optimistic row. On store failure the entry flips to failed and stays
// visible; there is no automatic retry.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID string, input SendMessageInput) (timeline.Entry, error) {
	msg, err := s.validateSend(ctx, chatID, senderID, input)
	if err != nil {
		return timeline.Entry{}, err
	}

	session, open := s.session(chatID)
	if open {
		session.reconciler.AppendLocal(msg)
	}

	committed, err := s.CommitMessage(ctx, msg)
	if err != nil {
		if open {
			session.reconciler.FailSend(msg.ID)
		}
		log.Printf("app: send message chat=%s: %v", chatID, err)
		return timeline.Entry{Message: msg, State: timeline.StateFailed},
			domainError(http.StatusBadGateway, "SEND_FAILED", "Message could not be committed", nil)
	}

	if open {
		session.reconciler.ConfirmSend(msg.ID, committed)
	}

	go s.enrich(committed)

	return timeline.Entry{Message: committed, State: timeline.StateConfirmed}, nil
}

func (s *Service) validateSend(ctx context.Context, chatID, senderID string, input SendMessageInput) (store.Message, error) {
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return store.Message{}, err
	}
	if err := s.requireParticipant(ctx, chatID, senderID); err != nil {
		return store.Message{}, err
	}

	messageType := input.MessageType
	if messageType == "" {
		messageType = store.MessageTypeText
	}
	if _, ok := allowedMessageTypes[messageType]; !ok {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("unsupported message type %q", messageType), nil)
	}

	content := strings.TrimSpace(input.Content)
	if content == "" && input.FileURL == "" {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"content is required", nil)
	}

	if input.ReplyTo != "" {
		parent, err := s.store.GetMessage(ctx, input.ReplyTo)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
					"replyTo message does not exist", nil)
			}
			return store.Message{}, err
		}
		if parent.ChatID != chatID {
			return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				"replyTo message belongs to another chat", nil)
		}
	}

	return store.Message{
		// Provisional id and timestamp; the commit mints the durable row.
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Type:      messageType,
		CreatedAt: time.Now().UTC(),
		ReplyTo:   input.ReplyTo,
		FileURL:   input.FileURL,
		FileName:  input.FileName,
		FileSize:  input.FileSize,
		FileType:  input.FileType,
	}, nil
}

// CommitMessage is the single write path for messages: store insert, chat
// activity bump, feed publish, search index. The publish happens strictly
// after the insert commits; activity and indexing failures are log-only.
func (s *Service) CommitMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	committed, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		return store.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := s.store.TouchChat(ctx, committed.ChatID); err != nil {
		log.Printf("app: touch chat %s: %v", committed.ChatID, err)
	}
	if err := s.publisher.MessageInserted(ctx, committed); err != nil {
		log.Printf("app: publish insert %s: %v", committed.ID, err)
	}
	if s.search != nil {
		s.search.IndexMessage(search.MessageRecord{
			ID:          committed.ID,
			ChatID:      committed.ChatID,
			SenderID:    committed.SenderID,
			Content:     committed.Content,
			MessageType: committed.Type,
			CreatedAt:   committed.CreatedAt.Unix(),
		})
	}
	return committed, nil
}

// DeleteMessage soft-deletes an author's own message and announces the
// update; subscribers fold the deleted_at update into a removal.
func (s *Service) DeleteMessage(ctx context.Context, id, userID string) error {
	deleted, err := s.store.SoftDeleteMessage(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if existing, getErr := s.store.GetMessage(ctx, id); getErr == nil && existing.SenderID != userID {
				return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author can delete a message", nil)
			}
			return domainError(http.StatusNotFound, "NOT_FOUND", "Message not found", nil)
		}
		return err
	}

	if err := s.publisher.MessageUpdated(ctx, deleted); err != nil {
		log.Printf("app: publish delete %s: %v", id, err)
	}
	if s.search != nil {
		s.search.DeleteMessage(id)
	}
	if s.blobs != nil && deleted.FileURL != "" {
		if err := s.blobs.Remove(ctx, deleted.FileURL); err != nil {
			log.Printf("app: remove attachment for %s: %v", id, err)
		}
	}
	return nil
}

// Thread reconstructs the reply chain rooted at a message, for callers who
// participate in the message's chat. The walk runs over all rows including
// soft-deleted ones so branches survive a deleted parent, but deleted rows
// themselves are not returned.
func (s *Service) Thread(ctx context.Context, messageID, userID string) ([]thread.Node, error) {
	root, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, root.ChatID, userID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessagesWithDeleted(ctx, root.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load thread rows: %w", err)
	}
	return thread.Reconstruct(messages, messageID), nil
}

// UploadAttachment stores a file and returns the fields the subsequent send
// should carry. The upload does not create a message by itself.
func (s *Service) UploadAttachment(ctx context.Context, chatID, userID, filename, contentType string, size int64, r io.Reader) (*blob.Upload, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil)
	}
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	upload, err := s.blobs.Put(ctx, chatID, userID, filename, contentType, size, r)
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	return upload, nil
}

// SuggestReplies drafts responses to a message in the context of the chat's
// recent history. Always returns suggestions; AI failure degrades to canned
// fallbacks inside the coach.
func (s *Service) SuggestReplies(ctx context.Context, chatID, userID, message string) ([]social.ReplySuggestion, error) {
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if s.coach == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI coaching is not configured", nil)
	}
	if strings.TrimSpace(message) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message is required", nil)
	}
	history, err := s.recentTurns(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return s.coach.SuggestReplies(ctx, message, history), nil
}

func (s *Service) AnalyzeTone(ctx context.Context, message string) (social.ToneAnalysis, error) {
	if s.coach == nil {
		return social.ToneAnalysis{}, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI coaching is not configured", nil)
	}
	if strings.TrimSpace(message) == "" {
		return social.ToneAnalysis{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message is required", nil)
	}
	return s.coach.AnalyzeTone(ctx, message), nil
}

// ConversationStarters proposes openers for a chat, named after the first
// participant who is not the caller.
func (s *Service) ConversationStarters(ctx context.Context, chatID, userID string) ([]string, error) {
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if s.coach == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI coaching is not configured", nil)
	}
	recipient := ""
	participants, err := s.store.ListParticipants(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.UserID != userID {
			if profile, err := s.store.GetProfile(ctx, p.UserID); err == nil {
				recipient = profile.FullName
			}
			break
		}
	}
	return s.coach.ConversationStarters(ctx, recipient), nil
}

func (s *Service) recentTurns(ctx context.Context, chatID, userID string) ([]ai.Turn, error) {
	messages, err := s.store.ListMessages(ctx, chatID, s.historyWindow)
	if err != nil {
		return nil, err
	}
	turns := make([]ai.Turn, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.SenderID != userID {
			role = "model"
		}
		turns = append(turns, ai.Turn{Role: role, Content: msg.Content})
	}
	return turns, nil
}

func (s *Service) ChannelSuggestions(ctx context.Context, chatID, userID string) ([]store.ChannelSuggestion, error) {
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.store.ListChannelSuggestions(ctx, chatID)
}

func (s *Service) ResolveSuggestion(ctx context.Context, id, status string) error {
	if _, ok := allowedSuggestionStatus[status]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("unsupported suggestion status %q", status), nil)
	}
	return s.store.UpdateSuggestionStatus(ctx, id, status)
}

// SearchMessages confines every search to chats the caller belongs to: an
// explicit chat filter requires membership, otherwise the query is scoped to
// the caller's chat set.
func (s *Service) SearchMessages(ctx context.Context, userID string, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if q.FilterChatID != "" {
		if err := s.requireParticipant(ctx, q.FilterChatID, userID); err != nil {
			return search.Response{}, err
		}
	} else {
		chatIDs, err := s.store.ListChatIDs(ctx, userID)
		if err != nil {
			return search.Response{}, fmt.Errorf("list caller chats: %w", err)
		}
		if len(chatIDs) == 0 {
			return search.Response{Results: []search.Result{}, Query: q.Text}, nil
		}
		q.ScopeChatIDs = chatIDs
	}
	return s.search.Search(q), nil
}

func (s *Service) Notifications(ctx context.Context, userID string) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, userID, 50)
}

func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return s.store.MarkNotificationRead(ctx, id, userID)
}

func (s *Service) CreateChat(ctx context.Context, creatorID string, input CreateChatInput) (store.Chat, error) {
	if input.Type != "direct" && input.Type != "group" {
		return store.Chat{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"chat type must be direct or group", nil)
	}
	chat, err := s.store.InsertChat(ctx, store.Chat{
		ID:        util.NewID("chat"),
		Name:      input.Name,
		Type:      input.Type,
		CreatedBy: creatorID,
	})
	if err != nil {
		return store.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	members := append([]string{creatorID}, input.ParticipantIDs...)
	if s.assistantID != "" {
		members = append(members, s.assistantID)
	}
	for _, userID := range members {
		if err := s.store.AddParticipant(ctx, chat.ID, userID); err != nil {
			log.Printf("app: add participant %s to %s: %v", userID, chat.ID, err)
		}
	}
	return chat, nil
}

// ExpirePendingSends marks optimistic entries older than the pending TTL as
// failed across all open sessions. Run periodically; returns how many
// entries expired.
func (s *Service) ExpirePendingSends() int {
	s.mu.Lock()
	sessions := make([]*conversationSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	total := 0
	for _, session := range sessions {
		expired := session.reconciler.ExpirePending(s.pendingTTL)
		if len(expired) > 0 {
			log.Printf("app: expired %d pending sends chat=%s", len(expired), session.chatID)
		}
		total += len(expired)
	}
	return total
}

func (s *Service) requireParticipant(ctx context.Context, chatID, userID string) error {
	participants, err := s.store.ListParticipants(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	for _, p := range participants {
		if p.UserID == userID {
			return nil
		}
	}
	return domainError(http.StatusForbidden, "FORBIDDEN", "Not a participant of this chat", nil)
}

// enrich runs the post-commit pipelines for a user-sent message: assistant
// interjection, media generation, topic classification, and participant
// notifications. Detached from the request context; nothing here can fail
// the send that triggered it.
func (s *Service) enrich(msg store.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	defer cancel()

	if msg.SenderID == s.assistantID {
		return
	}

	s.notifyParticipants(ctx, msg)

	if kind, prompt, ok := assist.ParseDiffusion(msg.Content); ok {
		s.generate(ctx, msg, kind, prompt)
	} else if s.assistant != nil && assist.DetectTag(msg.Content) {
		history, err := s.store.ListMessages(ctx, msg.ChatID, s.historyWindow+1)
		if err != nil {
			log.Printf("app: assistant history chat=%s: %v", msg.ChatID, err)
			history = nil
		}
		s.assistant.Handle(ctx, msg, history, s.aiEnabled)
	}

	if s.topics != nil && msg.Type == store.MessageTypeText {
		if err := s.topics.Process(ctx, msg); err != nil {
			log.Printf("app: classify message %s: %v", msg.ID, err)
		}
	}
}

// generate handles an in-chat media generation request. Success injects the
// media as an assistant message; failure injects an explicit text message so
// the requester learns whether access or time was the problem.
func (s *Service) generate(ctx context.Context, trigger store.Message, kind assist.DiffusionKind, prompt string) {
	if s.generator == nil || !s.aiEnabled {
		return
	}

	reply := store.Message{
		ChatID:   trigger.ChatID,
		SenderID: s.assistantID,
		Type:     store.MessageTypeText,
	}

	switch kind {
	case assist.DiffusionPhoto:
		data, mime, err := s.generator.GenerateImage(ctx, prompt)
		if err != nil {
			reply.Content = generationFailureText("image", err)
			break
		}
		if s.blobs == nil {
			reply.Content = "I generated the image but have nowhere to store it."
			break
		}
		url, err := s.blobs.PutGenerated(ctx, trigger.ChatID, mime, data)
		if err != nil {
			log.Printf("app: store generated image chat=%s: %v", trigger.ChatID, err)
			reply.Content = "I generated the image but could not store it."
			break
		}
		reply.Type = store.MessageTypeImage
		reply.Content = prompt
		reply.FileURL = url
		reply.FileType = mime
	case assist.DiffusionVideo:
		uri, err := s.generator.GenerateVideo(ctx, prompt)
		if err != nil {
			reply.Content = generationFailureText("video", err)
			break
		}
		reply.Type = store.MessageTypeFile
		reply.Content = prompt
		reply.FileURL = uri
		reply.FileType = "video/mp4"
	default:
		return
	}

	if _, err := s.CommitMessage(ctx, reply); err != nil {
		log.Printf("app: commit generation reply chat=%s: %v", trigger.ChatID, err)
	}
}

func generationFailureText(medium string, err error) string {
	switch {
	case errors.Is(err, ai.ErrAccessDenied):
		return fmt.Sprintf("I couldn't generate that %s: the configured model isn't accessible with the current plan.", medium)
	case errors.Is(err, ai.ErrTimedOut):
		return fmt.Sprintf("I couldn't generate that %s: the generation timed out. Please try again.", medium)
	default:
		return fmt.Sprintf("I couldn't generate that %s right now. Please try again later.", medium)
	}
}

// truncateBody cuts s to at most max bytes without splitting a rune.
func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// notifyParticipants records a notification row for everyone in the chat
// except the sender. Reply targets get a reply notification instead of a
// plain message one.
func (s *Service) notifyParticipants(ctx context.Context, msg store.Message) {
	participants, err := s.store.ListParticipants(ctx, msg.ChatID)
	if err != nil {
		log.Printf("app: notify list participants chat=%s: %v", msg.ChatID, err)
		return
	}

	replyTarget := ""
	if msg.ReplyTo != "" {
		if parent, err := s.store.GetMessage(ctx, msg.ReplyTo); err == nil {
			replyTarget = parent.SenderID
		}
	}

	body := truncateBody(msg.Content, 120)

	for _, p := range participants {
		if p.UserID == msg.SenderID || p.UserID == s.assistantID {
			continue
		}
		kind := "message"
		title := "New message"
		if p.UserID == replyTarget {
			kind = "reply"
			title = "New reply"
		}
		n := store.Notification{
			ID:        util.NewID("ntf"),
			UserID:    p.UserID,
			ChatID:    msg.ChatID,
			MessageID: msg.ID,
			Type:      kind,
			Title:     title,
			Body:      body,
		}
		if err := s.store.InsertNotification(ctx, n); err != nil {
			log.Printf("app: insert notification user=%s: %v", p.UserID, err)
		}
	}
}
