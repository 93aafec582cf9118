// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/dlms/internal/platform/apperr"
	"github.com/taibuivan/dlms/internal/platform/validate"
	"github.com/taibuivan/dlms/pkg/pointer"
	"github.com/taibuivan/dlms/pkg/slice"
)

// chatPlaceholder is shown as the answer until the server responds.
const chatPlaceholder = "Processing your question..."

// Upper bounds on user text, in characters.
const (
	MaxContentLength  = 5000
	MaxQuestionLength = 2000
)

// # Field Identifiers

const (
	FieldKind         = "kind"
	FieldContent      = "content"
	FieldQuestion     = "question"
	FieldResource     = "resource"
	FieldResourceType = "resource_type"
)

// Messages recorded in LastError when the API gives no message of its own.
var fallbackMessages = map[Kind]map[string]string{
	KindNote: {"create": "Failed to save note", "delete": "Failed to delete note"},
	KindChat: {"create": "Failed to send message", "delete": "Failed to delete message"},
}

// collection is one ordered list plus its pending-tracking maps.
type collection struct {
	items []Annotation

	// pending holds every unconfirmed record by temp id.
	pending map[ID]Annotation

	// inFlight marks pending records with a create request outstanding.
	inFlight map[ID]bool

	// deleting marks confirmed records with a delete request outstanding.
	deleting map[ID]bool

	// confirmed and deleted stamp server ids settled locally while a sync
	// was in flight, with the store's mutation counter at that moment.
	confirmed map[ID]uint64
	deleted   map[ID]uint64

	lastError string
}

func newCollection() *collection {
	return &collection{
		pending:   map[ID]Annotation{},
		inFlight:  map[ID]bool{},
		deleting:  map[ID]bool{},
		confirmed: map[ID]uint64{},
		deleted:   map[ID]uint64{},
	}
}

func (c *collection) indexOf(id ID) int {
	return slices.IndexFunc(c.items, func(item Annotation) bool { return item.ID == id })
}

func (c *collection) pendingSet() map[ID]struct{} {
	set := make(map[ID]struct{}, len(c.pending))
	for id := range c.pending {
		set[id] = struct{}{}
	}
	return set
}

// protectedSince is the pending set plus every record confirmed after the
// fetch that started at mark and missing from its answer.
func (c *collection) protectedSince(mark uint64, server []Annotation) map[ID]struct{} {
	set := c.pendingSet()
	for id, at := range c.confirmed {
		if at <= mark {
			continue
		}
		if !slices.ContainsFunc(server, func(item Annotation) bool { return item.ID == id }) {
			set[id] = struct{}{}
		}
	}
	return set
}

// liveSince drops server records that are being deleted, or were deleted
// after the fetch that started at mark.
func (c *collection) liveSince(mark uint64, server []Annotation) []Annotation {
	return slice.Filter(server, func(item Annotation) bool {
		return !c.deleting[item.ID] && c.deleted[item.ID] <= mark
	})
}

// ReadingContext is where the reader currently is inside the resource.
type ReadingContext struct {
	Page         int     `json:"page"`
	Timestamp    float64 `json:"timestamp"`
	SelectedText string  `json:"selected_text"`
}

// ContextUpdate changes the reading context. Nil fields are left unchanged;
// SelectedText is always replaced.
type ContextUpdate struct {
	Page         *int     `json:"page"`
	Timestamp    *float64 `json:"timestamp"`
	SelectedText string   `json:"selected_text"`
}

// Options carries the store's collaborators.
type Options struct {
	Backend Backend
	States  StateStore
	Logger  *slog.Logger
	Now     func() time.Time
}

// Store is the optimistic annotation store of one workspace.
//
// # Concurrency
//
// Store is safe for concurrent use. State is guarded by mu; API calls and
// persistence run outside the lock.
type Store struct {
	backend Backend
	states  StateStore
	logger  *slog.Logger
	now     func() time.Time

	mu           sync.Mutex
	resource     *Resource
	resourceType ResourceType
	generation   uint64
	collections  map[Kind]*collection
	reading      ReadingContext
	sequence     uint64
	version      uint64

	// mutations counts settled creates and deletes; syncing counts fetches
	// in flight.
	mutations uint64
	syncing   int

	persistMu sync.Mutex
	persisted uint64
}

// NewStore creates an empty store.
func NewStore(options Options) *Store {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := options.Now
	if now == nil {
		now = time.Now
	}

	store := &Store{
		backend: options.Backend,
		states:  options.States,
		logger:  logger,
		now:     now,
	}
	store.reset()
	return store
}

// reset must be called with mu held (or before the store is shared).
func (s *Store) reset() {
	s.resource = nil
	s.resourceType = ""
	s.collections = map[Kind]*collection{KindNote: newCollection(), KindChat: newCollection()}
	s.reading = ReadingContext{Page: 1}
}

// # Lifecycle

/*
Initialize opens a resource and seeds both collections from it.

Parameters:
  - resource: Resource (its Notes and ChatMessages become the confirmed collections)
  - resourceType: ResourceType ("pdf" or "video")

Returns:
  - error: ValidationError for an unknown type or missing resource id
*/
func (s *Store) Initialize(context context.Context, resource Resource, resourceType ResourceType) error {
	validator := &validate.Validator{}
	validator.
		Custom(FieldResource, resource.ID <= 0, "A resource id is required").
		OneOf(FieldResourceType, string(resourceType), string(ResourceTypePDF), string(ResourceTypeVideo))
	if err := validator.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.generation++
	s.reset()
	s.resource = &Resource{ID: resource.ID, Title: resource.Title}
	s.resourceType = resourceType
	s.collections[KindNote].items = s.normalize(KindNote, resource.Notes)
	s.collections[KindChat].items = s.normalize(KindChat, resource.ChatMessages)
	s.mu.Unlock()

	s.logger.InfoContext(context, "reader_initialized",
		slog.Int64("resource_id", resource.ID),
		slog.String("resource_type", string(resourceType)),
	)
	s.persist(context)
	return nil
}

// UpdateContext moves the reading position.
func (s *Store) UpdateContext(context context.Context, update ContextUpdate) {
	s.mu.Lock()
	if update.Page != nil {
		s.reading.Page = *update.Page
	}
	if update.Timestamp != nil {
		s.reading.Timestamp = *update.Timestamp
	}
	s.reading.SelectedText = update.SelectedText
	s.mu.Unlock()
}

// Clear closes the resource and forgets everything, including the persisted snapshot.
func (s *Store) Clear(context context.Context) {
	s.mu.Lock()
	s.generation++
	s.reset()
	s.version++
	version := s.version
	s.mu.Unlock()

	if s.states == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.persisted = version

	if err := s.states.DeleteSnapshot(context); err != nil {
		s.logger.WarnContext(context, "reader_state_delete_failed", slog.Any("error", err))
	}
}

/*
Restore rehydrates the store from its [StateStore].

Pending records in the snapshot are re-registered in the pending-tracking
maps (not in flight), so [Store.RetryFailedOperations] can replay them.
*/
func (s *Store) Restore(context context.Context) error {
	if s.states == nil {
		return nil
	}

	snapshot, err := s.states.LoadSnapshot(context)
	if err != nil {
		return err
	}
	if snapshot == nil || snapshot.Resource == nil || !snapshot.ResourceType.Valid() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.reset()
	s.resource = &Resource{ID: snapshot.Resource.ID, Title: snapshot.Resource.Title}
	s.resourceType = snapshot.ResourceType

	restored := map[Kind][]Annotation{KindNote: snapshot.Notes, KindChat: snapshot.ChatMessages}
	for kind, items := range restored {
		target := s.collections[kind]
		for _, item := range items {
			item.Kind = kind
			if item.Pending() {
				target.pending[item.ID] = item
			}
			// New temp ids must not collide with restored ones.
			if sequence, ok := item.ID.tempSequence(); ok {
				s.sequence = max(s.sequence, sequence)
			}
			target.items = append(target.items, item)
		}
	}
	return nil
}

// # Mutations

/*
AddAnnotation creates a note or chat message optimistically.

Flow:
 1. Validate the text and the open resource (nothing changes on failure).
 2. Append a Pending record with a temp id.
 3. POST it; on success replace the record in place with the server's.
 4. On failure remove the record, set LastError and return the error.

Returns:
  - *Annotation: The confirmed server record
  - error: ValidationError, or the API failure after rollback
*/
func (s *Store) AddAnnotation(context context.Context, kind Kind, input Input) (*Annotation, error) {
	s.mu.Lock()

	text, field, limit := input.Content, FieldContent, MaxContentLength
	if kind == KindChat {
		text, field, limit = input.Question, FieldQuestion, MaxQuestionLength
	}

	validator := &validate.Validator{}
	validator.
		OneOf(FieldKind, string(kind), string(KindNote), string(KindChat)).
		Required(field, text).
		MaxLen(field, text, limit).
		Custom(FieldResource, s.resource == nil, "No resource is open")
	if err := validator.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	record := s.buildRecord(kind, input)
	target := s.collections[kind]
	target.items = append(target.items, record)
	target.pending[record.ID] = record
	target.inFlight[record.ID] = true
	target.lastError = ""
	generation := s.generation
	s.mu.Unlock()

	s.persist(context)
	return s.submit(context, kind, record, generation)
}

// submit sends a pending record and reconciles the outcome by id.
func (s *Store) submit(context context.Context, kind Kind, record Annotation, generation uint64) (*Annotation, error) {
	created, err := s.backend.Create(context, kind, requestFor(record))

	s.mu.Lock()
	if s.generation != generation {
		// The resource was closed or replaced meanwhile.
		s.mu.Unlock()
		if err != nil {
			return nil, classify(err)
		}
		return created, nil
	}

	target := s.collections[kind]
	delete(target.inFlight, record.ID)
	delete(target.pending, record.ID)
	index := target.indexOf(record.ID)

	if err != nil {
		if index >= 0 {
			target.items = slices.Delete(target.items, index, index+1)
		}
		target.lastError = messageFor(err, fallbackMessages[kind]["create"])
		s.mu.Unlock()

		s.logger.WarnContext(context, "annotation_rolled_back",
			slog.String("kind", string(kind)),
			slog.String("temp_id", record.ID.String()),
			slog.Any("error", err),
		)
		s.persist(context)
		return nil, classify(err)
	}

	confirmed := *created
	confirmed.Kind = kind
	confirmed.State = StateConfirmed
	confirmed.normalizeAnchor(s.resourceType)

	if s.syncing > 0 {
		s.mutations++
		target.confirmed[confirmed.ID] = s.mutations
	}

	switch {
	case target.indexOf(confirmed.ID) >= 0:
		// A sync already delivered the server record; drop the temp copy.
		if index >= 0 {
			target.items = slices.Delete(target.items, index, index+1)
		}
	case index >= 0:
		target.items[index] = confirmed
	default:
		target.items = append(target.items, confirmed)
	}
	s.mu.Unlock()

	s.logger.DebugContext(context, "annotation_confirmed",
		slog.String("kind", string(kind)),
		slog.String("temp_id", record.ID.String()),
		slog.String("id", confirmed.ID.String()),
	)
	s.persist(context)
	return &confirmed, nil
}

/*
DeleteAnnotation removes a confirmed record optimistically.

On failure the exact record is re-inserted at its original index and the
error is returned. Records still awaiting confirmation cannot be deleted.
*/
func (s *Store) DeleteAnnotation(context context.Context, kind Kind, id ID) error {
	if !kind.Valid() {
		return validate.RequiredError(FieldKind, "Unknown annotation kind")
	}

	s.mu.Lock()
	target := s.collections[kind]
	index := target.indexOf(id)
	if index < 0 {
		s.mu.Unlock()
		return apperr.NotFound(kindLabel(kind))
	}
	if id.IsTemp() {
		s.mu.Unlock()
		return apperr.ValidationError(kindLabel(kind) + " is still being saved")
	}

	backup := target.items[index]
	target.items = slices.Delete(target.items, index, index+1)
	target.deleting[id] = true
	target.lastError = ""
	generation := s.generation
	s.mu.Unlock()

	s.persist(context)
	err := s.backend.Delete(context, kind, id)

	s.mu.Lock()
	delete(target.deleting, id)

	if err == nil {
		if s.generation == generation {
			if s.syncing > 0 {
				s.mutations++
				target.deleted[id] = s.mutations
			}
			if stale := target.indexOf(id); stale >= 0 {
				target.items = slices.Delete(target.items, stale, stale+1)
			}
		}
		s.mu.Unlock()

		s.logger.DebugContext(context, "annotation_deleted", slog.String("kind", string(kind)), slog.String("id", id.String()))
		s.persist(context)
		return nil
	}

	if s.generation == generation && target.indexOf(id) < 0 {
		target.items = slices.Insert(target.items, min(index, len(target.items)), backup)
		target.lastError = messageFor(err, fallbackMessages[kind]["delete"])
	}
	s.mu.Unlock()

	s.logger.WarnContext(context, "annotation_delete_rolled_back",
		slog.String("kind", string(kind)),
		slog.String("id", id.String()),
		slog.Any("error", err),
	)
	s.persist(context)
	return classify(err)
}

/*
SyncWithServer merges the authoritative lists into both collections.

Pending records survive untouched. The fetched lists may predate mutations
that settle while the request is out: a record confirmed meanwhile is kept,
and a record being deleted (or deleted meanwhile) is not brought back. A
failed fetch leaves the store unchanged and returns the error.
*/
func (s *Store) SyncWithServer(context context.Context) error {
	s.mu.Lock()
	if s.resource == nil {
		s.mu.Unlock()
		return apperr.ValidationError("No resource is open")
	}
	resourceID := s.resource.ID
	generation := s.generation
	mark := s.mutations
	s.syncing++
	s.mu.Unlock()

	server, err := s.backend.Fetch(context, resourceID)
	defer s.finishSync()

	s.mu.Lock()
	if err != nil {
		s.mu.Unlock()
		s.logger.WarnContext(context, "reader_sync_failed", slog.Int64("resource_id", resourceID), slog.Any("error", err))
		return classify(err)
	}
	if s.generation != generation {
		s.mu.Unlock()
		return nil
	}

	incoming := map[Kind][]Annotation{KindNote: server.Notes, KindChat: server.ChatMessages}
	for _, kind := range Kinds {
		target := s.collections[kind]
		authoritative := s.normalize(kind, incoming[kind])
		target.items = MergeServerData(target.items, target.protectedSince(mark, authoritative), target.liveSince(mark, authoritative))
	}
	s.mu.Unlock()

	s.logger.DebugContext(context, "reader_synced", slog.Int64("resource_id", resourceID))
	s.persist(context)
	return nil
}

/*
RetryFailedOperations replays every pending record that has no request in
flight (typically records restored after a reload). Each keeps its position
and temp id until confirmed or rolled back.

Returns:
  - error: All replay failures joined, or nil
*/
func (s *Store) RetryFailedOperations(context context.Context) error {
	type replay struct {
		kind   Kind
		record Annotation
	}

	s.mu.Lock()
	var replays []replay
	for _, kind := range Kinds {
		target := s.collections[kind]
		for _, item := range target.items {
			if _, pending := target.pending[item.ID]; pending && !target.inFlight[item.ID] {
				target.inFlight[item.ID] = true
				replays = append(replays, replay{kind: kind, record: target.pending[item.ID]})
			}
		}
	}
	generation := s.generation
	s.mu.Unlock()

	var errs []error
	for _, op := range replays {
		if _, err := s.submit(context, op.kind, op.record, generation); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op.kind, op.record.ID, err))
		}
	}

	if len(replays) > 0 {
		s.logger.InfoContext(context, "reader_retry_finished",
			slog.Int("attempted", len(replays)),
			slog.Int("failed", len(errs)),
		)
	}
	return errors.Join(errs...)
}

// # Read Access

// Annotations returns the collection in stored order.
func (s *Store) Annotations(kind Kind) []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.collectionFor(kind).items)
}

// Sorted returns the collection ordered by its anchor.
func (s *Store) Sorted(kind Kind) []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortAnnotations(s.collectionFor(kind).items, s.resourceType)
}

// ForCurrentPage returns records on the current page (pdf only).
func (s *Store) ForCurrentPage(kind Kind) []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return onPage(s.collectionFor(kind).items, s.resourceType, s.reading.Page)
}

// NearTimestamp returns records within ±60 s of the current position (video only).
func (s *Store) NearTimestamp(kind Kind) []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nearTimestamp(s.collectionFor(kind).items, s.resourceType, s.reading.Timestamp)
}

// HasPendingOperations reports whether any record awaits confirmation.
func (s *Store) HasPendingOperations() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPending()
}

// hasPending must be called with mu held.
func (s *Store) hasPending() bool {
	for _, target := range s.collections {
		if len(target.pending) > 0 || len(target.inFlight) > 0 {
			return true
		}
	}
	return false
}

// LastError returns the message of the last failed mutation of kind.
func (s *Store) LastError(kind Kind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectionFor(kind).lastError
}

// View is a read-only summary of the store.
type View struct {
	Resource             *Resource      `json:"resource"`
	ResourceType         ResourceType   `json:"resource_type,omitempty"`
	Context              ReadingContext `json:"context"`
	Notes                []Annotation   `json:"notes"`
	ChatMessages         []Annotation   `json:"chat_messages"`
	NotesError           string         `json:"notes_error,omitempty"`
	ChatsError           string         `json:"chats_error,omitempty"`
	HasPendingOperations bool           `json:"has_pending_operations"`
}

// View returns a consistent summary with both collections sorted by anchor.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := View{
		ResourceType:         s.resourceType,
		Context:              s.reading,
		Notes:                sortAnnotations(s.collections[KindNote].items, s.resourceType),
		ChatMessages:         sortAnnotations(s.collections[KindChat].items, s.resourceType),
		NotesError:           s.collections[KindNote].lastError,
		ChatsError:           s.collections[KindChat].lastError,
		HasPendingOperations: s.hasPending(),
	}
	if s.resource != nil {
		resource := *s.resource
		view.Resource = &resource
	}
	return view
}

// # Internal Helpers

// finishSync retires one fetch. Once none is in flight the settle stamps
// can no longer matter and are dropped.
func (s *Store) finishSync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncing--
	if s.syncing > 0 {
		return
	}
	for _, target := range s.collections {
		clear(target.confirmed)
		clear(target.deleted)
	}
}

// collectionFor must be called with mu held. Unknown kinds read as empty.
func (s *Store) collectionFor(kind Kind) *collection {
	if target, ok := s.collections[kind]; ok {
		return target
	}
	return newCollection()
}

// nextTempID must be called with mu held.
func (s *Store) nextTempID() ID {
	s.sequence++
	return TempID(s.now(), s.sequence)
}

// buildRecord must be called with mu held.
func (s *Store) buildRecord(kind Kind, input Input) Annotation {
	record := Annotation{
		ID:        s.nextTempID(),
		Kind:      kind,
		EbookID:   s.resource.ID,
		CreatedAt: s.now().UTC(),
		State:     StatePending,
	}

	if kind == KindChat {
		record.Question = input.Question
		record.AIResponse = chatPlaceholder
		record.IsAnonymous = input.IsAnonymous
	} else {
		record.Content = input.Content
	}

	if s.resourceType == ResourceTypeVideo {
		seconds := pointer.Or(input.Timestamp, s.reading.Timestamp)
		record.Timestamp = pointer.To(seconds)
		record.SentAt = input.SentAt
		if record.SentAt == "" {
			record.SentAt = FormatTimestamp(seconds)
		}
		return record
	}

	record.PageNumber = pointer.To(pointer.Or(input.PageNumber, s.reading.Page))

	record.HighlightText = pointer.NonZero(pointer.Or(input.HighlightText, ""))
	if record.HighlightText == nil {
		record.HighlightText = pointer.NonZero(s.reading.SelectedText)
	}
	return record
}

// normalize must be called with mu held.
func (s *Store) normalize(kind Kind, items []Annotation) []Annotation {
	normalized := make([]Annotation, 0, len(items))
	for _, item := range items {
		item.Kind = kind
		item.State = StateConfirmed
		item.normalizeAnchor(s.resourceType)
		normalized = append(normalized, item)
	}
	return normalized
}

// requestFor rebuilds the create payload from a pending record.
func requestFor(record Annotation) CreateRequest {
	request := CreateRequest{
		EbookID:       record.EbookID,
		PageNumber:    record.PageNumber,
		HighlightText: record.HighlightText,
		Timestamp:     record.Timestamp,
		SentAt:        record.SentAt,
	}

	if record.Kind == KindChat {
		request.Question = record.Question
		request.IsAnonymous = pointer.To(record.IsAnonymous)
	} else {
		request.Content = record.Content
	}
	return request
}

// persist saves a snapshot. Older snapshots never overwrite newer ones.
func (s *Store) persist(context context.Context) {
	if s.states == nil {
		return
	}

	s.mu.Lock()
	s.version++
	version := s.version
	snapshot := Snapshot{
		ResourceType: s.resourceType,
		Notes:        slices.Clone(s.collections[KindNote].items),
		ChatMessages: slices.Clone(s.collections[KindChat].items),
	}
	if s.resource != nil {
		resource := *s.resource
		snapshot.Resource = &resource
	}
	s.mu.Unlock()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if version <= s.persisted {
		return
	}
	s.persisted = version

	if err := s.states.SaveSnapshot(context, snapshot); err != nil {
		s.logger.WarnContext(context, "reader_state_save_failed", slog.Any("error", err))
	}
}

// classify guarantees callers always receive an [apperr.AppError].
func classify(err error) error {
	if apperr.IsAppError(err) {
		return err
	}
	return apperr.Network(err)
}

// messageFor prefers the API's message; transport and local failures use fallback.
func messageFor(err error, fallback string) string {
	appErr := apperr.As(err)
	if appErr == nil || appErr.Kind == apperr.KindNetwork || appErr.Kind == apperr.KindInternal {
		return fallback
	}
	if strings.TrimSpace(appErr.Message) == "" {
		return fallback
	}
	return appErr.Message
}

func kindLabel(kind Kind) string {
	if kind == KindChat {
		return "Chat message"
	}
	return "Note"
}
