package badger

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/storage"
)

// SessionRepository implements storage.SessionRepository for BadgerDB.
// A session is a header record plus one record per message, keyed by a
// global sequence so messages iterate in append order.
type SessionRepository struct {
	backend *Backend
	msgSeq  *badger.Sequence
}

var _ storage.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(backend *Backend) (*SessionRepository, error) {
	msgSeq, err := backend.GetSequence(sessionMsgSeq)
	if err != nil {
		return nil, err
	}

	return &SessionRepository{
		backend: backend,
		msgSeq:  msgSeq,
	}, nil
}

// Close releases the message sequence.
func (r *SessionRepository) Close() error {
	return r.msgSeq.Release()
}

// CreateSession creates an empty session with a random ID.
func (r *SessionRepository) CreateSession(ctx context.Context, title string) (*core.Session, error) {
	session := &core.Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		Messages:  []core.Message{},
	}
	err := r.backend.Update(func(tx *badger.Txn) error {
		if title == "" {
			session.Title = core.DefaultTitle(countPrefix(tx, []byte(sessionRecPrefix)) + 1)
		}
		return tx.Set(makeSessionKey(session.ID), storage.MarshalSession(session))
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AddMessage appends msg to the session log.
func (r *SessionRepository) AddMessage(ctx context.Context, sessionID string, msg *core.Message) (*core.Message, error) {
	if sessionID == "" {
		return nil, storage.ErrNotFound
	}
	stored := *msg
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	if err := core.ValidateMessage(&stored); err != nil {
		return nil, err
	}

	err := r.backend.Update(func(tx *badger.Txn) error {
		session, err := readSession(tx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			// Unknown sessions are created on first use and stay untitled
			// until a user message names them.
			session = &core.Session{ID: sessionID, CreatedAt: stored.Timestamp}
		}

		seq, err := nextSeq(r.msgSeq)
		if err != nil {
			return err
		}
		if err := tx.Set(makeSessionMessageKey(sessionID, seq), storage.MarshalMessage(&stored)); err != nil {
			return err
		}

		if stored.Role == core.RoleUser && core.IsDefaultTitle(session.Title) &&
			countPrefix(tx, makeSessionMessagesPrefix(sessionID)) <= 2 {
			session.Title = core.TitleFromMessage(stored.Content)
		}
		return tx.Set(makeSessionKey(sessionID), storage.MarshalSession(session))
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetSession retrieves a session with its full message log.
func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	var result *core.Session
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		session, err := readSession(tx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return storage.ErrNotFound
		}
		session.Messages, err = readMessages(tx, sessionID)
		if err != nil {
			return err
		}
		result = session
		return nil
	}, false)
	return result, err
}

// ListSessions summarizes every session, newest first.
func (r *SessionRepository) ListSessions(ctx context.Context) ([]core.SessionSummary, error) {
	summaries := []core.SessionSummary{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionRecPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var session *core.Session
			err := iter.Item().Value(func(val []byte) error {
				var err error
				session, err = storage.UnmarshalSession(val)
				return err
			})
			if err != nil {
				return err
			}
			session.Messages, err = readMessages(tx, session.ID)
			if err != nil {
				return err
			}
			summaries = append(summaries, core.Summarize(session))
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(summaries, func(a, b core.SessionSummary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return summaries, nil
}

// RecentMessages returns the last limit messages of a session, oldest first.
func (r *SessionRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	messages := []core.Message{}
	if limit <= 0 {
		return messages, nil
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeSessionMessagesPrefix(sessionID)
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration must seek past the last key under the prefix.
		for iter.Seek(makeSessionMessageKey(sessionID, math.MaxUint64)); iter.Valid() && len(messages) < limit; iter.Next() {
			msg, err := unmarshalMessageItem(iter.Item())
			if err != nil {
				return err
			}
			messages = append(messages, *msg)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// UpdateTitle renames a session.
func (r *SessionRepository) UpdateTitle(ctx context.Context, sessionID, title string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		session, err := readSession(tx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return storage.ErrNotFound
		}
		session.Title = title
		return tx.Set(makeSessionKey(sessionID), storage.MarshalSession(session))
	})
}

// DeleteSession removes a session header and its message log.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	err := r.backend.Update(func(tx *badger.Txn) error {
		session, err := readSession(tx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return storage.ErrNotFound
		}
		return tx.Delete(makeSessionKey(sessionID))
	})
	if err != nil {
		return err
	}
	_, err = r.backend.DeletePrefix(makeSessionMessagesPrefix(sessionID))
	return err
}

// ClearSessions removes every session.
func (r *SessionRepository) ClearSessions(ctx context.Context) (int, error) {
	count, err := r.backend.CountPrefix([]byte(sessionRecPrefix))
	if err != nil {
		return 0, err
	}
	if _, err := r.backend.DeletePrefix([]byte(sessionPrefix + ":")); err != nil {
		return 0, err
	}
	return count, nil
}

// Helper functions

// readSession returns nil when the session does not exist.
func readSession(tx *badger.Txn, sessionID string) (*core.Session, error) {
	item, err := tx.Get(makeSessionKey(sessionID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var session *core.Session
	err = item.Value(func(val []byte) error {
		var err error
		session, err = storage.UnmarshalSession(val)
		return err
	})
	return session, err
}

func readMessages(tx *badger.Txn, sessionID string) ([]core.Message, error) {
	messages := []core.Message{}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeSessionMessagesPrefix(sessionID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		msg, err := unmarshalMessageItem(iter.Item())
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

func unmarshalMessageItem(item *badger.Item) (*core.Message, error) {
	var msg *core.Message
	err := item.Value(func(val []byte) error {
		var err error
		msg, err = storage.UnmarshalMessage(val)
		return err
	})
	return msg, err
}
