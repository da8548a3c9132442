package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
	"github.com/redis/rueidis"
)

const defaultKeyPrefix = "studyrag"

// Config holds connection parameters for the Redis conversation store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// ConversationRepository implements storage.ConversationRepository on Redis.
//
// Layout per conversation:
//
//	<prefix>:conv:<id>:messages   list of JSON messages
//	<prefix>:conv:<id>:meta       hash with created_at and updated_at
//	<prefix>:conv:index           sorted set of ids scored by updated_at micros
//
// Both messages of a pair go out in one RPUSH, so a pair is never split.
type ConversationRepository struct {
	client rueidis.Client
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository connects to Redis via rueidis.
func NewConversationRepository(cfg Config) (*ConversationRepository, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newConversationRepository(client, cfg.KeyPrefix), nil
}

func newConversationRepository(client rueidis.Client, prefix string) *ConversationRepository {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &ConversationRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default().With("component", "redis-conversations"),
	}
}

// Ping checks connectivity.
func (r *ConversationRepository) Ping(ctx context.Context) error {
	cmd := r.client.B().Ping().Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *ConversationRepository) Close() error {
	r.client.Close()
	return nil
}

func (r *ConversationRepository) messagesKey(id string) string {
	return r.prefix + ":conv:" + id + ":messages"
}

func (r *ConversationRepository) metaKey(id string) string {
	return r.prefix + ":conv:" + id + ":meta"
}

func (r *ConversationRepository) indexKey() string {
	return r.prefix + ":conv:index"
}

// Append pushes the pair and updates metadata and the listing index in one round trip.
func (r *ConversationRepository) Append(ctx context.Context, conversationID string, user, assistant core.Message) error {
	if conversationID == "" {
		return fmt.Errorf("%w: empty conversation id", storage.ErrInvalidQuery)
	}
	if err := core.ValidateMessage(&user); err != nil {
		return err
	}
	if err := core.ValidateMessage(&assistant); err != nil {
		return err
	}

	userJSON, err := storage.MarshalMessage(&user)
	if err != nil {
		return err
	}
	assistantJSON, err := storage.MarshalMessage(&assistant)
	if err != nil {
		return err
	}

	now := r.now()
	stamp := now.Format(time.RFC3339Nano)
	b := r.client.B()
	cmds := rueidis.Commands{
		b.Rpush().Key(r.messagesKey(conversationID)).Element(string(userJSON), string(assistantJSON)).Build(),
		b.Hsetnx().Key(r.metaKey(conversationID)).Field("created_at").Value(stamp).Build(),
		b.Hset().Key(r.metaKey(conversationID)).FieldValue().FieldValue("updated_at", stamp).Build(),
		b.Zadd().Key(r.indexKey()).ScoreMember().ScoreMember(float64(now.UnixMicro()), conversationID).Build(),
	}

	for i, res := range r.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("append %s (command %d): %w", conversationID, i, err)
		}
	}
	return nil
}

// Get loads the messages and metadata of a conversation.
func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*core.ConversationRecord, error) {
	b := r.client.B()
	results := r.client.DoMulti(ctx,
		b.Lrange().Key(r.messagesKey(conversationID)).Start(0).Stop(-1).Build(),
		b.Hgetall().Key(r.metaKey(conversationID)).Build(),
	)

	raw, err := results[0].AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", conversationID, err)
	}
	meta, err := results[1].AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", conversationID, err)
	}
	if len(raw) == 0 && len(meta) == 0 {
		return nil, storage.ErrNotFound
	}

	record := &core.ConversationRecord{
		ID:        conversationID,
		Messages:  make([]core.Message, 0, len(raw)),
		CreatedAt: parseStamp(meta["created_at"]),
		UpdatedAt: parseStamp(meta["updated_at"]),
	}
	for _, item := range raw {
		msg, err := storage.UnmarshalMessage([]byte(item))
		if err != nil {
			return nil, err
		}
		record.Messages = append(record.Messages, *msg)
	}
	return record, nil
}

// Delete removes the conversation keys and its index entry.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) (bool, error) {
	b := r.client.B()
	results := r.client.DoMulti(ctx,
		b.Del().Key(r.messagesKey(conversationID), r.metaKey(conversationID)).Build(),
		b.Zrem().Key(r.indexKey()).Member(conversationID).Build(),
	)
	removed, err := results[0].AsInt64()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", conversationID, err)
	}
	if err := results[1].Error(); err != nil {
		return false, fmt.Errorf("delete %s: %w", conversationID, err)
	}
	return removed > 0, nil
}

// List returns summaries ordered by most recent update.
func (r *ConversationRepository) List(ctx context.Context) ([]core.ConversationSummary, error) {
	b := r.client.B()
	ids, err := r.client.Do(ctx, b.Zrange().Key(r.indexKey()).Min("0").Max("-1").Rev().Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]core.ConversationSummary, 0, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	cmds := make(rueidis.Commands, 0, 2*len(ids))
	for _, id := range ids {
		cmds = append(cmds,
			b.Hgetall().Key(r.metaKey(id)).Build(),
			b.Llen().Key(r.messagesKey(id)).Build(),
		)
	}
	results := r.client.DoMulti(ctx, cmds...)

	for i, id := range ids {
		meta, err := results[2*i].AsStrMap()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", id, err)
		}
		count, err := results[2*i+1].AsInt64()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", id, err)
		}
		if len(meta) == 0 && count == 0 {
			r.logger.Warn("index references missing conversation", "conversation_id", id)
			continue
		}
		summaries = append(summaries, core.ConversationSummary{
			ID:           id,
			MessageCount: int(count),
			CreatedAt:    parseStamp(meta["created_at"]),
			UpdatedAt:    parseStamp(meta["updated_at"]),
		})
	}
	return summaries, nil
}

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
