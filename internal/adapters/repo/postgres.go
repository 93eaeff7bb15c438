package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.AuditRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func (p *Postgres) saveAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	if event.Event == "" {
		return nil
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var userID sql.NullInt64
	if event.UserID != nil {
		userID = sql.NullInt64{Int64: *event.UserID, Valid: true}
	}

	var channelID sql.NullInt64
	if event.ChannelID != nil {
		channelID = sql.NullInt64{Int64: *event.ChannelID, Valid: true}
	}

	var postID sql.NullInt64
	if event.PostID != nil {
		postID = sql.NullInt64{Int64: *event.PostID, Valid: true}
	}

	var payload []byte
	if event.Metadata != nil {
		if data, err := json.Marshal(event.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO audit_events (event, user_id, channel_id, post_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, event.Event, userID, channelID, postID, payload, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "audit_events_insert", "audit_events", start, err)
	return err
}

// RecordAuditEvent сохраняет событие жизненного цикла в БД.
func (p *Postgres) RecordAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	return p.saveAuditEvent(ctx, event)
}

// UpsertByTGID реализует domain.UserRepo.
func (p *Postgres) UpsertByTGID(profile domain.TelegramProfile) (domain.User, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	locale := strings.TrimSpace(profile.Locale)
	firstName := strings.TrimSpace(profile.FirstName)
	username := strings.TrimSpace(profile.Username)

	var (
		user         domain.User
		firstNameSQL sql.NullString
		usernameSQL  sql.NullString
		tzSQL        sql.NullString
		created      bool
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, locale, first_name, username)
VALUES ($1, COALESCE(NULLIF($2,''),'ru-RU'), NULLIF($3,''), NULLIF($4,''))
ON CONFLICT (tg_user_id) DO UPDATE SET locale = EXCLUDED.locale, first_name = EXCLUDED.first_name, username = EXCLUDED.username, updated_at = now()
RETURNING id, tg_user_id, locale, tz, first_name, username, created_at, updated_at, (xmax = 0) AS inserted
`, profile.TGUserID, locale, firstName, username).Scan(&user.ID, &user.TGUserID, &user.Locale, &tzSQL, &firstNameSQL, &usernameSQL, &user.CreatedAt, &user.UpdatedAt, &created)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, false, err
	}
	if tzSQL.Valid {
		user.Timezone = tzSQL.String
	}
	if firstNameSQL.Valid {
		user.FirstName = firstNameSQL.String
	}
	if usernameSQL.Valid {
		user.Username = usernameSQL.String
	}
	if created {
		userID := user.ID
		_ = p.saveAuditEvent(ctx, domain.AuditEvent{
			Event:  domain.AuditEventUserRegistered,
			UserID: &userID,
			Metadata: map[string]any{
				"tg_user_id": user.TGUserID,
				"locale":     user.Locale,
			},
		})
	}
	return user, created, nil
}

// GetByTGID возвращает пользователя по Telegram ID.
func (p *Postgres) GetByTGID(tgUserID int64) (domain.User, error) {
	var user domain.User
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		firstName sql.NullString
		username  sql.NullString
		tzSQL     sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, locale, tz, first_name, username, created_at, updated_at
FROM users WHERE tg_user_id=$1
`, tgUserID).Scan(&user.ID, &user.TGUserID, &user.Locale, &tzSQL, &firstName, &username, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_tgid", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("пользователь %d: %w", tgUserID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	if tzSQL.Valid {
		user.Timezone = tzSQL.String
	}
	if firstName.Valid {
		user.FirstName = firstName.String
	}
	if username.Valid {
		user.Username = username.String
	}
	return user, nil
}

// GetByID возвращает пользователя по внутреннему идентификатору.
func (p *Postgres) GetByID(id int64) (domain.User, error) {
	var user domain.User
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		firstName sql.NullString
		username  sql.NullString
		tzSQL     sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, locale, tz, first_name, username, created_at, updated_at
FROM users WHERE id=$1
`, id).Scan(&user.ID, &user.TGUserID, &user.Locale, &tzSQL, &firstName, &username, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_id", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("пользователь #%d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	if tzSQL.Valid {
		user.Timezone = tzSQL.String
	}
	if firstName.Valid {
		user.FirstName = firstName.String
	}
	if username.Valid {
		user.Username = username.String
	}
	return user, nil
}

const channelColumns = `c.id, c.tg_chat_id, c.title, c.username, c.owner_id, c.tz, c.bot_token, c.created_at, c.updated_at,
       COALESCE(array_agg(a.user_id) FILTER (WHERE a.user_id IS NOT NULL), '{}')`

func scanChannel(row pgx.Row) (domain.Channel, error) {
	var (
		ch       domain.Channel
		username sql.NullString
		botToken sql.NullString
	)
	err := row.Scan(&ch.ID, &ch.TGChatID, &ch.Title, &username, &ch.OwnerID, &ch.Timezone, &botToken, &ch.CreatedAt, &ch.UpdatedAt, &ch.AdminIDs)
	if err != nil {
		return domain.Channel{}, err
	}
	if username.Valid {
		ch.Username = username.String
	}
	if botToken.Valid {
		ch.BotToken = botToken.String
	}
	return ch, nil
}

// UpsertChannel регистрирует канал либо обновляет его название и алиас.
// Владелец выставляется при первой регистрации и далее не меняется.
func (p *Postgres) UpsertChannel(ref domain.ChannelRef, ownerID int64) (domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var channelID int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO channels (tg_chat_id, title, username, owner_id)
VALUES ($1, $2, NULLIF($3,''), $4)
ON CONFLICT (tg_chat_id) DO UPDATE SET title = EXCLUDED.title, username = EXCLUDED.username, updated_at = now()
RETURNING id
`, ref.TGChatID, ref.Title, ref.Username, ownerID).Scan(&channelID)
	metrics.ObserveNetworkRequest("postgres", "channels_upsert", "channels", start, err)
	if err != nil {
		return domain.Channel{}, err
	}
	return p.GetChannel(channelID)
}

// GetChannel возвращает канал с набором администраторов.
func (p *Postgres) GetChannel(id int64) (domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+channelColumns+`
FROM channels c LEFT JOIN channel_admins a ON a.channel_id = c.id
WHERE c.id=$1
GROUP BY c.id
`, id)
	ch, err := scanChannel(row)
	metrics.ObserveNetworkRequest("postgres", "channels_get", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, fmt.Errorf("канал %d: %w", id, domain.ErrNotFound)
	}
	return ch, err
}

// GetChannelByTGChatID возвращает канал по идентификатору чата Telegram.
func (p *Postgres) GetChannelByTGChatID(tgChatID int64) (domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+channelColumns+`
FROM channels c LEFT JOIN channel_admins a ON a.channel_id = c.id
WHERE c.tg_chat_id=$1
GROUP BY c.id
`, tgChatID)
	ch, err := scanChannel(row)
	metrics.ObserveNetworkRequest("postgres", "channels_get_by_tg_chat", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, fmt.Errorf("канал tg %d: %w", tgChatID, domain.ErrNotFound)
	}
	return ch, err
}

// ListUserChannels возвращает каналы, где пользователь состоит в наборе администраторов.
func (p *Postgres) ListUserChannels(userID int64) ([]domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+channelColumns+`
FROM channels c
JOIN channel_admins me ON me.channel_id = c.id AND me.user_id = $1
LEFT JOIN channel_admins a ON a.channel_id = c.id
GROUP BY c.id
ORDER BY c.created_at
`, userID)
	metrics.ObserveNetworkRequest("postgres", "channels_list_for_user", "channels", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var channels []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// AddAdmin добавляет пользователя в набор администраторов канала.
func (p *Postgres) AddAdmin(channelID, userID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO channel_admins (channel_id, user_id)
VALUES ($1,$2)
ON CONFLICT (channel_id, user_id) DO NOTHING
`, channelID, userID)
	metrics.ObserveNetworkRequest("postgres", "channel_admins_add", "channel_admins", start, err)
	if err == nil && tag.RowsAffected() > 0 {
		uID := userID
		chID := channelID
		_ = p.saveAuditEvent(ctx, domain.AuditEvent{
			Event:     domain.AuditEventChannelClaimed,
			UserID:    &uID,
			ChannelID: &chID,
		})
	}
	return err
}

// BindCredential привязывает токен бота к каналу.
func (p *Postgres) BindCredential(channelID int64, token string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE channels SET bot_token=NULLIF($2,''), updated_at=now() WHERE id=$1`, channelID, token)
	metrics.ObserveNetworkRequest("postgres", "channels_bind_credential", "channels", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("канал %d: %w", channelID, domain.ErrNotFound)
	}
	return nil
}

// SetTimezone задаёт часовой пояс канала.
func (p *Postgres) SetTimezone(channelID int64, tz string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE channels SET tz=$2, updated_at=now() WHERE id=$1`, channelID, tz)
	metrics.ObserveNetworkRequest("postgres", "channels_set_timezone", "channels", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("канал %d: %w", channelID, domain.ErrNotFound)
	}
	return nil
}

// CreatePost сохраняет пост вместе с блоками контента.
func (p *Postgres) CreatePost(post domain.Post) (domain.Post, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	blocks, err := json.Marshal(post.Blocks)
	if err != nil {
		return domain.Post{}, fmt.Errorf("сериализовать блоки: %w", err)
	}

	var scheduledAt sql.NullTime
	if post.ScheduledAt != nil {
		scheduledAt = sql.NullTime{Time: post.ScheduledAt.UTC(), Valid: true}
	}

	start := time.Now()
	err = p.pool.QueryRow(ctx, `
INSERT INTO posts (channel_id, author_id, status, blocks_json, fail_reason, scheduled_at)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6)
RETURNING id, created_at
`, post.ChannelID, post.AuthorID, post.Status, blocks, post.FailReason, scheduledAt).Scan(&post.ID, &post.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

// GetPost возвращает пост с блоками и доставленным префиксом.
func (p *Postgres) GetPost(id int64) (domain.Post, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		post        domain.Post
		blocksJSON  []byte
		failReason  sql.NullString
		scheduledAt sql.NullTime
		sentAt      sql.NullTime
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, channel_id, author_id, status, blocks_json, delivered_ids, fail_reason, scheduled_at, created_at, sent_at
FROM posts WHERE id=$1
`, id).Scan(&post.ID, &post.ChannelID, &post.AuthorID, &post.Status, &blocksJSON, &post.DeliveredIDs, &failReason, &scheduledAt, &post.CreatedAt, &sentAt)
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, fmt.Errorf("пост %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Post{}, err
	}
	if len(blocksJSON) > 0 {
		if err := json.Unmarshal(blocksJSON, &post.Blocks); err != nil {
			return domain.Post{}, fmt.Errorf("прочитать блоки поста %d: %w", id, err)
		}
	}
	if failReason.Valid {
		post.FailReason = failReason.String
	}
	if scheduledAt.Valid {
		ts := scheduledAt.Time
		post.ScheduledAt = &ts
	}
	if sentAt.Valid {
		ts := sentAt.Time
		post.SentAt = &ts
	}
	return post, nil
}

// UpdatePostStatus меняет статус и причину отказа поста.
func (p *Postgres) UpdatePostStatus(id int64, status domain.PostStatus, failReason string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE posts SET status=$2, fail_reason=NULLIF($3,'') WHERE id=$1`, id, status, failReason)
	metrics.ObserveNetworkRequest("postgres", "posts_update_status", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("пост %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// AppendDeliveredID дописывает идентификатор доставленного сообщения.
func (p *Postgres) AppendDeliveredID(postID, tgMessageID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE posts SET delivered_ids = array_append(delivered_ids, $2) WHERE id=$1`, postID, tgMessageID)
	metrics.ObserveNetworkRequest("postgres", "posts_append_delivered", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("пост %d: %w", postID, domain.ErrNotFound)
	}
	return nil
}

// MarkPostSent помечает пост полностью доставленным.
func (p *Postgres) MarkPostSent(id int64, sentAt time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE posts SET status=$2, sent_at=$3, fail_reason=NULL WHERE id=$1`, id, domain.PostStatusSent, sentAt.UTC())
	metrics.ObserveNetworkRequest("postgres", "posts_mark_sent", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("пост %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListScheduledByAuthor возвращает запланированные посты автора по возрастанию срока.
func (p *Postgres) ListScheduledByAuthor(authorID int64) ([]domain.Post, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, channel_id, author_id, status, blocks_json, delivered_ids, fail_reason, scheduled_at, created_at, sent_at
FROM posts WHERE author_id=$1 AND status=$2
ORDER BY scheduled_at
`, authorID, domain.PostStatusScheduled)
	metrics.ObserveNetworkRequest("postgres", "posts_list_scheduled", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []domain.Post
	for rows.Next() {
		var (
			post        domain.Post
			blocksJSON  []byte
			failReason  sql.NullString
			scheduledAt sql.NullTime
			sentAt      sql.NullTime
		)
		if err := rows.Scan(&post.ID, &post.ChannelID, &post.AuthorID, &post.Status, &blocksJSON, &post.DeliveredIDs, &failReason, &scheduledAt, &post.CreatedAt, &sentAt); err != nil {
			return nil, err
		}
		if len(blocksJSON) > 0 {
			if err := json.Unmarshal(blocksJSON, &post.Blocks); err != nil {
				return nil, fmt.Errorf("прочитать блоки поста %d: %w", post.ID, err)
			}
		}
		if failReason.Valid {
			post.FailReason = failReason.String
		}
		if scheduledAt.Valid {
			ts := scheduledAt.Time
			post.ScheduledAt = &ts
		}
		if sentAt.Valid {
			ts := sentAt.Time
			post.SentAt = &ts
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// CountPostsByStatus возвращает количество постов в каждом статусе.
func (p *Postgres) CountPostsByStatus() (map[domain.PostStatus]int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT status, COUNT(*) FROM posts GROUP BY status`)
	metrics.ObserveNetworkRequest("postgres", "posts_count_by_status", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.PostStatus]int)
	for rows.Next() {
		var (
			status domain.PostStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CreateEntry сохраняет запись расписания поста.
func (p *Postgres) CreateEntry(entry domain.ScheduleEntry) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO schedule_entries (post_id, due_at, status)
VALUES ($1, $2, $3)
`, entry.PostID, entry.DueAt.UTC(), entry.Status)
	metrics.ObserveNetworkRequest("postgres", "schedule_entries_insert", "schedule_entries", start, err)
	return err
}

// GetEntry возвращает запись расписания поста.
func (p *Postgres) GetEntry(postID int64) (domain.ScheduleEntry, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var entry domain.ScheduleEntry
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT post_id, due_at, status, created_at, updated_at
FROM schedule_entries WHERE post_id=$1
`, postID).Scan(&entry.PostID, &entry.DueAt, &entry.Status, &entry.CreatedAt, &entry.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "schedule_entries_get", "schedule_entries", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScheduleEntry{}, fmt.Errorf("запись расписания %d: %w", postID, domain.ErrNotFound)
	}
	return entry, err
}

// ListDue возвращает pending-записи со сроком не позже указанного момента.
func (p *Postgres) ListDue(now time.Time, limit int) ([]domain.ScheduleEntry, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, due_at, status, created_at, updated_at
FROM schedule_entries
WHERE status=$1 AND due_at <= $2
ORDER BY due_at
LIMIT $3
`, domain.SchedulePending, now.UTC(), limit)
	metrics.ObserveNetworkRequest("postgres", "schedule_entries_list_due", "schedule_entries", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.ScheduleEntry
	for rows.Next() {
		var entry domain.ScheduleEntry
		if err := rows.Scan(&entry.PostID, &entry.DueAt, &entry.Status, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClaimEntry атомарно переводит запись из from в to. Возвращает true, если
// перевод выполнен этим вызовом; проигравший конкурент получает false без ошибки.
func (p *Postgres) ClaimEntry(postID int64, from, to domain.ScheduleStatus) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE schedule_entries SET status=$3, updated_at=now()
WHERE post_id=$1 AND status=$2
`, postID, from, to)
	metrics.ObserveNetworkRequest("postgres", "schedule_entries_claim", "schedule_entries", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// EnsureDeliveryJob регистрирует попытку обработки задачи доставки.
func (p *Postgres) EnsureDeliveryJob(jobID string) (bool, int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		completed sql.NullTime
		attempts  int
	)

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO delivery_jobs (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = delivery_jobs.attempts + 1,
        updated_at = now()
RETURNING completed_at, attempts
`, jobID).Scan(&completed, &attempts)
	metrics.ObserveNetworkRequest("postgres", "delivery_jobs_upsert", "delivery_jobs", start, err)
	if err != nil {
		return false, 0, err
	}

	return completed.Valid, attempts, nil
}

// MarkDeliveryJobDone помечает задачу доставки как обработанную.
func (p *Postgres) MarkDeliveryJobDone(jobID string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE delivery_jobs
SET completed_at = COALESCE(completed_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "delivery_jobs_mark_done", "delivery_jobs", start, err)
	return err
}
