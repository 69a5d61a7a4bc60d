package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/id"
	"github.com/go-notify/internal/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testRepo connects to POSTGRES_TEST_URL and bootstraps a clean schema.
// Tests are skipped when it is unset.
func testRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_URL")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	ctx := context.Background()
	for _, tbl := range []string{"outbox_event", "user_notification", "notification", "notification_avatar", "notification_attachment", "notification_preference", "device", `"user"`} {
		require.NoError(t, db.Exec("DROP TABLE IF EXISTS "+tbl).Error)
	}
	require.NoError(t, Bootstrap(ctx, db))
	return NewRepo(db)
}

func ref(s string) *string { return &s }

func newNotification(uniqueKey string) *domain.Notification {
	return &domain.Notification{
		ID:            id.New(),
		Type:          domain.TypeSquadPostAdded,
		Icon:          "Squad",
		Title:         "t",
		TargetURL:     "https://app.example.com/posts/p1",
		Public:        true,
		ReferenceID:   ref("p1"),
		ReferenceType: ref(domain.ReferenceKindPost),
		UniqueKey:     uniqueKey,
		AvatarIDs:     []string{},
		AttachmentIDs: []string{},
		CreatedAt:     time.Now().UTC(),
	}
}

func TestResolveAvatar_ReusesExisting(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a := domain.Avatar{Kind: domain.ReferenceKindUser, ReferenceID: "u1", Image: "a.png", Name: "Alice", TargetURL: "x"}

	first, err := r.ResolveAvatar(ctx, a)
	require.NoError(t, err)
	a.Name = "Renamed"
	second, err := r.ResolveAvatar(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	got, err := r.AvatarsByIDs(ctx, []string{first})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Name)
}

func TestResolveAttachment_ConcurrentCallersConverge(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a := domain.Attachment{Kind: domain.ReferenceKindPost, ReferenceID: "p1", Title: "Post", TargetURL: "x"}

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := r.ResolveAttachment(ctx, a)
			assert.NoError(t, err)
			ids[i] = got
		}(i)
	}
	wg.Wait()

	for _, got := range ids {
		assert.Equal(t, ids[0], got)
	}
}

func TestInsertNotification_DedupTuple(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	ok, err := r.InsertNotification(ctx, newNotification("0"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.InsertNotification(ctx, newNotification("0"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.InsertNotification(ctx, newNotification("1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertNotification_NullReferenceStillDedups(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a, b := newNotification("0"), newNotification("0")
	a.ReferenceID, a.ReferenceType = nil, nil
	b.ReferenceID, b.ReferenceType = nil, nil

	ok, err := r.InsertNotification(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.InsertNotification(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertNotification_KeepsPrivateFlag(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	n := newNotification("0")
	n.Public = false

	_, err := r.InsertNotification(ctx, n)
	require.NoError(t, err)
	got, err := r.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.Public)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	n := newNotification("0")

	err := r.Transaction(ctx, func(tx *Repo) error {
		_, err := tx.InsertNotification(ctx, n)
		require.NoError(t, err)
		return assert.AnError
	})

	assert.ErrorIs(t, err, assert.AnError)
	_, err = r.GetNotification(ctx, n.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStreamRecipients_YieldsEveryRow(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	n := newNotification("0")
	_, err := r.InsertNotification(ctx, n)
	require.NoError(t, err)
	rows := make([]domain.UserNotification, 250)
	for i := range rows {
		rows[i] = domain.UserNotification{NotificationID: n.ID, UserID: id.New(), CreatedAt: n.CreatedAt, Public: true}
	}
	require.NoError(t, r.InsertUserNotifications(ctx, rows))
	require.NoError(t, r.InsertUserNotifications(ctx, rows[:10]))

	cur, err := r.StreamRecipients(ctx, n.ID)
	require.NoError(t, err)
	var mu sync.Mutex
	count := 0
	err = stream.ProcessInBatches(ctx, cur, 4, 100, func(_ context.Context, b []domain.UserNotification) error {
		mu.Lock()
		count += len(b)
		mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 250, count)
}

func TestPreferences_GlobalAndScoped(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	flags := domain.NotificationFlags{domain.TypeSquadPostAdded: {Email: domain.StatusMuted}}
	require.NoError(t, r.db.Create(&[]domain.User{
		{ID: "u1", NotificationFlags: datatypes.NewJSONType(flags)},
		{ID: "u2", NotificationFlags: datatypes.NewJSONType(domain.NotificationFlags{})},
	}).Error)
	scope := domain.Scope{Kind: domain.ScopeSource, ReferenceID: "s1"}
	require.NoError(t, r.SetPreference(ctx, &domain.Preference{
		UserID: "u2", NotificationType: domain.TypeSquadPostAdded, ScopeKind: scope.Kind, ReferenceID: scope.ReferenceID, Status: domain.StatusMuted,
	}))

	global, err := r.GlobalFlags(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.NotificationFlags{"u1": flags}, global)

	scoped, err := r.ScopedStatuses(ctx, domain.TypeSquadPostAdded, scope, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.PreferenceStatus{"u2": domain.StatusMuted}, scoped)
}

func TestEnabledDevices_SkipsDisabled(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	require.NoError(t, r.db.Create(&[]domain.Device{
		{DeviceID: "d1", UserID: "u1", Platform: "fcm", EndpointARN: "arn:1", Enable: true},
		{DeviceID: "d2", UserID: "u1", Platform: "apns", EndpointARN: "arn:2", Enable: true},
	}).Error)
	require.NoError(t, r.DisableDevice(ctx, "d2"))

	got, err := r.EnabledDevices(ctx, []string{"u1"})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].DeviceID)
}

func TestExpand_KeepsStoredOrder(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	// b is stored before a, the notification references [a, b].
	bAv, err := r.ResolveAvatar(ctx, domain.Avatar{Kind: domain.ReferenceKindUser, ReferenceID: "b", Name: "B", TargetURL: "x"})
	require.NoError(t, err)
	aAv, err := r.ResolveAvatar(ctx, domain.Avatar{Kind: domain.ReferenceKindUser, ReferenceID: "a", Name: "A", TargetURL: "x"})
	require.NoError(t, err)
	bAt, err := r.ResolveAttachment(ctx, domain.Attachment{Kind: domain.ReferenceKindPost, ReferenceID: "b", Title: "B", TargetURL: "x"})
	require.NoError(t, err)
	aAt, err := r.ResolveAttachment(ctx, domain.Attachment{Kind: domain.ReferenceKindPost, ReferenceID: "a", Title: "A", TargetURL: "x"})
	require.NoError(t, err)
	n := newNotification("0")
	n.AvatarIDs = []string{aAv, bAv}
	n.AttachmentIDs = []string{aAt, bAt}
	_, err = r.InsertNotification(ctx, n)
	require.NoError(t, err)
	stored, err := r.GetNotification(ctx, n.ID)
	require.NoError(t, err)

	got, err := r.Expand(ctx, *stored)

	require.NoError(t, err)
	require.Len(t, got.Avatars, 2)
	assert.Equal(t, "a", got.Avatars[0].ReferenceID)
	assert.Equal(t, "b", got.Avatars[1].ReferenceID)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "a", got.Attachments[0].ReferenceID)
	assert.Equal(t, "b", got.Attachments[1].ReferenceID)
}

func outboxEvent(at time.Time) domain.OutboxEvent {
	return domain.OutboxEvent{ID: id.New(), Topic: domain.TopicNotificationCreated, Payload: datatypes.JSON(`{"n":1}`), CreatedAt: at}
}

func TestOutbox_RolledBackWithTransaction(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	err := r.Transaction(ctx, func(tx *Repo) error {
		require.NoError(t, tx.EnqueueEvent(ctx, outboxEvent(time.Now().UTC())))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := r.DrainOutbox(ctx, 10, func(context.Context, domain.OutboxEvent) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainOutbox_OldestFirstAndKeepsUnsent(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	base := time.Now().UTC()
	second, first, third := outboxEvent(base.Add(time.Second)), outboxEvent(base), outboxEvent(base.Add(2*time.Second))
	for _, e := range []domain.OutboxEvent{second, first, third} {
		require.NoError(t, r.EnqueueEvent(ctx, e))
	}

	var seen []string
	n, err := r.DrainOutbox(ctx, 10, func(_ context.Context, e domain.OutboxEvent) error {
		if e.ID == third.ID {
			return assert.AnError
		}
		seen = append(seen, e.ID)
		return nil
	})

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{first.ID, second.ID}, seen)

	var left []domain.OutboxEvent
	require.NoError(t, r.db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, third.ID, left[0].ID)
}
