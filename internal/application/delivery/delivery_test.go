package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/infrastructure/mail"
	"github.com/go-notify/internal/pkg/locale"
	"github.com/go-notify/internal/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) StreamRecipients(ctx context.Context, notificationID string) (stream.Cursor[domain.UserNotification], error) {
	args := m.Called(ctx, notificationID)
	rows, _ := args.Get(0).([]domain.UserNotification)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	return stream.FromSlice(rows), nil
}

func (m *mockStore) Expand(ctx context.Context, n domain.Notification) (*domain.ExpandedNotification, error) {
	args := m.Called(ctx, n)
	e, _ := args.Get(0).(*domain.ExpandedNotification)
	return e, args.Error(1)
}

func (m *mockStore) AvatarsByIDs(ctx context.Context, ids []string) ([]domain.Avatar, error) {
	args := m.Called(ctx, ids)
	a, _ := args.Get(0).([]domain.Avatar)
	return a, args.Error(1)
}

func (m *mockStore) UsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	args := m.Called(ctx, ids)
	u, _ := args.Get(0).([]domain.User)
	return u, args.Error(1)
}

func (m *mockStore) GlobalFlags(ctx context.Context, ids []string) (map[string]domain.NotificationFlags, error) {
	args := m.Called(ctx, ids)
	f, _ := args.Get(0).(map[string]domain.NotificationFlags)
	return f, args.Error(1)
}

func (m *mockStore) ScopedStatuses(ctx context.Context, t domain.NotificationType, s domain.Scope, ids []string) (map[string]domain.PreferenceStatus, error) {
	args := m.Called(ctx, t, s, ids)
	st, _ := args.Get(0).(map[string]domain.PreferenceStatus)
	return st, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, channel string, payload any) error {
	return m.Called(ctx, channel, payload).Error(0)
}

type mockPresence struct{ mock.Mock }

func (m *mockPresence) ConnectedSubsetOf(ctx context.Context, ids []string) ([]string, error) {
	args := m.Called(ctx, ids)
	c, _ := args.Get(0).([]string)
	return c, args.Error(1)
}

// recordingGateway captures push batches; concurrent batches append under a lock.
type recordingGateway struct {
	mu     sync.Mutex
	calls  [][]string
	avatar *domain.Avatar
	err    error
}

func (g *recordingGateway) SendPush(_ context.Context, ids []string, _ domain.Notification, avatar *domain.Avatar) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, append([]string(nil), ids...))
	g.avatar = avatar
	return g.err
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

// --- helpers ---

func rows(n domain.Notification, ids ...string) []domain.UserNotification {
	out := make([]domain.UserNotification, len(ids))
	for i, id := range ids {
		out[i] = domain.UserNotification{NotificationID: n.ID, UserID: id, Public: n.Public}
	}
	return out
}

func squadPostNotification() domain.Notification {
	kind, ref := domain.ScopeSource, "squad-1"
	return domain.Notification{
		ID:               "n1",
		Type:             domain.TypeSquadPostAdded,
		Title:            "Alice shared a new post in Gophers",
		TargetURL:        "https://app.example.com/posts/p1",
		Public:           true,
		UniqueKey:        "0",
		ScopeKind:        &kind,
		ScopeReferenceID: &ref,
		AvatarIDs:        []string{"av-1", "av-2"},
		AttachmentIDs:    []string{"at-1"},
	}
}

func expanded(n domain.Notification) *domain.ExpandedNotification {
	return &domain.ExpandedNotification{
		Notification: n,
		Avatars:      []domain.Avatar{{ID: "av-1", Name: "Gophers", Image: "squad.png"}, {ID: "av-2", Name: "Alice"}},
		Attachments:  []domain.Attachment{{ID: "at-1", Title: "Generics in practice", Image: "post.png"}},
	}
}

// --- realtime ---

func TestRealtime_PublishesToEveryRecipient(t *testing.T) {
	n := squadPostNotification()
	st := &mockStore{}
	st.On("Expand", mock.Anything, n).Return(expanded(n), nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "u1", "u2", "u3"), nil)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, expanded(n)).Return(nil)

	rep, err := NewRealtime(RealtimeDeps{Recipients: st, Expander: st, Publisher: pub, Concurrency: 10, Logger: zap.NewNop()}).
		Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.Delivered)
	for _, id := range []string{"u1", "u2", "u3"} {
		pub.AssertCalled(t, "Publish", mock.Anything, "events.notifications."+id+".new", expanded(n))
	}
}

func TestRealtime_PublishFailureIsIsolated(t *testing.T) {
	n := squadPostNotification()
	st := &mockStore{}
	st.On("Expand", mock.Anything, n).Return(expanded(n), nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "u1", "u2", "u3"), nil)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, "events.notifications.u2.new", mock.Anything).Return(errors.New("redis down"))
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	rep, err := NewRealtime(RealtimeDeps{Recipients: st, Expander: st, Publisher: pub, Concurrency: 10, Logger: zap.NewNop()}).
		Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Delivered)
	assert.Equal(t, int64(1), rep.Failed)
}

func TestRealtime_PrivateNotificationIsNotBroadcast(t *testing.T) {
	n := squadPostNotification()
	n.Public = false
	st := &mockStore{}
	pub := &mockPublisher{}

	rep, err := NewRealtime(RealtimeDeps{Recipients: st, Expander: st, Publisher: pub, Concurrency: 10, Logger: zap.NewNop()}).
		Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, "private", rep.Reason)
	st.AssertNotCalled(t, "StreamRecipients", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

// --- push ---

func newPush(st *mockStore, pres *mockPresence, gw PushGateway) *Push {
	return NewPush(PushDeps{
		Recipients: st, Avatars: st, Users: st, Presence: pres, Gateway: gw,
		BatchSize: 100, Concurrency: 10, Logger: zap.NewNop(),
	})
}

func TestPush_SkipsConnectedAndFollowOptedOut(t *testing.T) {
	// A and C are followers; C is connected, A disabled follow push, B is not connected.
	n := squadPostNotification()
	n.Type = domain.TypeSourcePostAdded
	st := &mockStore{}
	st.On("AvatarsByIDs", mock.Anything, []string{"av-1"}).Return([]domain.Avatar{{ID: "av-1", Image: "squad.png"}}, nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "A", "B", "C"), nil)
	st.On("UsersByIDs", mock.Anything, []string{"A", "B"}).Return([]domain.User{
		{ID: "A", FollowNotifications: false},
		{ID: "B", FollowNotifications: true},
	}, nil)
	pres := &mockPresence{}
	pres.On("ConnectedSubsetOf", mock.Anything, []string{"A", "B", "C"}).Return([]string{"C"}, nil)
	gw := &recordingGateway{}

	rep, err := newPush(st, pres, gw).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"B"}}, gw.calls)
	require.NotNil(t, gw.avatar)
	assert.Equal(t, "squad.png", gw.avatar.Image)
	assert.Equal(t, int64(1), rep.Delivered)
	assert.Equal(t, int64(2), rep.Skipped)
}

func TestPush_NonFollowTypeIgnoresFollowSetting(t *testing.T) {
	n := squadPostNotification()
	st := &mockStore{}
	st.On("AvatarsByIDs", mock.Anything, mock.Anything).Return([]domain.Avatar{}, nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "A", "B"), nil)
	pres := &mockPresence{}
	pres.On("ConnectedSubsetOf", mock.Anything, mock.Anything).Return([]string{}, nil)
	gw := &recordingGateway{}

	_, err := newPush(st, pres, gw).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "B"}}, gw.calls)
	assert.Nil(t, gw.avatar)
	st.AssertNotCalled(t, "UsersByIDs", mock.Anything, mock.Anything)
}

func TestPush_PresenceFailureFailsOpen(t *testing.T) {
	n := squadPostNotification()
	n.AvatarIDs = nil
	st := &mockStore{}
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "A", "B"), nil)
	pres := &mockPresence{}
	pres.On("ConnectedSubsetOf", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	gw := &recordingGateway{}

	_, err := newPush(st, pres, gw).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "B"}}, gw.calls)
}

func TestPush_GatewayFailureIsCountedNotReturned(t *testing.T) {
	n := squadPostNotification()
	n.AvatarIDs = nil
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%03d", i)
	}
	st := &mockStore{}
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, ids...), nil)
	pres := &mockPresence{}
	pres.On("ConnectedSubsetOf", mock.Anything, mock.Anything).Return([]string{}, nil)
	gw := &recordingGateway{err: errors.New("sns throttled")}

	rep, err := newPush(st, pres, gw).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.Batches)
	assert.Equal(t, int64(250), rep.Failed)
	sizes := make([]int, 0, len(gw.calls))
	for _, c := range gw.calls {
		sizes = append(sizes, len(c))
	}
	sort.Ints(sizes)
	assert.Equal(t, []int{50, 100, 100}, sizes)
}

func TestPush_PrivateNotificationIsSkipped(t *testing.T) {
	n := squadPostNotification()
	n.Public = false
	st := &mockStore{}
	gw := &recordingGateway{}

	rep, err := newPush(st, &mockPresence{}, gw).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, "private", rep.Reason)
	assert.Empty(t, gw.calls)
}

// --- email ---

func newEmail(st *mockStore, m mail.Mailer) *Email {
	return NewEmail(EmailDeps{
		Recipients: st, Expander: st, Users: st, Preferences: st, Mailer: m,
		Locale: locale.New("en"), WebURL: "https://app.example.com/",
		BatchSize: 100, Concurrency: 10, Logger: zap.NewNop(),
	})
}

func TestEmail_FiltersAndPersonalizesBatch(t *testing.T) {
	n := squadPostNotification()
	scope := *n.Scope()
	st := &mockStore{}
	st.On("Expand", mock.Anything, n).Return(expanded(n), nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "a", "b", "c", "d", "e"), nil)
	st.On("UsersByIDs", mock.Anything, []string{"a", "b", "c", "d", "e"}).Return([]domain.User{
		{ID: "a", Name: "Ann Lee", Username: "ann", Email: "a@example.com", NotificationEmail: true},
		{ID: "b", Name: "Ben", Username: "ben", Email: "", NotificationEmail: true},
		{ID: "c", Name: "Cat", Username: "cat", Email: "c@example.com", NotificationEmail: false},
		{ID: "d", Name: "Dan", Username: "dan", Email: "d@example.com", NotificationEmail: true},
		{ID: "e", Name: "Eve", Username: "eve", Email: "e@example.com", NotificationEmail: true},
	}, nil)
	st.On("GlobalFlags", mock.Anything, []string{"a", "d", "e"}).Return(map[string]domain.NotificationFlags{
		"d": {domain.TypeSquadPostAdded: {Email: domain.StatusMuted}},
	}, nil)
	st.On("ScopedStatuses", mock.Anything, domain.TypeSquadPostAdded, scope, []string{"a", "d", "e"}).
		Return(map[string]domain.PreferenceStatus{}, nil)
	m := &recordingMailer{}

	rep, err := newEmail(st, m).Handle(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, "notification-squad-post-added", msg.TemplateID)
	assert.Equal(t, "Generics in practice", msg.Static["post_title"])
	require.Len(t, msg.Personalizations, 2)
	assert.Equal(t, "a@example.com", msg.Personalizations[0].To.Email)
	assert.Equal(t, "Ann", msg.Personalizations[0].Fields["first_name"])
	assert.Equal(t, "https://app.example.com/ann", msg.Personalizations[0].Fields["profile_link"])
	assert.Equal(t, "e@example.com", msg.Personalizations[1].To.Email)
	assert.Equal(t, int64(2), rep.Delivered)
	assert.Equal(t, int64(3), rep.Skipped)
}

func TestEmail_EmptyBatchSendsNothing(t *testing.T) {
	n := squadPostNotification()
	st := &mockStore{}
	st.On("Expand", mock.Anything, n).Return(expanded(n), nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "a"), nil)
	st.On("UsersByIDs", mock.Anything, []string{"a"}).Return([]domain.User{{ID: "a", NotificationEmail: false, Email: "a@example.com"}}, nil)
	m := &recordingMailer{}

	rep, err := newEmail(st, m).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Empty(t, m.sent)
	assert.Equal(t, int64(1), rep.Skipped)
	st.AssertNotCalled(t, "GlobalFlags", mock.Anything, mock.Anything)
}

func TestEmail_TypeWithoutTemplateIsSkipped(t *testing.T) {
	n := squadPostNotification()
	n.Type = domain.TypeArticleAnalytics
	st := &mockStore{}
	m := &recordingMailer{}

	rep, err := newEmail(st, m).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, "no template", rep.Reason)
	st.AssertNotCalled(t, "StreamRecipients", mock.Anything, mock.Anything)
}

func TestEmail_UpvotesAreLocaleFormatted(t *testing.T) {
	n := squadPostNotification()
	n.Type = domain.TypeArticleUpvoteMilestone
	n.UniqueKey = "1000"
	n.ScopeKind, n.ScopeReferenceID = nil, nil
	st := &mockStore{}
	st.On("Expand", mock.Anything, n).Return(expanded(n), nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "a"), nil)
	st.On("UsersByIDs", mock.Anything, []string{"a"}).Return([]domain.User{{ID: "a", Email: "a@example.com", NotificationEmail: true}}, nil)
	st.On("GlobalFlags", mock.Anything, []string{"a"}).Return(map[string]domain.NotificationFlags{}, nil)
	m := &recordingMailer{}

	_, err := newEmail(st, m).Handle(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "1,000", m.sent[0].Static["upvotes"])
}

func TestEmail_MailerFailureIsCounted(t *testing.T) {
	n := squadPostNotification()
	n.ScopeKind, n.ScopeReferenceID = nil, nil
	st := &mockStore{}
	st.On("Expand", mock.Anything, n).Return(expanded(n), nil)
	st.On("StreamRecipients", mock.Anything, "n1").Return(rows(n, "a"), nil)
	st.On("UsersByIDs", mock.Anything, []string{"a"}).Return([]domain.User{{ID: "a", Email: "a@example.com", NotificationEmail: true}}, nil)
	st.On("GlobalFlags", mock.Anything, []string{"a"}).Return(map[string]domain.NotificationFlags{}, nil)
	m := &recordingMailer{err: errors.New("provider 503")}

	rep, err := newEmail(st, m).Handle(context.Background(), n)

	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Failed)
}

func TestEmailTemplate_PrivateTypesHaveNoTemplate(t *testing.T) {
	for _, nt := range domain.AllTypes {
		if !nt.Public() {
			_, ok := emailTemplate(nt)
			assert.False(t, ok, nt)
		}
	}
}
