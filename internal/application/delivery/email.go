package delivery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-notify/internal/application/preference"
	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/infrastructure/mail"
	"github.com/go-notify/internal/pkg/locale"
	"github.com/go-notify/internal/pkg/stream"
	"go.uber.org/zap"
)

// emailTemplate returns the provider template for t. Types without a template
// get no email.
func emailTemplate(t domain.NotificationType) (string, bool) {
	switch t {
	case domain.TypeArticlePicked:
		return "notification-article-picked", true
	case domain.TypeArticleNewComment:
		return "notification-article-new-comment", true
	case domain.TypeArticleUpvoteMilestone:
		return "notification-article-upvote-milestone", true
	case domain.TypeCommentMention:
		return "notification-comment-mention", true
	case domain.TypeCommentReply, domain.TypeSquadReply:
		return "notification-comment-reply", true
	case domain.TypeCommentUpvoteMilestone:
		return "notification-comment-upvote-milestone", true
	case domain.TypeSquadPostAdded:
		return "notification-squad-post-added", true
	case domain.TypeSquadNewComment:
		return "notification-squad-new-comment", true
	case domain.TypeSquadMemberJoined:
		return "notification-squad-member-joined", true
	case domain.TypeSquadFeatured:
		return "notification-squad-featured", true
	case domain.TypeSourceApproved:
		return "notification-source-approved", true
	case domain.TypePromotedToAdmin, domain.TypePromotedToModerator:
		return "notification-squad-role-promoted", true
	case domain.TypeSourcePostAdded, domain.TypeUserPostAdded:
		return "notification-followed-post", true
	case domain.TypeNewOpportunityMatch:
		return "notification-opportunity-match", true
	}
	return "", false
}

// personalizer builds the per-recipient template fields.
type personalizer func(u domain.User, n *domain.ExpandedNotification, webURL string) map[string]any

func personalizerFor(t domain.NotificationType) personalizer {
	switch t {
	case domain.TypeCommentMention, domain.TypeCommentReply, domain.TypeSquadReply,
		domain.TypeArticleNewComment, domain.TypeSquadNewComment:
		return commenterFields
	case domain.TypeNewOpportunityMatch:
		return candidateFields
	}
	return recipientFields
}

func recipientFields(u domain.User, _ *domain.ExpandedNotification, webURL string) map[string]any {
	return map[string]any{
		"first_name":    u.FirstName(),
		"profile_link":  fmt.Sprintf("%s/%s", webURL, u.Username),
		"settings_link": webURL + "/account/notifications",
	}
}

func commenterFields(u domain.User, n *domain.ExpandedNotification, webURL string) map[string]any {
	f := recipientFields(u, n, webURL)
	f["full_name"] = u.Name
	f["reply_link"] = n.TargetURL
	return f
}

func candidateFields(u domain.User, n *domain.ExpandedNotification, webURL string) map[string]any {
	f := recipientFields(u, n, webURL)
	f["username"] = u.Username
	f["email"] = u.Email
	return f
}

// staticFields are shared by every recipient of n.
func staticFields(n *domain.ExpandedNotification) map[string]any {
	f := map[string]any{
		"type":       string(n.Type),
		"title":      n.Title,
		"target_url": n.TargetURL,
	}
	if n.Description != nil {
		f["description"] = *n.Description
	}
	if len(n.Attachments) > 0 {
		f["post_title"] = n.Attachments[0].Title
		f["post_image"] = n.Attachments[0].Image
	}
	if len(n.Avatars) > 0 {
		f["avatar_name"] = n.Avatars[0].Name
		f["avatar_image"] = n.Avatars[0].Image
	}
	switch n.Type {
	case domain.TypeArticleUpvoteMilestone, domain.TypeCommentUpvoteMilestone:
		if upvotes, err := strconv.ParseInt(n.UniqueKey, 10, 64); err == nil {
			f["upvotes"] = upvotes
		}
	}
	return f
}

// Email sends one templated batch per group of recipients who accept email.
type Email struct {
	recipients  recipientStore
	expander    expander
	users       userStore
	resolver    *preference.Resolver
	mailer      mail.Mailer
	locale      *locale.Formatter
	webURL      string
	batchSize   int
	concurrency int
	log         *zap.Logger
}

type EmailDeps struct {
	Recipients  recipientStore
	Expander    expander
	Users       userStore
	Preferences preference.Store
	Mailer      mail.Mailer
	Locale      *locale.Formatter
	WebURL      string
	BatchSize   int
	Concurrency int
	Logger      *zap.Logger
}

func NewEmail(deps EmailDeps) *Email {
	return &Email{
		recipients:  deps.Recipients,
		expander:    deps.Expander,
		users:       deps.Users,
		resolver:    preference.NewResolver(deps.Preferences),
		mailer:      deps.Mailer,
		locale:      deps.Locale,
		webURL:      strings.TrimRight(deps.WebURL, "/"),
		batchSize:   deps.BatchSize,
		concurrency: deps.Concurrency,
		log:         deps.Logger.Named(ChannelEmail),
	}
}

func (e *Email) Handle(ctx context.Context, n domain.Notification) (Report, error) {
	if !n.Public {
		return skipped(ChannelEmail, "private"), nil
	}
	templateID, ok := emailTemplate(n.Type)
	if !ok {
		return skipped(ChannelEmail, "no template"), nil
	}
	expanded, err := e.expander.Expand(ctx, n)
	if err != nil {
		return Report{}, fmt.Errorf("expand notification %s: %w", n.ID, err)
	}
	static := e.locale.Data(staticFields(expanded))
	personalize := personalizerFor(n.Type)
	scope := n.Scope()

	cur, err := e.recipients.StreamRecipients(ctx, n.ID)
	if err != nil {
		return Report{}, err
	}

	var c counters
	err = stream.ProcessInBatches(ctx, cur, e.concurrency, e.batchSize, func(ctx context.Context, batch []domain.UserNotification) error {
		c.batches.Add(1)
		c.recipients.Add(int64(len(batch)))

		users, err := e.reachable(ctx, userIDs(batch), n.Type, scope)
		if err != nil {
			c.failed.Add(int64(len(batch)))
			e.log.Error("load email recipients failed", zap.String("notification_id", n.ID), zap.Error(err))
			return nil
		}
		c.skipped.Add(int64(len(batch) - len(users)))
		if len(users) == 0 {
			return nil
		}

		msg := mail.Message{
			TemplateID:       templateID,
			Static:           static,
			Personalizations: make([]mail.Personalization, 0, len(users)),
		}
		for _, u := range users {
			msg.Personalizations = append(msg.Personalizations, mail.Personalization{
				To:     mail.Address{Email: u.Email, Name: u.Name},
				Fields: e.locale.Data(personalize(u, expanded, e.webURL)),
			})
		}
		if err := e.mailer.Send(ctx, msg); err != nil {
			c.failed.Add(int64(len(users)))
			e.log.Error("email batch failed",
				zap.String("notification_id", n.ID),
				zap.String("template", templateID),
				zap.Int("users", len(users)),
				zap.Error(err))
			return nil
		}
		c.delivered.Add(int64(len(users)))
		return nil
	})
	rep := c.report(ChannelEmail)
	logReport(e.log, n.ID, rep)
	return rep, err
}

// reachable returns the users among ids who have an address, allow
// notification email and have not muted t on email. Order follows ids.
func (e *Email) reachable(ctx context.Context, ids []string, t domain.NotificationType, scope *domain.Scope) ([]domain.User, error) {
	rows, err := e.users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.User, len(rows))
	for _, u := range rows {
		if u.Email != "" && u.NotificationEmail {
			byID[u.ID] = u
		}
	}
	candidates := make([]string, 0, len(byID))
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			candidates = append(candidates, id)
		}
	}
	eligible, err := e.resolver.Eligible(ctx, candidates, t, domain.ChannelEmail, scope)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(eligible))
	for _, id := range eligible {
		out = append(out, byID[id])
	}
	return out, nil
}
