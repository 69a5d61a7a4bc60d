package notification

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-notify/internal/domain"
)

// Draft is everything the assembler needs to persist one notification, before
// avatars and attachments are resolved to ids.
type Draft struct {
	Notification domain.Notification
	// Avatars and Attachments are in presentation order. Only Kind, ReferenceID
	// and the display fields are set; they seed the record on first use.
	Avatars     []domain.Avatar
	Attachments []domain.Attachment
	Scope       *domain.Scope
}

// Drafter maps producer contexts to drafts. It is a closed switch over
// NotificationType; every type in domain.AllTypes has a case.
type Drafter struct {
	webURL string
}

func NewDrafter(webURL string) *Drafter {
	return &Drafter{webURL: strings.TrimRight(webURL, "/")}
}

// Build returns the draft for t. c must be the variant domain.NewContext(t) returns.
func (d *Drafter) Build(t domain.NotificationType, c domain.Context) (*Draft, error) {
	switch t {
	case domain.TypeArticlePicked:
		ctx, err := as[*domain.PostContext](t, c)
		if err != nil {
			return nil, err
		}
		dr := d.post(t, ctx.Post, "Congrats! Your post got listed on the daily.dev feed")
		dr.Avatars = []domain.Avatar{d.sourceAvatar(ctx.Source)}
		return dr, nil

	case domain.TypeArticleAnalytics:
		ctx, err := as[*domain.PostContext](t, c)
		if err != nil {
			return nil, err
		}
		dr := d.post(t, ctx.Post, "Your post is getting noticed. See how it performs")
		dr.Avatars = []domain.Avatar{d.sourceAvatar(ctx.Source)}
		return dr, nil

	case domain.TypeArticleNewComment, domain.TypeSquadNewComment,
		domain.TypeCommentMention, domain.TypeCommentReply, domain.TypeSquadReply:
		ctx, err := as[*domain.CommentContext](t, c)
		if err != nil {
			return nil, err
		}
		return d.comment(t, ctx), nil

	case domain.TypeArticleUpvoteMilestone, domain.TypeCommentUpvoteMilestone:
		ctx, err := as[*domain.UpvotesContext](t, c)
		if err != nil {
			return nil, err
		}
		return d.upvotes(t, ctx)

	case domain.TypeSquadFeatured, domain.TypeSourceApproved:
		ctx, err := as[*domain.SourceContext](t, c)
		if err != nil {
			return nil, err
		}
		title := fmt.Sprintf("%s is now featured on the squads directory", ctx.Source.Name)
		if t == domain.TypeSourceApproved {
			title = fmt.Sprintf("Your source request for %s was approved", ctx.Source.Name)
		}
		dr := d.base(t, title, d.sourceURL(ctx.Source))
		dr.Notification.ReferenceID = ptr(ctx.Source.ID)
		dr.Notification.ReferenceType = ptr(domain.ReferenceKindSource)
		dr.Avatars = []domain.Avatar{d.sourceAvatar(ctx.Source)}
		return dr, nil

	case domain.TypeSquadMemberJoined, domain.TypePromotedToAdmin,
		domain.TypePromotedToModerator, domain.TypeDemotedToMember:
		ctx, err := as[*domain.SquadMemberContext](t, c)
		if err != nil {
			return nil, err
		}
		return d.member(t, ctx), nil

	case domain.TypeSquadPostAdded, domain.TypeSourcePostAdded:
		ctx, err := as[*domain.SquadPostContext](t, c)
		if err != nil {
			return nil, err
		}
		title := fmt.Sprintf("New post in %s", ctx.Source.Name)
		if t == domain.TypeSquadPostAdded {
			title = fmt.Sprintf("%s shared a new post in %s", displayName(ctx.DoneBy), ctx.Source.Name)
		}
		dr := d.post(t, ctx.Post, title)
		dr.Avatars = []domain.Avatar{d.sourceAvatar(ctx.Source)}
		if t == domain.TypeSquadPostAdded {
			dr.Avatars = append(dr.Avatars, d.userAvatar(ctx.DoneBy))
		}
		dr.Scope = &domain.Scope{Kind: domain.ScopeSource, ReferenceID: ctx.Source.ID}
		return dr, nil

	case domain.TypeUserPostAdded:
		ctx, err := as[*domain.UserPostContext](t, c)
		if err != nil {
			return nil, err
		}
		dr := d.post(t, ctx.Post, fmt.Sprintf("%s published a new post", displayName(ctx.Author)))
		dr.Avatars = []domain.Avatar{d.userAvatar(ctx.Author)}
		dr.Scope = &domain.Scope{Kind: domain.ScopeUser, ReferenceID: ctx.Author.ID}
		return dr, nil

	case domain.TypeNewOpportunityMatch:
		ctx, err := as[*domain.OpportunityContext](t, c)
		if err != nil {
			return nil, err
		}
		title := fmt.Sprintf("New opportunity waiting for you: %s", ctx.Title)
		if ctx.Company != "" {
			title = fmt.Sprintf("%s at %s is a match for you", ctx.Title, ctx.Company)
		}
		dr := d.base(t, title, fmt.Sprintf("%s/opportunity/%s", d.webURL, ctx.OpportunityID))
		dr.Notification.ReferenceID = ptr(ctx.OpportunityID)
		dr.Notification.ReferenceType = ptr(domain.ReferenceKindOpportunity)
		if ctx.Company != "" {
			dr.Avatars = []domain.Avatar{{
				Kind:        domain.ReferenceKindOpportunity,
				ReferenceID: ctx.OpportunityID,
				Image:       ctx.CompanyImage,
				Name:        ctx.Company,
				TargetURL:   dr.Notification.TargetURL,
			}}
		}
		return dr, nil
	}
	return nil, fmt.Errorf("no draft builder for %q: %w", t, domain.ErrBadRequest)
}

func (d *Drafter) base(t domain.NotificationType, title, targetURL string) *Draft {
	return &Draft{
		Notification: domain.Notification{
			Type:      t,
			Icon:      t.Icon(),
			Title:     title,
			TargetURL: targetURL,
			Public:    t.Public(),
			UniqueKey: "0",
		},
	}
}

// post drafts a notification whose subject is a post, scoped to that post.
func (d *Drafter) post(t domain.NotificationType, p domain.PostRef, title string) *Draft {
	dr := d.base(t, title, d.postURL(p.ID))
	dr.Notification.ReferenceID = ptr(p.ID)
	dr.Notification.ReferenceType = ptr(domain.ReferenceKindPost)
	dr.Attachments = []domain.Attachment{d.postAttachment(p)}
	dr.Scope = &domain.Scope{Kind: domain.ScopePost, ReferenceID: p.ID}
	return dr
}

func (d *Drafter) comment(t domain.NotificationType, c *domain.CommentContext) *Draft {
	var title string
	who := displayName(c.Commenter)
	switch t {
	case domain.TypeArticleNewComment:
		title = fmt.Sprintf("%s commented on your post", who)
	case domain.TypeSquadNewComment:
		title = fmt.Sprintf("%s commented on your post in %s", who, c.Source.Name)
	case domain.TypeCommentMention:
		title = fmt.Sprintf("%s mentioned you in a comment", who)
	default:
		title = fmt.Sprintf("%s replied to your comment", who)
	}
	dr := d.base(t, title, fmt.Sprintf("%s#c-%s", d.postURL(c.Post.ID), c.Comment.ID))
	dr.Notification.Description = nonEmpty(c.Comment.Content)
	dr.Notification.ReferenceID = ptr(c.Comment.ID)
	dr.Notification.ReferenceType = ptr(domain.ReferenceKindComment)
	dr.Avatars = []domain.Avatar{d.userAvatar(c.Commenter)}
	dr.Attachments = []domain.Attachment{d.postAttachment(c.Post)}

	switch t.ScopeKind() {
	case domain.ScopePost:
		dr.Scope = &domain.Scope{Kind: domain.ScopePost, ReferenceID: c.Post.ID}
	case domain.ScopeSource:
		dr.Scope = &domain.Scope{Kind: domain.ScopeSource, ReferenceID: c.Source.ID}
	case domain.ScopeComment:
		thread := c.Comment.ParentID
		if thread == "" {
			thread = c.Comment.ID
		}
		dr.Scope = &domain.Scope{Kind: domain.ScopeComment, ReferenceID: thread}
	}
	return dr
}

// upvotes uses the milestone as the dedup key so each milestone notifies once.
func (d *Drafter) upvotes(t domain.NotificationType, c *domain.UpvotesContext) (*Draft, error) {
	var dr *Draft
	if t == domain.TypeCommentUpvoteMilestone {
		if c.Comment == nil {
			return nil, fmt.Errorf("%s requires a comment: %w", t, domain.ErrBadRequest)
		}
		dr = d.base(t, fmt.Sprintf("You earned %d upvotes on your comment", c.Upvotes),
			fmt.Sprintf("%s#c-%s", d.postURL(c.Post.ID), c.Comment.ID))
		dr.Notification.Description = nonEmpty(c.Comment.Content)
		dr.Notification.ReferenceID = ptr(c.Comment.ID)
		dr.Notification.ReferenceType = ptr(domain.ReferenceKindComment)
		dr.Attachments = []domain.Attachment{d.postAttachment(c.Post)}
		dr.Scope = &domain.Scope{Kind: domain.ScopeComment, ReferenceID: c.Comment.ID}
	} else {
		dr = d.post(t, c.Post, fmt.Sprintf("You earned %d upvotes on your post", c.Upvotes))
	}
	dr.Notification.UniqueKey = strconv.FormatInt(c.Upvotes, 10)
	for _, u := range c.Upvoters {
		dr.Avatars = append(dr.Avatars, d.userAvatar(u))
	}
	return dr, nil
}

// member keys joins by the joining user; role changes rely on the producer's dedup key.
func (d *Drafter) member(t domain.NotificationType, c *domain.SquadMemberContext) *Draft {
	var title string
	switch t {
	case domain.TypeSquadMemberJoined:
		title = fmt.Sprintf("%s joined %s", displayName(c.DoneBy), c.Source.Name)
	case domain.TypePromotedToAdmin:
		title = fmt.Sprintf("You are now an admin of %s", c.Source.Name)
	case domain.TypePromotedToModerator:
		title = fmt.Sprintf("You are now a moderator of %s", c.Source.Name)
	default:
		title = fmt.Sprintf("Your role in %s changed to member", c.Source.Name)
	}
	dr := d.base(t, title, d.sourceURL(c.Source))
	dr.Notification.ReferenceID = ptr(c.Source.ID)
	dr.Notification.ReferenceType = ptr(domain.ReferenceKindSource)
	dr.Avatars = []domain.Avatar{d.sourceAvatar(c.Source)}
	if t == domain.TypeSquadMemberJoined {
		dr.Notification.UniqueKey = c.DoneBy.ID
		dr.Avatars = append(dr.Avatars, d.userAvatar(c.DoneBy))
		dr.Scope = &domain.Scope{Kind: domain.ScopeSource, ReferenceID: c.Source.ID}
	}
	return dr
}

func (d *Drafter) postURL(postID string) string {
	return fmt.Sprintf("%s/posts/%s", d.webURL, postID)
}

func (d *Drafter) sourceURL(s domain.SourceRef) string {
	if s.Squad {
		return fmt.Sprintf("%s/squads/%s", d.webURL, s.Handle)
	}
	return fmt.Sprintf("%s/sources/%s", d.webURL, s.Handle)
}

func (d *Drafter) userAvatar(u domain.UserRef) domain.Avatar {
	return domain.Avatar{
		Kind:        domain.ReferenceKindUser,
		ReferenceID: u.ID,
		Image:       u.Image,
		Name:        displayName(u),
		TargetURL:   fmt.Sprintf("%s/%s", d.webURL, u.Username),
	}
}

func (d *Drafter) sourceAvatar(s domain.SourceRef) domain.Avatar {
	return domain.Avatar{
		Kind:        domain.ReferenceKindSource,
		ReferenceID: s.ID,
		Image:       s.Image,
		Name:        s.Name,
		TargetURL:   d.sourceURL(s),
	}
}

func (d *Drafter) postAttachment(p domain.PostRef) domain.Attachment {
	return domain.Attachment{
		Kind:        domain.ReferenceKindPost,
		ReferenceID: p.ID,
		Image:       p.Image,
		Title:       p.Title,
		TargetURL:   d.postURL(p.ID),
	}
}

// as asserts that c is the variant T expected for t.
func as[T domain.Context](t domain.NotificationType, c domain.Context) (T, error) {
	v, ok := c.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("context %T does not match type %q: %w", c, t, domain.ErrBadRequest)
	}
	return v, nil
}

func displayName(u domain.UserRef) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func ptr[T any](v T) *T { return &v }

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
