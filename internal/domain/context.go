package domain

import (
	"encoding/json"
	"fmt"
)

// Context is the producer-supplied payload for one notification. Each concrete
// variant carries exactly the fields its notification types need.
type Context interface {
	// Recipients returns the candidate user ids, already scoped by the producer.
	Recipients() []string
	// Dedup returns a caller-supplied dedup key, or "" to use the type's default.
	Dedup() string
}

// Base holds the fields every context variant shares.
type Base struct {
	UserIDs  []string `json:"userIds" validate:"dive,required"`
	DedupKey string   `json:"dedupKey,omitempty"`
}

func (b Base) Recipients() []string { return b.UserIDs }
func (b Base) Dedup() string        { return b.DedupKey }

// UserRef is the display data of a user referenced by a notification.
type UserRef struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image"`
}

// SourceRef is the display data of a source or squad.
type SourceRef struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Handle string `json:"handle" validate:"required"`
	Image  string `json:"image"`
	Squad  bool   `json:"squad"`
}

// PostRef is the display data of a post.
type PostRef struct {
	ID       string `json:"id" validate:"required"`
	Title    string `json:"title"`
	Image    string `json:"image"`
	SourceID string `json:"sourceId"`
}

// CommentRef is the display data of a comment.
type CommentRef struct {
	ID       string `json:"id" validate:"required"`
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`
}

// PostContext: a post-level event with no acting user (picked, analytics).
type PostContext struct {
	Base
	Post        PostRef   `json:"post" validate:"required"`
	Source      SourceRef `json:"source" validate:"required"`
	Impressions int64     `json:"impressions,omitempty"`
}

// CommentContext: a comment was written on a post the recipients care about.
type CommentContext struct {
	Base
	Post      PostRef    `json:"post" validate:"required"`
	Source    SourceRef  `json:"source" validate:"required"`
	Comment   CommentRef `json:"comment" validate:"required"`
	Commenter UserRef    `json:"commenter" validate:"required"`
}

// UpvotesContext: a post or comment crossed an upvote milestone.
type UpvotesContext struct {
	Base
	Post     PostRef     `json:"post" validate:"required"`
	Source   SourceRef   `json:"source" validate:"required"`
	Comment  *CommentRef `json:"comment,omitempty"`
	Upvotes  int64       `json:"upvotes" validate:"gt=0"`
	Upvoters []UserRef   `json:"upvoters" validate:"dive"`
}

// SourceContext: an event about a source or squad itself.
type SourceContext struct {
	Base
	Source SourceRef `json:"source" validate:"required"`
}

// SquadMemberContext: a membership change in a squad.
type SquadMemberContext struct {
	Base
	Source SourceRef `json:"source" validate:"required"`
	DoneBy UserRef   `json:"doneBy" validate:"required"`
}

// SquadPostContext: a post was shared into a squad.
type SquadPostContext struct {
	Base
	Post   PostRef   `json:"post" validate:"required"`
	Source SourceRef `json:"source" validate:"required"`
	DoneBy UserRef   `json:"doneBy" validate:"required"`
}

// UserPostContext: a user the recipients follow published a post.
type UserPostContext struct {
	Base
	Post   PostRef `json:"post" validate:"required"`
	Author UserRef `json:"author" validate:"required"`
}

// OpportunityContext: a candidate was matched to an opportunity.
type OpportunityContext struct {
	Base
	OpportunityID string `json:"opportunityId" validate:"required"`
	Title         string `json:"title" validate:"required"`
	Company       string `json:"company"`
	CompanyImage  string `json:"companyImage"`
}

// NewContext returns an empty context variant for t.
func NewContext(t NotificationType) (Context, error) {
	switch t {
	case TypeArticlePicked, TypeArticleAnalytics:
		return &PostContext{}, nil
	case TypeArticleNewComment, TypeCommentMention, TypeCommentReply, TypeSquadNewComment, TypeSquadReply:
		return &CommentContext{}, nil
	case TypeArticleUpvoteMilestone, TypeCommentUpvoteMilestone:
		return &UpvotesContext{}, nil
	case TypeSquadFeatured, TypeSourceApproved:
		return &SourceContext{}, nil
	case TypeSquadMemberJoined, TypePromotedToAdmin, TypePromotedToModerator, TypeDemotedToMember:
		return &SquadMemberContext{}, nil
	case TypeSquadPostAdded, TypeSourcePostAdded:
		return &SquadPostContext{}, nil
	case TypeUserPostAdded:
		return &UserPostContext{}, nil
	case TypeNewOpportunityMatch:
		return &OpportunityContext{}, nil
	}
	return nil, fmt.Errorf("unknown notification type %q: %w", t, ErrBadRequest)
}

// DecodeContext unmarshals raw into the context variant matching t.
func DecodeContext(t NotificationType, raw json.RawMessage) (Context, error) {
	c, err := NewContext(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decode %s context: %v: %w", t, err, ErrBadRequest)
	}
	return c, nil
}
