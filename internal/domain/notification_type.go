package domain

// NotificationType is the closed set of notifications the pipeline can assemble.
type NotificationType string

const (
	TypeArticlePicked          NotificationType = "article_picked"
	TypeArticleNewComment      NotificationType = "article_new_comment"
	TypeArticleUpvoteMilestone NotificationType = "article_upvote_milestone"
	TypeArticleAnalytics       NotificationType = "article_analytics"
	TypeCommentMention         NotificationType = "comment_mention"
	TypeCommentReply           NotificationType = "comment_reply"
	TypeCommentUpvoteMilestone NotificationType = "comment_upvote_milestone"
	TypeSquadPostAdded         NotificationType = "squad_post_added"
	TypeSquadNewComment        NotificationType = "squad_new_comment"
	TypeSquadReply             NotificationType = "squad_reply"
	TypeSquadMemberJoined      NotificationType = "squad_member_joined"
	TypeSquadFeatured          NotificationType = "squad_featured"
	TypeSourceApproved         NotificationType = "source_approved"
	TypePromotedToAdmin        NotificationType = "promoted_to_admin"
	TypePromotedToModerator    NotificationType = "promoted_to_moderator"
	TypeDemotedToMember        NotificationType = "demoted_to_member"
	TypeSourcePostAdded        NotificationType = "source_post_added"
	TypeUserPostAdded          NotificationType = "user_post_added"
	TypeNewOpportunityMatch    NotificationType = "new_opportunity_match"
)

// AllTypes lists every NotificationType. Tests iterate it to check registries are exhaustive.
var AllTypes = []NotificationType{
	TypeArticlePicked,
	TypeArticleNewComment,
	TypeArticleUpvoteMilestone,
	TypeArticleAnalytics,
	TypeCommentMention,
	TypeCommentReply,
	TypeCommentUpvoteMilestone,
	TypeSquadPostAdded,
	TypeSquadNewComment,
	TypeSquadReply,
	TypeSquadMemberJoined,
	TypeSquadFeatured,
	TypeSourceApproved,
	TypePromotedToAdmin,
	TypePromotedToModerator,
	TypeDemotedToMember,
	TypeSourcePostAdded,
	TypeUserPostAdded,
	TypeNewOpportunityMatch,
}

// Valid reports whether t is a member of the closed set.
func (t NotificationType) Valid() bool {
	for _, v := range AllTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DefaultStatus is the channel status a user gets when no preference row exists.
func (t NotificationType) DefaultStatus(ch Channel) PreferenceStatus {
	switch t {
	case TypeArticleAnalytics, TypeSquadMemberJoined, TypeSourcePostAdded:
		if ch == ChannelEmail {
			return StatusMuted
		}
	}
	return StatusSubscribed
}

// ScopeKind names which kind of reference scoped preferences for t are keyed by,
// or "" when t cannot be muted more narrowly than the whole type.
func (t NotificationType) ScopeKind() ScopeKind {
	switch t {
	case TypeArticlePicked, TypeArticleNewComment, TypeArticleUpvoteMilestone, TypeArticleAnalytics:
		return ScopePost
	case TypeCommentMention, TypeCommentReply, TypeCommentUpvoteMilestone, TypeSquadReply:
		return ScopeComment
	case TypeSquadPostAdded, TypeSquadNewComment, TypeSquadMemberJoined, TypeSourcePostAdded:
		return ScopeSource
	case TypeUserPostAdded:
		return ScopeUser
	}
	return ""
}

// IsFollow reports whether t is produced by a follow relationship. Push for these
// types is limited to users who opted into follow notifications.
func (t NotificationType) IsFollow() bool {
	return t == TypeSourcePostAdded || t == TypeUserPostAdded
}

// Public reports whether notifications of type t are broadcast on real-time,
// push and email channels.
func (t NotificationType) Public() bool {
	return t != TypeDemotedToMember
}

// Icon is the client-side icon name shown next to notifications of type t.
func (t NotificationType) Icon() string {
	switch t {
	case TypeArticlePicked, TypeSourceApproved, TypeSquadFeatured:
		return "Star"
	case TypeArticleNewComment, TypeCommentMention, TypeCommentReply, TypeSquadNewComment, TypeSquadReply:
		return "Comment"
	case TypeArticleUpvoteMilestone, TypeCommentUpvoteMilestone:
		return "Upvote"
	case TypeArticleAnalytics:
		return "Analytics"
	case TypeSquadPostAdded, TypeSquadMemberJoined, TypePromotedToAdmin, TypePromotedToModerator, TypeDemotedToMember:
		return "Squad"
	case TypeSourcePostAdded, TypeUserPostAdded:
		return "Bell"
	case TypeNewOpportunityMatch:
		return "Opportunity"
	}
	return "DailyDev"
}
