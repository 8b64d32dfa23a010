package ports

import "github.com/bnema/parley/internal/domain"

// Inviter notifies an agent's decision process that it has been invited to
// reply in a conversation. The decision process answers by joining the
// speaker queue, or not at all.
type Inviter interface {
	InviteToRespond(conversationID domain.ConversationID, agentID domain.AgentID)
}
