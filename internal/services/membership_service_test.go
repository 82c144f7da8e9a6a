package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/repositories"
	logger "github.com/campuslink/groupchat/middleware/log"
)

func newMembershipService(t *testing.T) (*MembershipService, *repositories.MemoryStore) {
	t.Helper()
	log, err := logger.NewDevelopmentLogger()
	require.NoError(t, err)
	store := repositories.NewMemoryStore()
	return NewMembershipService(store, nil, log), store
}

func mustCreateGroup(t *testing.T, s *MembershipService, creatorID uint, name string) *GroupDTO {
	t.Helper()
	group, err := s.CreateGroup(creatorID, &CreateGroupRequest{Name: name})
	require.NoError(t, err)
	return group
}

func TestCreateGroup(t *testing.T) {
	s, _ := newMembershipService(t)

	t.Run("creator becomes the sole admin", func(t *testing.T) {
		group := mustCreateGroup(t, s, 1, "chess club")

		members, err := s.ListMembers(group.ID, 1)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, uint(1), members[0].UserID)
		assert.Equal(t, models.RoleAdmin, members[0].Role)
		assert.Equal(t, models.VisibilityPublic, group.Visibility)
	})

	t.Run("rejects empty and oversized names", func(t *testing.T) {
		_, err := s.CreateGroup(1, &CreateGroupRequest{Name: ""})
		assert.ErrorIs(t, err, ErrInvalidGroupName)

		long := make([]byte, 51)
		for i := range long {
			long[i] = 'x'
		}
		_, err = s.CreateGroup(1, &CreateGroupRequest{Name: string(long)})
		assert.ErrorIs(t, err, ErrInvalidGroupName)
	})

	t.Run("requires authentication", func(t *testing.T) {
		_, err := s.CreateGroup(0, &CreateGroupRequest{Name: "anon"})
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestRequestJoin(t *testing.T) {
	t.Run("lands on the pending queue, not the roster", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "hiking")

		require.NoError(t, s.RequestJoin(group.ID, 2))

		assert.False(t, s.IsMember(group.ID, 2))
		reqs, err := s.PendingRequests(group.ID, 1)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, uint(2), reqs[0].UserID)
		assert.NotEmpty(t, reqs[0].RequestID)
	})

	t.Run("duplicate request is rejected", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "hiking")

		require.NoError(t, s.RequestJoin(group.ID, 2))
		assert.ErrorIs(t, s.RequestJoin(group.ID, 2), ErrAlreadyRequested)

		reqs, err := s.PendingRequests(group.ID, 1)
		require.NoError(t, err)
		assert.Len(t, reqs, 1)
	})

	t.Run("member cannot re-request", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "hiking")

		assert.ErrorIs(t, s.RequestJoin(group.ID, 1), ErrAlreadyMember)
	})

	t.Run("unknown group", func(t *testing.T) {
		s, _ := newMembershipService(t)
		assert.ErrorIs(t, s.RequestJoin(999, 2), ErrGroupNotFound)
	})
}

func TestAcceptRequest(t *testing.T) {
	t.Run("promotes requester to member exactly once", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "book club")
		require.NoError(t, s.RequestJoin(group.ID, 2))

		require.NoError(t, s.AcceptRequest(group.ID, 1, 2))
		assert.True(t, s.IsMember(group.ID, 2))
		assert.False(t, s.IsAdmin(group.ID, 2))

		reqs, err := s.PendingRequests(group.ID, 1)
		require.NoError(t, err)
		assert.Empty(t, reqs, "request must leave the queue on accept")

		// A repeated accept finds no pending request and changes nothing.
		assert.ErrorIs(t, s.AcceptRequest(group.ID, 1, 2), ErrNoSuchRequest)
		members, err := s.ListMembers(group.ID, 1)
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("only admins may accept", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "book club")
		require.NoError(t, s.RequestJoin(group.ID, 2))
		require.NoError(t, s.RequestJoin(group.ID, 3))
		require.NoError(t, s.AcceptRequest(group.ID, 1, 2))

		// User 2 is a plain member now; they cannot accept user 3.
		assert.ErrorIs(t, s.AcceptRequest(group.ID, 2, 3), ErrNotAdmin)
		assert.False(t, s.IsMember(group.ID, 3))
	})

	t.Run("accept without a pending request", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "book club")
		assert.ErrorIs(t, s.AcceptRequest(group.ID, 1, 7), ErrNoSuchRequest)
	})
}

func TestRejectAndWithdraw(t *testing.T) {
	t.Run("reject drops the request without membership", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "robotics")
		require.NoError(t, s.RequestJoin(group.ID, 2))

		require.NoError(t, s.RejectRequest(group.ID, 1, 2))
		assert.False(t, s.IsMember(group.ID, 2))
		reqs, err := s.PendingRequests(group.ID, 1)
		require.NoError(t, err)
		assert.Empty(t, reqs)

		// The rejected user may request again later.
		assert.NoError(t, s.RequestJoin(group.ID, 2))
	})

	t.Run("reject requires admin", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "robotics")
		require.NoError(t, s.RequestJoin(group.ID, 2))

		assert.ErrorIs(t, s.RejectRequest(group.ID, 3, 2), ErrNotAdmin)
	})

	t.Run("withdraw removes own request", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "robotics")
		require.NoError(t, s.RequestJoin(group.ID, 2))

		require.NoError(t, s.WithdrawRequest(group.ID, 2))
		reqs, err := s.PendingRequests(group.ID, 1)
		require.NoError(t, err)
		assert.Empty(t, reqs)

		assert.ErrorIs(t, s.WithdrawRequest(group.ID, 2), ErrNoSuchRequest)
	})
}

func TestLeaveAndRemove(t *testing.T) {
	t.Run("leave strips membership", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "choir")
		require.NoError(t, s.RequestJoin(group.ID, 2))
		require.NoError(t, s.AcceptRequest(group.ID, 1, 2))

		require.NoError(t, s.Leave(group.ID, 2))
		assert.False(t, s.IsMember(group.ID, 2))
		assert.ErrorIs(t, s.Leave(group.ID, 2), ErrNotMember)
	})

	t.Run("last admin leaving leaves the group admin-less", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "choir")
		require.NoError(t, s.RequestJoin(group.ID, 2))
		require.NoError(t, s.AcceptRequest(group.ID, 1, 2))

		require.NoError(t, s.Leave(group.ID, 1))

		// User 2 remains a member but nobody is promoted, so admin-gated
		// operations are unreachable for the remaining members.
		members, err := s.ListMembers(group.ID, 2)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, models.RoleMember, members[0].Role)

		require.NoError(t, s.RequestJoin(group.ID, 3))
		assert.ErrorIs(t, s.AcceptRequest(group.ID, 2, 3), ErrNotAdmin)
		_, err = s.PendingRequests(group.ID, 2)
		assert.ErrorIs(t, err, ErrNotAdmin)
	})

	t.Run("admin removes a member", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "choir")
		require.NoError(t, s.RequestJoin(group.ID, 2))
		require.NoError(t, s.AcceptRequest(group.ID, 1, 2))

		require.NoError(t, s.RemoveMember(group.ID, 1, 2))
		assert.False(t, s.IsMember(group.ID, 2))
		assert.ErrorIs(t, s.RemoveMember(group.ID, 1, 2), ErrNotMember)
	})

	t.Run("non-admin cannot remove", func(t *testing.T) {
		s, _ := newMembershipService(t)
		group := mustCreateGroup(t, s, 1, "choir")
		require.NoError(t, s.RequestJoin(group.ID, 2))
		require.NoError(t, s.AcceptRequest(group.ID, 1, 2))

		assert.ErrorIs(t, s.RemoveMember(group.ID, 2, 1), ErrNotAdmin)
		assert.True(t, s.IsMember(group.ID, 1))
	})
}

func TestListing(t *testing.T) {
	s, _ := newMembershipService(t)

	g1 := mustCreateGroup(t, s, 1, "alpha")
	g2 := mustCreateGroup(t, s, 2, "beta")
	private, err := s.CreateGroup(2, &CreateGroupRequest{Name: "hidden", Visibility: models.VisibilityPrivate})
	require.NoError(t, err)

	t.Run("joinable excludes own and private groups", func(t *testing.T) {
		joinable, err := s.ListJoinable(1)
		require.NoError(t, err)
		require.Len(t, joinable, 1)
		assert.Equal(t, g2.ID, joinable[0].ID)
	})

	t.Run("mine lists only memberships", func(t *testing.T) {
		mine, err := s.ListMine(2)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, g2.ID, mine[0].ID)
		assert.Equal(t, private.ID, mine[1].ID)
	})

	t.Run("roster requires membership", func(t *testing.T) {
		_, err := s.ListMembers(g1.ID, 2)
		assert.ErrorIs(t, err, ErrNotMember)
	})
}

// A requester who is accepted sees the group through the member paths and
// no longer appears in the pending queue, end to end.
func TestJoinWorkflow_EndToEnd(t *testing.T) {
	s, _ := newMembershipService(t)
	group := mustCreateGroup(t, s, 1, "campus radio")

	require.NoError(t, s.RequestJoin(group.ID, 2))
	assert.False(t, s.IsMember(group.ID, 2))

	mine, err := s.ListMine(2)
	require.NoError(t, err)
	assert.Empty(t, mine, "pending request must not show as membership")

	require.NoError(t, s.AcceptRequest(group.ID, 1, 2))

	mine, err = s.ListMine(2)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, group.ID, mine[0].ID)

	joinable, err := s.ListJoinable(2)
	require.NoError(t, err)
	assert.Empty(t, joinable, "joined group leaves the joinable list")
}
