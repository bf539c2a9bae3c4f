package activitymap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/txnjournal/go-txn-auth/activitymap"
)

func TestFromEventAdminStatusChange(t *testing.T) {
	at := time.Date(2024, 6, 1, 20, 0, 0, 0, time.FixedZone("TPE", 8*3600))
	meta := map[string]any{"reason": "chargeback", "ticket": 42}

	r := activitymap.FromEvent(auth.ActivityEvent{
		EventType:  auth.ActivityEventUserStatusChanged,
		Actor:      auth.ActorRef{ID: "admin-1", Role: auth.RoleAdmin},
		UserID:     "user-9",
		FromStatus: auth.StatusActive,
		ToStatus:   auth.StatusSuspended,
		Metadata:   meta,
		OccurredAt: at,
	})

	assert.Equal(t, activitymap.DefaultChannel, r.Channel)
	assert.Equal(t, activitymap.CategoryAdmin, r.Category)
	assert.Equal(t, "user.status.changed", r.Verb)
	assert.Equal(t, "admin-1", r.ActorID)
	assert.Equal(t, "admin", r.ActorRole)
	assert.Equal(t, "user-9", r.SubjectID)
	assert.Equal(t, []byte("user-9"), r.PartitionKey())
	require.NotNil(t, r.Status)
	assert.Equal(t, activitymap.Change{From: "active", To: "suspended"}, *r.Status)
	assert.Nil(t, r.Role)
	assert.Equal(t, "chargeback", r.Reason)
	assert.Equal(t, map[string]any{"ticket": 42}, r.Metadata)
	assert.Equal(t, time.UTC, r.OccurredAt.Location())
	assert.True(t, r.OccurredAt.Equal(at))
	assert.Contains(t, meta, "reason", "event metadata is not mutated")
}

func TestFromEventRoleChange(t *testing.T) {
	r := activitymap.FromEvent(auth.ActivityEvent{
		EventType: auth.ActivityEventUserRoleChanged,
		Actor:     auth.ActorRef{ID: "root", Role: auth.RoleSuperAdmin},
		UserID:    "user-2",
		FromRole:  auth.RoleUser,
		ToRole:    auth.RoleModerator,
	})

	require.NotNil(t, r.Role)
	assert.Equal(t, activitymap.Change{From: "user", To: "moderator"}, *r.Role)
	assert.Nil(t, r.Status)
	assert.Nil(t, r.Metadata)
	assert.False(t, r.OccurredAt.IsZero())
}

func TestFromEventActor(t *testing.T) {
	tests := []struct {
		name  string
		event auth.ActivityEvent
		want  string
	}{
		{
			name:  "sign in is acted by its subject",
			event: auth.ActivityEvent{EventType: auth.ActivityEventSignedIn, UserID: "u1"},
			want:  "u1",
		},
		{
			name:  "profile creation is acted by its subject",
			event: auth.ActivityEvent{EventType: auth.ActivityEventProfileCreated, UserID: "u1"},
			want:  "u1",
		},
		{
			name:  "admin event without actor",
			event: auth.ActivityEvent{EventType: auth.ActivityEventUserApproved, UserID: "u1"},
			want:  activitymap.SystemActor,
		},
		{
			name:  "failed sign in for unknown account",
			event: auth.ActivityEvent{EventType: auth.ActivityEventSignInFailed},
			want:  activitymap.SystemActor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, activitymap.FromEvent(tt.event).ActorID)
		})
	}
}

func TestWithChannel(t *testing.T) {
	event := auth.ActivityEvent{EventType: auth.ActivityEventSignedOut, UserID: "u1"}

	assert.Equal(t, "journal-prod", activitymap.FromEvent(event, activitymap.WithChannel(" journal-prod ")).Channel)
	assert.Equal(t, activitymap.DefaultChannel, activitymap.FromEvent(event, activitymap.WithChannel(" ")).Channel)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, activitymap.CategorySession, activitymap.CategoryOf(auth.ActivityEventSignInFailed))
	assert.Equal(t, activitymap.CategoryProfile, activitymap.CategoryOf(auth.ActivityEventProfileCreated))
	assert.Equal(t, activitymap.CategoryAdmin, activitymap.CategoryOf(auth.ActivityEventUserRejected))
}
