package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateport/internal/portpool"
	"gateport/internal/session"
)

func newRegistry(t *testing.T, low, high int) *session.Registry {
	t.Helper()
	pool := portpool.New(low, high)
	codes := session.NewCodeGenerator(8, "0123456789ABCDEF")
	return session.NewRegistry(pool, codes)
}

func TestCreatePendingSession(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	snap, err := reg.Create(map[string]string{"name": "steve"}, time.Hour)
	require.NoError(t, err)

	assert.Len(t, snap.Code, 8)
	assert.Equal(t, session.StatusPending, snap.Status)
	assert.GreaterOrEqual(t, snap.Port, 30000)
	assert.Less(t, snap.Port, 30010)
	assert.True(t, snap.ExpiresAt.After(snap.CreatedAt))
	assert.Equal(t, map[string]string{"name": "steve"}, snap.UserInfo)
	assert.Nil(t, snap.ApprovedAt)
	assert.Nil(t, snap.RevokedAt)
}

func TestCreateRejectsNonPositiveTTL(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	_, err := reg.Create(nil, 0)
	require.Error(t, err)
	_, err = reg.Create(nil, -time.Minute)
	require.Error(t, err)
}

func TestCreateFailsWhenPoolExhausted(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30001)

	_, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)

	_, err = reg.Create(nil, time.Hour)
	require.ErrorIs(t, err, portpool.ErrExhausted)
	assert.Len(t, reg.List(), 1, "failed create must not leave a session behind")
}

func TestCreateFailsWhenCodeSpaceExhausted(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30010)
	codes := session.NewCodeGenerator(1, "AB")
	reg := session.NewRegistry(pool, codes)

	_, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	_, err = reg.Create(nil, time.Hour)
	require.NoError(t, err)

	_, err = reg.Create(nil, time.Hour)
	require.ErrorIs(t, err, session.ErrCodeSpaceExhausted)
}

func TestUserInfoIsCopiedNotAliased(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	info := map[string]string{"name": "alex"}
	snap, err := reg.Create(info, time.Hour)
	require.NoError(t, err)

	info["name"] = "mutated"

	got, ok := reg.Get(snap.Code)
	require.True(t, ok)
	assert.Equal(t, "alex", got.UserInfo["name"])
}

func TestApproveOnlyFromPending(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	snap, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)

	approved, err := reg.Approve(snap.Code)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.False(t, approved.ApprovedAt.Before(approved.CreatedAt))

	_, err = reg.Approve(snap.Code)
	require.ErrorIs(t, err, session.ErrInvalidTransition, "approving an active session must fail")
}

func TestApproveUnknownCode(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	_, err := reg.Approve("DEADBEEF")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestRevokeReleasesPortExactlyOnce(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30001)
	codes := session.NewCodeGenerator(8, "0123456789ABCDEF")
	reg := session.NewRegistry(pool, codes)

	snap, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.Available())

	revoked, err := reg.Revoke(snap.Code)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)
	assert.Equal(t, 1, pool.Available())

	_, err = reg.Revoke(snap.Code)
	require.ErrorIs(t, err, session.ErrInvalidTransition, "second revoke must fail, not double-release")
	assert.Equal(t, 1, pool.Available())
}

func TestRevokeActiveSession(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	snap, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	_, err = reg.Approve(snap.Code)
	require.NoError(t, err)

	revoked, err := reg.Revoke(snap.Code)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevoked, revoked.Status)
}

func TestReleasedPortIsReusable(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30001)

	first, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	_, err = reg.Revoke(first.Code)
	require.NoError(t, err)

	second, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first.Port, second.Port)
}

func TestExpireMirrorsRevoke(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30001)
	codes := session.NewCodeGenerator(8, "0123456789ABCDEF")
	reg := session.NewRegistry(pool, codes)

	snap, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)

	expired, err := reg.Expire(snap.Code)
	require.NoError(t, err)
	assert.Equal(t, session.StatusExpired, expired.Status)
	assert.Equal(t, 1, pool.Available())

	_, err = reg.Expire(snap.Code)
	require.ErrorIs(t, err, session.ErrInvalidTransition)
	_, err = reg.Revoke(snap.Code)
	require.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestDueForExpiry(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	short, err := reg.Create(nil, time.Minute)
	require.NoError(t, err)
	long, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)

	now := time.Now()
	assert.Empty(t, reg.DueForExpiry(now))

	due := reg.DueForExpiry(now.Add(10 * time.Minute))
	assert.Equal(t, []string{short.Code}, due)

	due = reg.DueForExpiry(now.Add(2 * time.Hour))
	assert.ElementsMatch(t, []string{short.Code, long.Code}, due)

	// Terminal sessions are never due again.
	_, err = reg.Expire(short.Code)
	require.NoError(t, err)
	due = reg.DueForExpiry(now.Add(2 * time.Hour))
	assert.Equal(t, []string{long.Code}, due)
}

func TestListOrderedByCreation(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	var codes []string
	for i := 0; i < 5; i++ {
		snap, err := reg.Create(nil, time.Hour)
		require.NoError(t, err)
		codes = append(codes, snap.Code)
		time.Sleep(2 * time.Millisecond)
	}

	list := reg.List()
	require.Len(t, list, 5)
	for i, snap := range list {
		assert.Equal(t, codes[i], snap.Code)
	}
}

func TestPruneRemovesOnlyTerminalSessions(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	pending, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	active, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	_, err = reg.Approve(active.Code)
	require.NoError(t, err)
	revoked, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	_, err = reg.Revoke(revoked.Code)
	require.NoError(t, err)

	removed := reg.Prune()
	require.Len(t, removed, 1)
	assert.Equal(t, revoked.Code, removed[0].Code)

	_, ok := reg.Get(revoked.Code)
	assert.False(t, ok)
	_, ok = reg.Get(pending.Code)
	assert.True(t, ok)
	_, ok = reg.Get(active.Code)
	assert.True(t, ok)
}

func TestPrunedCodeIsReusable(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30010)
	codes := session.NewCodeGenerator(1, "A")
	reg := session.NewRegistry(pool, codes)

	snap, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "A", snap.Code)

	// The lone code is taken even after the session turns terminal.
	_, err = reg.Revoke(snap.Code)
	require.NoError(t, err)
	_, err = reg.Create(nil, time.Hour)
	require.ErrorIs(t, err, session.ErrCodeSpaceExhausted)

	reg.Prune()

	again, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "A", again.Code)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30004)

	a, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	_, err = reg.Approve(a.Code)
	require.NoError(t, err)

	_, err = reg.Create(nil, time.Hour)
	require.NoError(t, err)

	r, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)
	_, err = reg.Revoke(r.Code)
	require.NoError(t, err)

	sum := reg.Summary()
	assert.Equal(t, 1, sum.ActiveSessions)
	assert.Equal(t, 3, sum.TotalSessions)
	assert.Equal(t, 2, sum.FreePorts)
	assert.Equal(t, 2, sum.UsedPorts)
}

func TestSnapshotReflectsLiveStats(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 30000, 30010)

	snap, err := reg.Create(nil, time.Hour)
	require.NoError(t, err)

	stats, ok := reg.SessionStats(snap.Code)
	require.True(t, ok)

	stats.ConnOpened()
	stats.AddBytes(4096)
	stats.DialFailed()
	stats.ConnClosed()

	got, ok := reg.Get(snap.Code)
	require.True(t, ok)
	assert.Equal(t, int64(4096), got.BytesForwarded)
	assert.Equal(t, int64(1), got.ConnectionCount)
	assert.Equal(t, int64(0), got.ActiveConnections)
	assert.Equal(t, int64(1), got.DialFailures)
	require.NotNil(t, got.LastActivityAt)
	assert.WithinDuration(t, time.Now(), *got.LastActivityAt, time.Minute)
}
