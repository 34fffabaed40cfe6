package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

func testGorm(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.OpenDB(context.Background(), filepath.Join(t.TempDir(), "hooks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gdb, err := storage.OpenGorm(db)
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&domain.Webhook{}))
	return gdb
}

func TestGormStoreActiveFor(t *testing.T) {
	ctx := context.Background()
	gdb := testGorm(t)
	hooks := []domain.Webhook{
		{ModelID: 1, Name: "a", URL: "https://a.example.com", IsActive: true, Events: []string{"created", "updated"}},
		{ModelID: 1, Name: "b", URL: "https://b.example.com", IsActive: false, Events: []string{"created"}},
		{ModelID: 1, Name: "c", URL: "https://c.example.com", IsActive: true, Events: []string{"deleted"}},
		{ModelID: 2, Name: "d", URL: "https://d.example.com", IsActive: true, Events: []string{"created"}},
	}
	require.NoError(t, gdb.Create(&hooks).Error)

	active, err := NewGormStore(gdb).ActiveFor(ctx, 1, domain.EventCreated)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].Name)
}

func TestGormStoreFailureThreshold(t *testing.T) {
	ctx := context.Background()
	gdb := testGorm(t)
	hook := domain.Webhook{ModelID: 1, Name: "flaky", URL: "https://flaky.example.com", IsActive: true, Events: []string{"created"}}
	require.NoError(t, gdb.Create(&hook).Error)
	store := NewGormStore(gdb)

	reload := func() domain.Webhook {
		var h domain.Webhook
		require.NoError(t, gdb.First(&h, hook.ID).Error)
		return h
	}

	for i := 0; i < FailureThreshold-1; i++ {
		require.NoError(t, store.RecordFailure(ctx, hook.ID))
	}
	h := reload()
	assert.Equal(t, FailureThreshold-1, h.FailureCount)
	assert.True(t, h.IsActive)

	require.NoError(t, store.RecordFailure(ctx, hook.ID))
	h = reload()
	assert.Equal(t, FailureThreshold, h.FailureCount)
	assert.False(t, h.IsActive, "the tenth failure deactivates the webhook")

	require.NoError(t, store.RecordSuccess(ctx, hook.ID))
	h = reload()
	assert.Zero(t, h.FailureCount)
	assert.NotNil(t, h.LastTriggeredAt)
	assert.False(t, h.IsActive, "success does not reactivate")
}

func TestTimedOutDeliveryCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	gdb := testGorm(t)
	hook := domain.Webhook{ModelID: 7, Name: "slow", URL: srv.URL, IsActive: true, Events: []string{"created"}}
	require.NoError(t, gdb.Create(&hook).Error)

	d := NewDispatcher(NewGormStore(gdb), WithURLPolicy(AllowAll), WithTimeout(100*time.Millisecond))
	d.Dispatch(context.Background(), postsModel(), domain.EventCreated, map[string]any{"id": 1})
	drain(t, d)

	var h domain.Webhook
	require.NoError(t, gdb.First(&h, hook.ID).Error)
	assert.Equal(t, 1, h.FailureCount)
}

func TestDispatchSurvivesCancelledRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	gdb := testGorm(t)
	hook := domain.Webhook{ModelID: 7, Name: "live", URL: srv.URL, IsActive: true, Events: []string{"created"}}
	require.NoError(t, gdb.Create(&hook).Error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(NewGormStore(gdb), WithURLPolicy(AllowAll))
	d.Dispatch(ctx, postsModel(), domain.EventCreated, map[string]any{"id": 1})
	drain(t, d)

	assert.Equal(t, int32(1), hits.Load(), "the change was committed, so it is still delivered")
}
