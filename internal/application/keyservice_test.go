package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

type keyServiceFixture struct {
	svc       *KeyService
	store     *memoryKV
	relay     *fakeRelay
	scheduler *manualScheduler
	history   *HistoryService
}

func newKeyServiceFixture(t *testing.T) *keyServiceFixture {
	t.Helper()

	store := newMemoryKV()
	relay := &fakeRelay{usage: model.Usage{CharacterCount: 1234, CharacterLimit: 500000}}
	scheduler := newManualScheduler()
	history := NewHistoryService(store, model.DefaultHistoryLimit, slog.Default())

	ids := 0
	svc := NewKeyService(
		NewCodec(testEnvironment),
		store,
		relay,
		history,
		scheduler,
		slog.Default(),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("key-%d", ids)
		}),
	)
	t.Cleanup(svc.Close)

	return &keyServiceFixture{svc: svc, store: store, relay: relay, scheduler: scheduler, history: history}
}

func (f *keyServiceFixture) importKeys(t *testing.T, secrets ...string) {
	t.Helper()
	text := ""
	for _, s := range secrets {
		text += "Key: " + s + "\n"
	}
	report, _ := f.svc.Import(context.Background(), text)
	require.Equal(t, len(secrets), report.Added)
}

func noticeMessages(res Result) []string {
	var out []string
	for _, n := range res.Notices() {
		out = append(out, n.Message)
	}
	return out
}

func TestKeyService_ImportPersistsEncrypted(t *testing.T) {
	f := newKeyServiceFixture(t)

	report, res := f.svc.Import(context.Background(), "Key: "+secretA+"\nAccount: a@b.com")

	assert.Equal(t, 1, report.Added)
	assert.Equal(t, []string{"Imported 1 new key(s)", "Configuration saved"}, noticeMessages(res))

	blob, ok := f.store.value(driven.KeyConfigStorageKey)
	require.True(t, ok)
	assert.NotContains(t, blob, secretA)

	decoded, err := NewCodec(testEnvironment).Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, model.Collection{{ID: "key-1", Secret: secretA, Email: "a@b.com"}}, decoded)
}

func TestKeyService_LoadRestoresSavedKeys(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA, secretB)

	other := newKeyServiceFixture(t)
	other.store = f.store
	other.svc.store = f.store

	res := other.svc.Load(context.Background(), false)

	assert.Equal(t, []string{"Configuration loaded"}, noticeMessages(res))
	assert.Len(t, other.svc.Snapshot().Keys, 2)
}

func TestKeyService_Load(t *testing.T) {
	t.Run("nothing saved", func(t *testing.T) {
		f := newKeyServiceFixture(t)

		assert.Equal(t, []string{"No saved configuration found"}, noticeMessages(f.svc.Load(context.Background(), false)))
		assert.Empty(t, noticeMessages(f.svc.Load(context.Background(), true)))
	})

	t.Run("undecodable warns even when silent", func(t *testing.T) {
		f := newKeyServiceFixture(t)
		f.importKeys(t, secretA)
		require.NoError(t, f.store.Set(context.Background(), driven.KeyConfigStorageKey, "not-a-valid-blob"))

		res := f.svc.Load(context.Background(), true)

		require.Len(t, res.Notices(), 1)
		assert.Equal(t, NoticeWarning, res.Notices()[0].Level)
		assert.Len(t, f.svc.Snapshot().Keys, 1, "state untouched on decode failure")
	})

	t.Run("store read failure", func(t *testing.T) {
		f := newKeyServiceFixture(t)
		f.store.getErr = errors.New("disk on fire")

		res := f.svc.Load(context.Background(), true)

		require.Len(t, res.Notices(), 1)
		assert.Equal(t, NoticeError, res.Notices()[0].Level)
	})
}

func TestKeyService_CheckRecordsUsageAndHistory(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA)

	res, err := f.svc.Check(context.Background(), "key-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Query succeeded"}, noticeMessages(res), "silent persist adds no notice")
	assert.Equal(t, []string{secretA}, f.relay.secrets)

	snap := f.svc.Snapshot()
	assert.Equal(t, &model.Usage{CharacterCount: 1234, CharacterLimit: 500000}, snap.Keys[0].Usage)
	assert.Empty(t, snap.Busy)
	assert.True(t, snap.Cooldown.IsCooling())

	entries, err := f.history.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.HistoryEntry{{Timestamp: "2024-05-01 09:00:00", Success: true, Summary: "Used: 1234 / 500000"}}, entries)

	decoded, err := NewCodec(testEnvironment).Decode(mustValue(t, f.store, driven.KeyConfigStorageKey))
	require.NoError(t, err)
	assert.NotNil(t, decoded[0].Usage, "usage is persisted")
}

func TestKeyService_CheckFailureIsStoredOnKey(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA)
	f.relay.err = errors.New("Forbidden: Invalid key")

	res, err := f.svc.Check(context.Background(), "key-1")
	require.NoError(t, err)

	assert.Empty(t, res.Notices())
	assert.Equal(t, "Forbidden: Invalid key", f.svc.Snapshot().Keys[0].LastError)

	entries, err := f.history.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Failed: Forbidden: Invalid key", entries[0].Summary)
}

func TestKeyService_CooldownAllowsOneCheck(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA, secretB)

	_, err := f.svc.Check(context.Background(), "key-1")
	require.NoError(t, err)

	res, err := f.svc.Check(context.Background(), "key-2")
	require.ErrorIs(t, err, ErrCoolingDown)
	assert.True(t, IsUserError(err))

	assert.Equal(t, 1, f.relay.callCount())
	require.Len(t, res.Notices(), 1)
	assert.Equal(t, NoticeWarning, res.Notices()[0].Level)
	assert.Nil(t, f.svc.Snapshot().Keys[1].Usage)
}

func TestKeyService_ConcurrentChecksIssueOneRelayCall(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA, secretB)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rejected int
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "key-1"
			if i%2 == 1 {
				id = "key-2"
			}
			_, err := f.svc.Check(context.Background(), id)
			if errors.Is(err, ErrCoolingDown) {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.relay.callCount())
	assert.Equal(t, callers-1, rejected)
}

func TestKeyService_CooldownCountsDownToIdle(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA)

	_, err := f.svc.Check(context.Background(), "key-1")
	require.NoError(t, err)
	require.Equal(t, 1, f.scheduler.active())

	for want := DefaultCooldownSeconds - 1; want > 0; want-- {
		f.scheduler.Fire()
		cd := f.svc.Snapshot().Cooldown
		require.True(t, cd.IsCooling())
		assert.Equal(t, want, cd.Remaining)
	}

	f.scheduler.Fire()
	assert.False(t, f.svc.Snapshot().Cooldown.IsCooling())
	assert.Zero(t, f.scheduler.active(), "timer cancelled once idle")

	_, err = f.svc.Check(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.relay.callCount())
}

func TestKeyService_CustomCooldown(t *testing.T) {
	store := newMemoryKV()
	relay := &fakeRelay{}
	scheduler := newManualScheduler()
	svc := NewKeyService(NewCodec(testEnvironment), store, relay, nil, scheduler, slog.Default(), WithCooldownSeconds(2))
	t.Cleanup(svc.Close)

	report, _ := svc.Import(context.Background(), "Key: "+secretA)
	require.Equal(t, 1, report.Added)
	id := svc.Snapshot().Keys[0].ID

	_, err := svc.Check(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Snapshot().Cooldown.Remaining)

	scheduler.Fire()
	scheduler.Fire()
	assert.False(t, svc.Snapshot().Cooldown.IsCooling())
}

func TestKeyService_DeleteDuringCheckDropsResult(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA, secretB)
	f.relay.gate = make(chan struct{})
	f.relay.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Check(context.Background(), "key-1")
		done <- err
	}()

	<-f.relay.entered
	assert.True(t, f.svc.Snapshot().Busy["key-1"])

	_, err := f.svc.Delete(context.Background(), "key-1")
	require.NoError(t, err)

	close(f.relay.gate)
	require.NoError(t, <-done)

	snap := f.svc.Snapshot()
	require.Len(t, snap.Keys, 1)
	assert.Equal(t, "key-2", snap.Keys[0].ID)
	assert.Nil(t, snap.Keys[0].Usage)
	assert.Empty(t, snap.Busy)

	entries, err := f.history.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKeyService_EditValidation(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA, secretB)
	setsBefore := f.store.sets

	_, err := f.svc.Edit(context.Background(), EditInput{ID: "key-1", Secret: ""})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Edit(context.Background(), EditInput{ID: "key-1", Secret: secretB})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Edit(context.Background(), EditInput{ID: "key-9", Secret: "abc"})
	require.ErrorIs(t, err, ErrKeyNotFound)

	assert.Equal(t, setsBefore, f.store.sets, "rejected edits do not persist")

	res, err := f.svc.Edit(context.Background(), EditInput{ID: "key-1", Secret: secretA, Email: "new@b.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Changes saved", "Configuration saved"}, noticeMessages(res))
	assert.Equal(t, "new@b.com", f.svc.Snapshot().Keys[0].Email)
}

func TestKeyService_DeleteLastKeyRemovesSavedConfig(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA)

	res, err := f.svc.Delete(context.Background(), "key-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Key deleted", "Configuration cleared"}, noticeMessages(res))
	_, ok := f.store.value(driven.KeyConfigStorageKey)
	assert.False(t, ok)
}

func TestKeyService_Clear(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.importKeys(t, secretA, secretB)

	res := f.svc.Clear(context.Background())

	assert.Equal(t, []string{"Configuration cleared"}, noticeMessages(res))
	assert.Empty(t, f.svc.Snapshot().Keys)
	assert.Equal(t, 1, f.store.deletes)
}

func TestKeyService_SaveFailureIsReported(t *testing.T) {
	f := newKeyServiceFixture(t)
	f.store.setErr = errors.New("read-only filesystem")

	_, res := f.svc.Import(context.Background(), "Key: "+secretA)

	notices := res.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, Notice{Level: NoticeError, Message: "Save failed"}, notices[1])
	assert.Len(t, f.svc.Snapshot().Keys, 1, "in-memory state keeps the import")
}

func TestKeyService_Export(t *testing.T) {
	f := newKeyServiceFixture(t)

	_, err := f.svc.Export()
	require.ErrorIs(t, err, ErrNothingToExport)

	f.importKeys(t, secretA)
	text, err := f.svc.Export()
	require.NoError(t, err)
	assert.Equal(t, "Key: "+secretA+"\n\n", text)
}

func mustValue(t *testing.T, store *memoryKV, key string) string {
	t.Helper()
	v, ok := store.value(key)
	require.True(t, ok, "missing %s", key)
	return v
}

// newPeerService builds a second KeyService over store, as a terminal command
// running next to the server would.
func newPeerService(t *testing.T, store *memoryKV, idPrefix string) *KeyService {
	t.Helper()

	ids := 0
	svc := NewKeyService(
		NewCodec(testEnvironment),
		store,
		&fakeRelay{},
		NewHistoryService(store, model.DefaultHistoryLimit, slog.Default()),
		newManualScheduler(),
		slog.Default(),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("%s-%d", idPrefix, ids)
		}),
	)
	t.Cleanup(svc.Close)
	svc.Load(context.Background(), true)
	return svc
}

func storedSecrets(t *testing.T, store *memoryKV) []string {
	t.Helper()
	blob, ok := store.value(driven.KeyConfigStorageKey)
	if !ok {
		return nil
	}
	keys, err := NewCodec(testEnvironment).Decode(blob)
	require.NoError(t, err)
	var out []string
	for _, k := range keys {
		out = append(out, k.Secret)
	}
	return out
}

func TestKeyService_SharedStore(t *testing.T) {
	t.Run("check keeps a key imported elsewhere", func(t *testing.T) {
		f := newKeyServiceFixture(t)
		f.importKeys(t, secretA)

		peer := newPeerService(t, f.store, "cli")
		report, _ := peer.Import(context.Background(), "Key: "+secretB)
		require.Equal(t, 1, report.Added)

		_, err := f.svc.Check(context.Background(), "key-1")
		require.NoError(t, err)

		assert.Equal(t, []string{secretA, secretB}, storedSecrets(t, f.store))
		snap := f.svc.Snapshot()
		require.Len(t, snap.Keys, 2)
		require.NotNil(t, snap.Keys[0].Usage)
		assert.Equal(t, "cli-1", snap.Keys[1].ID)
	})

	t.Run("import does not resurrect a key deleted elsewhere", func(t *testing.T) {
		f := newKeyServiceFixture(t)
		f.importKeys(t, secretA)

		peer := newPeerService(t, f.store, "cli")
		_, err := peer.Delete(context.Background(), "key-1")
		require.NoError(t, err)

		f.importKeys(t, secretB)

		assert.Equal(t, []string{secretB}, storedSecrets(t, f.store))
	})

	t.Run("duplicate detection sees keys saved elsewhere", func(t *testing.T) {
		f := newKeyServiceFixture(t)

		peer := newPeerService(t, f.store, "cli")
		_, _ = peer.Import(context.Background(), "Key: "+secretA)

		report, _ := f.svc.Import(context.Background(), "Key: "+secretA)

		assert.Equal(t, 0, report.Added)
		assert.Equal(t, 1, report.Duplicates)
	})

	t.Run("check of a key deleted elsewhere is not found", func(t *testing.T) {
		f := newKeyServiceFixture(t)
		f.importKeys(t, secretA)

		peer := newPeerService(t, f.store, "cli")
		peer.Clear(context.Background())

		_, err := f.svc.Check(context.Background(), "key-1")
		require.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, 0, f.relay.callCount())
		assert.False(t, f.svc.Snapshot().Cooldown.IsCooling())
	})

	t.Run("refresh picks up edits for rendering", func(t *testing.T) {
		f := newKeyServiceFixture(t)
		f.importKeys(t, secretA)

		peer := newPeerService(t, f.store, "cli")
		_, err := peer.Edit(context.Background(), EditInput{ID: "key-1", Secret: secretA, Email: "cli@b.com"})
		require.NoError(t, err)

		assert.Empty(t, f.svc.Snapshot().Keys[0].Email)
		f.svc.Refresh(context.Background())
		assert.Equal(t, "cli@b.com", f.svc.Snapshot().Keys[0].Email)
	})

	t.Run("undecodable change keeps memory", func(t *testing.T) {
		f := newKeyServiceFixture(t)
		f.importKeys(t, secretA)
		require.NoError(t, f.store.Set(context.Background(), driven.KeyConfigStorageKey, "garbage"))

		f.svc.Refresh(context.Background())

		assert.Len(t, f.svc.Snapshot().Keys, 1)
	})
}
