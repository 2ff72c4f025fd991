// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// KeyService is the controller that owns the live key collection. Every
// operation runs its state transition under one mutex, then carries out the
// resulting effects: persisting the encrypted collection and returning notices
// for the driving adapter to render. Only the relay call in Check runs outside
// the lock; overlapping checks are prevented by the cooldown, not the lock.
//
// Other processes (terminal commands) may write the same store. Before each
// mutation the saved blob is compared with the one this service last read or
// wrote, and a changed blob replaces the in-memory collection first.
type KeyService struct {
	mu              sync.Mutex
	state           *AppState
	codec           *Codec
	store           driven.KVStore
	relay           driven.UsageRelay
	history         *HistoryService
	timer           cooldownTimer
	synced          string
	cooldownSeconds int
	now             func() time.Time
	newID           func() string
	logger          *slog.Logger
}

// KeyServiceOption customizes a KeyService.
type KeyServiceOption func(*KeyService)

// WithCooldownSeconds overrides the pause enforced between usage checks.
func WithCooldownSeconds(seconds int) KeyServiceOption {
	return func(s *KeyService) { s.cooldownSeconds = seconds }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) KeyServiceOption {
	return func(s *KeyService) { s.now = now }
}

// WithIDGenerator overrides how new key IDs are generated.
func WithIDGenerator(newID func() string) KeyServiceOption {
	return func(s *KeyService) { s.newID = newID }
}

// NewKeyService creates a KeyService with an empty, idle state. Call Load to
// restore the saved collection.
func NewKeyService(
	codec *Codec,
	store driven.KVStore,
	relay driven.UsageRelay,
	history *HistoryService,
	scheduler driven.Scheduler,
	logger *slog.Logger,
	opts ...KeyServiceOption,
) *KeyService {
	s := &KeyService{
		state:           NewAppState(),
		codec:           codec,
		store:           store,
		relay:           relay,
		history:         history,
		timer:           cooldownTimer{scheduler: scheduler},
		cooldownSeconds: DefaultCooldownSeconds,
		now:             time.Now,
		newID:           func() string { return uuid.New().String() },
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the collection with the saved one. A missing configuration is
// reported only when not silent; an undecodable one always yields a single
// warning and leaves the current collection untouched.
func (s *KeyService) Load(ctx context.Context, silent bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result

	blob, ok, err := s.store.Get(ctx, driven.KeyConfigStorageKey)
	if err != nil {
		s.logger.Error("failed to read saved keys", "error", err)
		res.notify(NoticeError, "Could not read the saved configuration")
		return res
	}
	if !ok || blob == "" {
		if !silent {
			res.notify(NoticeWarning, "No saved configuration found")
		}
		return res
	}

	keys, err := s.codec.Decode(blob)
	if err != nil {
		s.logger.Warn("saved keys could not be decrypted", "error", err)
		res.notify(NoticeWarning, "Could not decrypt the saved configuration")
		return res
	}

	s.state.Keys = keys
	s.synced = blob
	s.logger.Info("keys loaded", "count", len(keys))

	res.render()
	if !silent {
		res.notify(NoticeSuccess, "Configuration loaded")
	}
	return res
}

// Import parses pasted text and adds every new key.
func (s *KeyService) Import(ctx context.Context, text string) (ImportReport, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sync(ctx)
	report, res := ApplyImport(s.state, text, s.newID)
	for _, rejected := range report.Rejected {
		s.logger.Warn("skipping invalid key", "key", model.Key{Secret: rejected}.MaskedSecret())
	}
	s.logger.Info("import complete",
		"found", report.Occurrences,
		"added", report.Added,
		"duplicates", report.Duplicates,
		"rejected", len(report.Rejected),
	)

	return report, s.execute(ctx, res)
}

// Edit replaces the fields of one key and resets its usage.
func (s *KeyService) Edit(ctx context.Context, in EditInput) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sync(ctx)
	res, err := ApplyEdit(s.state, in)
	if err != nil {
		return res, err
	}
	return s.execute(ctx, res), nil
}

// Delete removes one key.
func (s *KeyService) Delete(ctx context.Context, id string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sync(ctx)
	res, err := ApplyDelete(s.state, id)
	if err != nil {
		return res, err
	}
	return s.execute(ctx, res), nil
}

// Clear removes every key and the saved configuration.
func (s *KeyService) Clear(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.execute(ctx, ApplyClear(s.state))
}

// Check queries the relay for one key's usage. A request during the cooldown
// returns ErrCoolingDown with a warning notice and issues no relay call. Relay
// failures are not returned as errors: they are stored on the key.
func (s *KeyService) Check(ctx context.Context, id string) (Result, error) {
	s.mu.Lock()
	s.sync(ctx)
	secret, res, err := BeginCheck(s.state, id, s.now(), s.cooldownSeconds)
	if err != nil {
		s.mu.Unlock()
		return res, err
	}
	if s.state.Cooldown.IsCooling() {
		s.timer.restart(s.onTick)
	}
	s.mu.Unlock()

	start := time.Now()
	usage, relayErr := s.relay.FetchUsage(ctx, secret)
	if relayErr != nil {
		s.logger.Warn("usage check failed", "key_id", id, "error", relayErr)
	} else {
		s.logger.Info("usage check complete",
			"key_id", id,
			"used", usage.CharacterCount,
			"limit", usage.CharacterLimit,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sync(ctx)
	res, entry, ok := FinishCheck(s.state, id, usage, relayErr, s.now())
	if !ok {
		s.logger.Info("dropping usage result for deleted key", "key_id", id)
		return res, nil
	}

	if s.history != nil {
		if err := s.history.Add(ctx, entry); err != nil {
			s.logger.Error("failed to record query history", "error", err)
		}
	}

	return s.execute(ctx, res), nil
}

// Refresh picks up changes another process saved since the last read or
// write. Call it before rendering a Snapshot.
func (s *KeyService) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync(ctx)
}

// Export renders the collection in the plain-text import format.
func (s *KeyService) Export() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Keys) == 0 {
		return "", ErrNothingToExport
	}
	return Export(s.state.Keys), nil
}

// Snapshot returns a deep copy of the current state for rendering.
func (s *KeyService) Snapshot() *AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Close stops the cooldown countdown.
func (s *KeyService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.stop()
}

func (s *KeyService) onTick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.timer.current(gen) {
		return
	}
	ApplyTick(s.state)
	if !s.state.Cooldown.IsCooling() {
		s.timer.stop()
	}
}

// sync replaces the collection with the saved one when the stored blob is no
// longer the one this service last saw. Read and decode failures keep the
// in-memory collection. Must be called with s.mu held.
func (s *KeyService) sync(ctx context.Context) {
	blob, ok, err := s.store.Get(ctx, driven.KeyConfigStorageKey)
	if err != nil {
		s.logger.Warn("failed to re-read saved keys", "error", err)
		return
	}
	if !ok {
		blob = ""
	}
	if blob == s.synced {
		return
	}

	if blob == "" {
		s.state.Keys = model.Collection{}
		s.synced = ""
		s.logger.Info("saved keys were cleared elsewhere")
		return
	}

	keys, err := s.codec.Decode(blob)
	if err != nil {
		s.logger.Warn("saved keys changed but could not be decrypted", "error", err)
		return
	}
	s.state.Keys = keys
	s.synced = blob
	s.logger.Info("reloaded keys saved elsewhere", "count", len(keys))
}

// execute carries out persist effects and appends their notices. Must be
// called with s.mu held.
func (s *KeyService) execute(ctx context.Context, res Result) Result {
	for _, e := range res.Effects {
		if e.Kind != EffectPersist {
			continue
		}
		notice, err := s.persist(ctx)
		if err != nil || !e.Silent {
			res.notify(notice.Level, "%s", notice.Message)
		}
	}
	return res
}

// persist overwrites the saved configuration with the full collection. An
// empty collection removes it.
func (s *KeyService) persist(ctx context.Context) (Notice, error) {
	if len(s.state.Keys) == 0 {
		if err := s.store.Delete(ctx, driven.KeyConfigStorageKey); err != nil {
			s.logger.Error("failed to clear saved keys", "error", err)
			return Notice{Level: NoticeError, Message: "Save failed"}, err
		}
		s.synced = ""
		return Notice{Level: NoticeSuccess, Message: "Configuration cleared"}, nil
	}

	blob, err := s.codec.Encode(s.state.Keys)
	if err != nil {
		s.logger.Error("failed to encrypt keys", "error", err)
		return Notice{Level: NoticeError, Message: "Save failed (encryption error)"}, err
	}

	if err := s.store.Set(ctx, driven.KeyConfigStorageKey, blob); err != nil {
		s.logger.Error("failed to save keys", "error", err)
		return Notice{Level: NoticeError, Message: "Save failed"}, err
	}
	s.synced = blob
	return Notice{Level: NoticeSuccess, Message: "Configuration saved"}, nil
}

// IsUserError reports whether err is a validation, not-found or cooldown
// rejection, as opposed to an infrastructure failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrCoolingDown)
}
