package application

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

var (
	// ErrKeyNotFound is returned when an operation names an unknown key ID.
	ErrKeyNotFound = errors.New("key not found")

	// ErrValidation wraps user-input problems detected before any mutation.
	ErrValidation = errors.New("invalid input")

	// ErrCoolingDown is returned when a check is requested during the cooldown.
	ErrCoolingDown = errors.New("usage checks are cooling down")

	// ErrNothingToExport is returned when exporting an empty collection.
	ErrNothingToExport = errors.New("no keys to export")
)

// NoticeLevel is the severity of a user-facing message.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message produced by an operation.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// EffectKind identifies what the controller must do after a transition.
type EffectKind int

const (
	// EffectPersist saves the full collection. Silent suppresses the save notice.
	EffectPersist EffectKind = iota
	// EffectRender marks the current view stale.
	EffectRender
	// EffectNotify shows Notice to the user.
	EffectNotify
)

// Effect is one follow-up action requested by a transition.
type Effect struct {
	Kind   EffectKind
	Silent bool
	Notice Notice
}

// Result is what a state transition hands back to the controller.
type Result struct {
	Effects []Effect
	// ClearInput is set when the import text box should be emptied.
	ClearInput bool
}

func (r *Result) persist(silent bool) {
	r.Effects = append(r.Effects, Effect{Kind: EffectPersist, Silent: silent})
}

func (r *Result) render() {
	r.Effects = append(r.Effects, Effect{Kind: EffectRender})
}

func (r *Result) notify(level NoticeLevel, format string, args ...any) {
	r.Effects = append(r.Effects, Effect{
		Kind:   EffectNotify,
		Notice: Notice{Level: level, Message: fmt.Sprintf(format, args...)},
	})
}

// Notices returns the messages of all notify effects in order.
func (r Result) Notices() []Notice {
	var out []Notice
	for _, e := range r.Effects {
		if e.Kind == EffectNotify {
			out = append(out, e.Notice)
		}
	}
	return out
}

// NeedsRender reports whether the transition changed anything visible.
func (r Result) NeedsRender() bool {
	return r.has(EffectRender)
}

// NeedsPersist reports whether the collection must be saved.
func (r Result) NeedsPersist() bool {
	return r.has(EffectPersist)
}

func (r Result) has(kind EffectKind) bool {
	for _, e := range r.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// AppState is the live state owned by the controller.
type AppState struct {
	Keys     model.Collection
	Cooldown model.Cooldown
	// Busy holds the IDs of keys with a usage check in flight.
	Busy map[string]bool
}

// NewAppState returns an empty, idle state.
func NewAppState() *AppState {
	return &AppState{
		Keys:     model.Collection{},
		Cooldown: model.IdleCooldown(),
		Busy:     map[string]bool{},
	}
}

// Clone returns a deep copy safe to hand to renderers.
func (s *AppState) Clone() *AppState {
	busy := make(map[string]bool, len(s.Busy))
	for id, v := range s.Busy {
		busy[id] = v
	}
	keys := s.Keys.Clone()
	if keys == nil {
		keys = model.Collection{}
	}
	return &AppState{Keys: keys, Cooldown: s.Cooldown, Busy: busy}
}

// ImportOutcome classifies the result of an import.
type ImportOutcome int

const (
	ImportEmptyInput ImportOutcome = iota
	ImportNoKeyFound
	ImportNothingAdded
	ImportAdded
)

// ImportReport summarizes an import for the caller.
type ImportReport struct {
	Outcome     ImportOutcome
	Occurrences int
	Added       int
	Duplicates  int
	Rejected    []string
}

// ApplyImport parses text and appends every new key to s. Secrets already in
// the collection, including ones added earlier in the same text, are skipped.
// newID supplies IDs for accepted keys.
func ApplyImport(s *AppState, text string, newID func() string) (ImportReport, Result) {
	var res Result

	if strings.TrimSpace(text) == "" {
		res.notify(NoticeError, "Enter the text to parse")
		return ImportReport{Outcome: ImportEmptyInput}, res
	}

	parsed := ParseImport(text)
	report := ImportReport{Occurrences: parsed.Occurrences, Rejected: parsed.Rejected}

	if parsed.Occurrences == 0 {
		report.Outcome = ImportNoKeyFound
		res.notify(NoticeError, "No valid API key format found")
		return report, res
	}

	for _, p := range parsed.Candidates {
		if s.Keys.HasSecret(p.Secret) {
			report.Duplicates++
			continue
		}
		s.Keys = append(s.Keys, model.Key{
			ID:       newID(),
			Secret:   p.Secret,
			Email:    p.Email,
			Password: p.Password,
		})
		report.Added++
	}

	if report.Added == 0 {
		report.Outcome = ImportNothingAdded
		res.notify(NoticeWarning, "No new keys imported (duplicates or bad format)")
		return report, res
	}

	report.Outcome = ImportAdded
	res.ClearInput = true
	res.notify(NoticeSuccess, "Imported %d new key(s)", report.Added)
	res.render()
	res.persist(false)
	return report, res
}

// EditInput is the replacement field set for one key.
type EditInput struct {
	ID       string
	Secret   string
	Email    string
	Password string
}

// ApplyEdit replaces a key's fields and resets its usage. Inputs are trimmed;
// an empty secret, or one already held by a different key, is rejected before
// anything changes.
func ApplyEdit(s *AppState, in EditInput) (Result, error) {
	var res Result

	secret := strings.TrimSpace(in.Secret)
	if secret == "" {
		return res, fmt.Errorf("%w: API key must not be empty", ErrValidation)
	}

	k, ok := s.Keys.Find(in.ID)
	if !ok {
		return res, fmt.Errorf("edit %q: %w", in.ID, ErrKeyNotFound)
	}

	for _, other := range s.Keys {
		if other.ID != in.ID && other.Secret == secret {
			return res, fmt.Errorf("%w: API key already stored", ErrValidation)
		}
	}

	k.Secret = secret
	k.Email = strings.TrimSpace(in.Email)
	k.Password = strings.TrimSpace(in.Password)
	k.Usage = nil
	k.LastError = ""

	res.render()
	res.persist(false)
	res.notify(NoticeSuccess, "Changes saved")
	return res, nil
}

// ApplyDelete removes the key with the given ID.
func ApplyDelete(s *AppState, id string) (Result, error) {
	var res Result

	keys, ok := s.Keys.Remove(id)
	if !ok {
		return res, fmt.Errorf("delete %q: %w", id, ErrKeyNotFound)
	}
	s.Keys = keys
	delete(s.Busy, id)

	res.render()
	res.persist(false)
	res.notify(NoticeSuccess, "Key deleted")
	return res, nil
}

// ApplyClear drops every key.
func ApplyClear(s *AppState) Result {
	var res Result
	s.Keys = model.Collection{}
	s.Busy = map[string]bool{}
	res.render()
	res.persist(false)
	return res
}

// BeginCheck gates a usage check on the global cooldown. While cooling the
// request is rejected with a warning and nothing changes. Otherwise the
// cooldown is armed, the key is marked busy and its secret returned for the
// relay call.
func BeginCheck(s *AppState, id string, now time.Time, cooldownSeconds int) (string, Result, error) {
	var res Result

	if s.Cooldown.IsCooling() {
		res.notify(NoticeWarning, "Wait for the countdown to finish (%ds)", s.Cooldown.Remaining)
		return "", res, ErrCoolingDown
	}

	k, ok := s.Keys.Find(id)
	if !ok {
		return "", res, fmt.Errorf("check %q: %w", id, ErrKeyNotFound)
	}

	s.Cooldown = model.CoolingFor(cooldownSeconds, now)
	s.Busy[id] = true

	res.render()
	return k.Secret, res, nil
}

// FinishCheck applies a relay result to the key that was checked and returns
// the history entry describing it. ok is false when the key was deleted while
// the check was in flight; state is then left unchanged.
func FinishCheck(s *AppState, id string, usage model.Usage, relayErr error, now time.Time) (res Result, entry model.HistoryEntry, ok bool) {
	delete(s.Busy, id)

	k, found := s.Keys.Find(id)
	if !found {
		res.render()
		return res, entry, false
	}

	entry.Timestamp = now.Format(time.DateTime)
	if relayErr != nil {
		k.Usage = nil
		k.LastError = relayErr.Error()
		entry.Success = false
		entry.Summary = "Failed: " + k.LastError
	} else {
		u := usage
		k.Usage = &u
		k.LastError = ""
		entry.Success = true
		entry.Summary = fmt.Sprintf("Used: %d / %d", u.CharacterCount, u.CharacterLimit)
		res.notify(NoticeSuccess, "Query succeeded")
	}

	res.render()
	res.persist(true)
	return res, entry, true
}

// ApplyTick advances the cooldown by one second.
func ApplyTick(s *AppState) Result {
	var res Result
	if !s.Cooldown.IsCooling() {
		return res
	}
	s.Cooldown = s.Cooldown.Tick()
	res.render()
	return res
}
