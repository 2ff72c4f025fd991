package web

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	vm "github.com/ericfisherdev/keyquota/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

const (
	noAccountLabel = "No account info"
	passwordMask   = "******"
)

// levelClass maps a usage level to the stylesheet's colour class.
func levelClass(l model.UsageLevel) string {
	switch l {
	case model.UsageLevelCritical:
		return "danger"
	case model.UsageLevelWarning:
		return "warning"
	default:
		return "success"
	}
}

// toKeyRowViewModel converts one key of a snapshot into a table row.
func toKeyRowViewModel(index int, k model.Key, s *application.AppState) vm.KeyRowViewModel {
	row := vm.KeyRowViewModel{
		Index:      index + 1,
		ID:         k.ID,
		Account:    k.Email,
		HasAccount: k.Email != "",
		MaskedKey:  k.MaskedSecret(),
		Secret:     k.Secret,
		Error:      k.LastError,
		Busy:       s.Busy[k.ID],
		CheckPath:  "/app/keys/" + k.ID + "/check",
		EditPath:   "/app/keys/" + k.ID + "/edit",
		DeletePath: "/app/keys/" + k.ID + "/delete",
	}
	if !row.HasAccount {
		row.Account = noAccountLabel
	}
	if k.Password != "" {
		row.PasswordMask = passwordMask
	}

	if k.Usage != nil {
		pct := k.Usage.Percent()
		row.HasUsage = true
		row.Percent = math.Min(pct, 100)
		row.PercentLabel = fmt.Sprintf("%d%%", int(math.Round(pct)))
		row.UsageLabel = formatUsage(k.Usage.CharacterCount, k.Usage.CharacterLimit)
		row.LevelClass = levelClass(k.Usage.Level())
	}

	if s.Cooldown.IsCooling() {
		row.CheckDisabled = true
		row.CheckLabel = strconv.Itoa(s.Cooldown.Remaining) + "s"
	}
	if row.Busy {
		row.CheckDisabled = true
	}

	return row
}

// toDashboardViewModel projects a state snapshot and the history log.
func toDashboardViewModel(
	s *application.AppState,
	history []model.HistoryEntry,
	notices []application.Notice,
	csrfToken string,
	importText string,
) vm.DashboardViewModel {
	d := vm.DashboardViewModel{
		CSRFToken:      csrfToken,
		ImportText:     importText,
		ImportHelpHTML: importHelpHTML,
		Notices:        make([]vm.NoticeViewModel, 0, len(notices)),
		Keys:           make([]vm.KeyRowViewModel, 0, len(s.Keys)),
		History:        make([]vm.HistoryViewModel, 0, len(history)),
		Cooldown: vm.CooldownViewModel{
			Cooling:   s.Cooldown.IsCooling(),
			Remaining: s.Cooldown.Remaining,
		},
	}

	for _, n := range notices {
		d.Notices = append(d.Notices, vm.NoticeViewModel{Level: string(n.Level), Message: n.Message})
	}
	for i, k := range s.Keys {
		d.Keys = append(d.Keys, toKeyRowViewModel(i, k, s))
	}
	for _, e := range history {
		d.History = append(d.History, vm.HistoryViewModel{Timestamp: e.Timestamp, Success: e.Success, Summary: e.Summary})
	}

	if used, limit, ok := s.Keys.Totals(); ok {
		u := model.Usage{CharacterCount: used, CharacterLimit: limit}
		d.Totals = &vm.TotalsViewModel{
			Used:         humanize.Comma(used),
			Limit:        humanize.Comma(limit),
			PercentLabel: fmt.Sprintf("%d%%", int(math.Round(u.Percent()))),
			LevelClass:   levelClass(u.Level()),
		}
	}

	return d
}

// formatUsage renders counts in thousands: one decimal for the used count,
// none for the limit.
func formatUsage(used, limit int64) string {
	return fmt.Sprintf("%.1fk / %.0fk", float64(used)/1000, float64(limit)/1000)
}
