// Package viewmodel defines presentation-ready structs for the web templates.
// View models decouple template rendering from domain model types.
package viewmodel

// DashboardViewModel holds everything the dashboard page renders.
type DashboardViewModel struct {
	CSRFToken      string
	ImportText     string
	ImportHelpHTML string
	Notices        []NoticeViewModel
	Keys           []KeyRowViewModel
	Totals         *TotalsViewModel
	History        []HistoryViewModel
	Cooldown       CooldownViewModel
}

// NoticeViewModel is one toast-style message.
type NoticeViewModel struct {
	Level   string // success, info, warning, error
	Message string
}

// KeyRowViewModel holds presentation-ready data for one row of the key table.
type KeyRowViewModel struct {
	Index        int
	ID           string
	Account      string // email, or a placeholder when none is stored
	HasAccount   bool
	PasswordMask string
	MaskedKey    string
	Secret       string // full key, only for the copy control

	HasUsage     bool
	Percent      float64
	PercentLabel string // "42%"
	UsageLabel   string // "12.3k / 500k"
	LevelClass   string // success, warning, danger
	Error        string

	Busy          bool
	CheckDisabled bool
	CheckLabel    string // "7s" while cooling, empty otherwise

	CheckPath  string
	EditPath   string
	DeletePath string
}

// TotalsViewModel is the aggregate usage card.
type TotalsViewModel struct {
	Used         string // digit-grouped, e.g. "1,234,567"
	Limit        string
	PercentLabel string
	LevelClass   string
}

// HistoryViewModel is one entry of the query history list.
type HistoryViewModel struct {
	Timestamp string
	Success   bool
	Summary   string
}

// CooldownViewModel describes the global check cooldown.
type CooldownViewModel struct {
	Cooling   bool
	Remaining int
}

// EditViewModel holds the edit form for one key.
type EditViewModel struct {
	CSRFToken  string
	ID         string
	Secret     string
	Email      string
	Password   string
	Error      string
	ActionPath string
}
