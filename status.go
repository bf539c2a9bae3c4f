package auth

import "strings"

// AccountStatus is the lifecycle state of an account, independent of Role.
type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusActive    AccountStatus = "active"
	StatusInactive  AccountStatus = "inactive"
	StatusSuspended AccountStatus = "suspended"
)

// Statuses returns every account status.
func Statuses() []AccountStatus {
	return []AccountStatus{StatusPending, StatusActive, StatusInactive, StatusSuspended}
}

// IsValid checks membership in the closed status set.
func (s AccountStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusSuspended:
		return true
	default:
		return false
	}
}

// IsActive is the only status under which guarded operations succeed.
func (s AccountStatus) IsActive() bool {
	return s == StatusActive
}

// IsDestructive marks statuses that need explicit confirmation to apply.
func (s AccountStatus) IsDestructive() bool {
	return s == StatusInactive || s == StatusSuspended
}

func (s AccountStatus) String() string {
	return string(s)
}

// IsValidStatus reports whether raw names one of the four statuses.
func IsValidStatus(raw string) bool {
	return AccountStatus(raw).IsValid()
}

// ParseStatus converts untrusted input into an AccountStatus.
func ParseStatus(raw string) (AccountStatus, error) {
	status := AccountStatus(strings.TrimSpace(raw))
	if !status.IsValid() {
		return "", invalidStatusError(raw)
	}
	return status, nil
}

// StatusInfo carries presentation metadata for a status.
type StatusInfo struct {
	Status      AccountStatus
	DisplayName string
	Color       string
}

var statusInfo = map[string]map[AccountStatus]StatusInfo{
	LocaleEnglish: {
		StatusPending:   {Status: StatusPending, DisplayName: "Pending approval", Color: "yellow"},
		StatusActive:    {Status: StatusActive, DisplayName: "Active", Color: "green"},
		StatusInactive:  {Status: StatusInactive, DisplayName: "Inactive", Color: "gray"},
		StatusSuspended: {Status: StatusSuspended, DisplayName: "Suspended", Color: "red"},
	},
	LocaleTraditionalChinese: {
		StatusPending:   {Status: StatusPending, DisplayName: "待審核", Color: "yellow"},
		StatusActive:    {Status: StatusActive, DisplayName: "啟用", Color: "green"},
		StatusInactive:  {Status: StatusInactive, DisplayName: "停用", Color: "gray"},
		StatusSuspended: {Status: StatusSuspended, DisplayName: "暫停", Color: "red"},
	},
}

// Info returns display metadata in the given locale, English when unknown.
func (s AccountStatus) Info(locale string) StatusInfo {
	table, ok := statusInfo[locale]
	if !ok {
		table = statusInfo[LocaleEnglish]
	}
	if info, ok := table[s]; ok {
		return info
	}
	return StatusInfo{Status: s, DisplayName: string(s), Color: "gray"}
}

// TradingExperience is an informational tag on the profile.
type TradingExperience string

const (
	ExperienceBeginner     TradingExperience = "beginner"
	ExperienceIntermediate TradingExperience = "intermediate"
	ExperienceAdvanced     TradingExperience = "advanced"
	ExperienceProfessional TradingExperience = "professional"
)

// IsValid checks membership in the closed experience set.
func (e TradingExperience) IsValid() bool {
	switch e {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced, ExperienceProfessional:
		return true
	default:
		return false
	}
}

// SupportedCurrencies lists the currency codes accepted for initial capital.
var SupportedCurrencies = []string{"USD", "TWD", "EUR", "JPY", "GBP"}

// SupportedTimezones lists the selectable IANA zones besides UTC.
var SupportedTimezones = []string{
	"UTC",
	"Asia/Taipei",
	"America/New_York",
	"Europe/London",
	"Asia/Tokyo",
	"Australia/Sydney",
}

const (
	LocaleEnglish            = "en"
	LocaleTraditionalChinese = "zh-TW"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxBatchSize    = 100
)

// PageSizeOptions are the page sizes offered by user listings.
var PageSizeOptions = []int{10, 20, 50, 100}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
