package models

import (
	"strings"
	"time"
)

// Trade groups the skills that belong to one line of work.
type Trade struct {
	Name   string   `yaml:"name" json:"name"`
	Skills []string `yaml:"skills" json:"skills"`
}

// Covers reports whether skill belongs to the trade.
func (t Trade) Covers(skill string) bool {
	if strings.EqualFold(t.Name, skill) {
		return true
	}
	for _, s := range t.Skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

type Totals struct {
	Users             int `json:"users"`
	ServiceProviders  int `json:"serviceProviders"`
	CommunityMembers  int `json:"communityMembers"`
	ServiceRequests   int `json:"serviceRequests"`
	OpenRequests      int `json:"openRequests"`
	Bookings          int `json:"bookings"`
	CompletedBookings int `json:"completedBookings"`
	Reviews           int `json:"reviews"`
}

type Demographics struct {
	ByRole     map[string]int `json:"byRole"`
	Verified   int            `json:"verified"`
	Unverified int            `json:"unverified"`
	Banned     int            `json:"banned"`
}

type SkillCount struct {
	Skill     string `json:"skill"`
	Providers int    `json:"providers"`
}

type TradeCount struct {
	Trade     string `json:"trade"`
	Providers int    `json:"providers"`
}

type ServiceCount struct {
	TypeOfWork string `json:"typeOfWork"`
	Bookings   int    `json:"bookings"`
}

// PeriodTotals holds counts created within one month (YYYY-MM).
type PeriodTotals struct {
	Period          string `json:"period"`
	Users           int    `json:"users"`
	ServiceRequests int    `json:"serviceRequests"`
	Bookings        int    `json:"bookings"`
}

// MonthsBack returns the YYYY-MM keys of the n months ending with now, oldest first.
func MonthsBack(now time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, first.AddDate(0, -i, 0).Format("2006-01"))
	}
	return out
}

// ReportBundle collects every admin report for one export.
type ReportBundle struct {
	GeneratedAt     time.Time      `json:"generatedAt"`
	Totals          *Totals        `json:"totals"`
	Demographics    *Demographics  `json:"demographics"`
	Skills          []SkillCount   `json:"skills"`
	SkilledPerTrade []TradeCount   `json:"skilledPerTrade"`
	MostBooked      []ServiceCount `json:"mostBookedServices"`
	OverTime        []PeriodTotals `json:"totalsOverTime"`
}
