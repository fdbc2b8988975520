package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"skillconnect/internal/models"
)

func sampleBundle() *models.ReportBundle {
	return &models.ReportBundle{
		GeneratedAt: time.Date(2025, 4, 2, 8, 15, 0, 0, time.UTC),
		Totals:      &models.Totals{Users: 12, ServiceProviders: 5, Bookings: 7},
		Demographics: &models.Demographics{
			ByRole:   map[string]int{models.RoleServiceProvider: 5, models.RoleCommunityMember: 6, models.RoleAdmin: 1},
			Verified: 4,
			Banned:   1,
		},
		Skills:          []models.SkillCount{{Skill: "plumbing", Providers: 3}},
		SkilledPerTrade: []models.TradeCount{{Trade: "Plumbing", Providers: 3}},
		MostBooked:      []models.ServiceCount{{TypeOfWork: "Leak repair", Bookings: 4}},
		OverTime:        []models.PeriodTotals{{Period: "2025-03", Users: 2}, {Period: "2025-04", Bookings: 1}},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleBundle()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t,
		[]string{SheetTotals, SheetDemographics, SheetSkills, SheetTrades, SheetServices, SheetOverTime},
		f.GetSheetList())

	v, err := f.GetCellValue(SheetTotals, "B4")
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	title, _ := f.GetCellValue(SheetTotals, "A1")
	assert.Equal(t, "Generated 2025-04-02 08:15 UTC", title)

	role, _ := f.GetCellValue(SheetDemographics, "A4")
	assert.Equal(t, "Role: Community Member", role)

	trade, _ := f.GetCellValue(SheetTrades, "A4")
	assert.Equal(t, "Plumbing", trade)

	month, _ := f.GetCellValue(SheetOverTime, "A5")
	assert.Equal(t, "2025-04", month)
	booked, _ := f.GetCellValue(SheetOverTime, "D5")
	assert.Equal(t, "1", booked)
}

func TestWorkbookEmptyBundle(t *testing.T) {
	f, err := Workbook(&models.ReportBundle{})
	require.NoError(t, err)
	defer f.Close()

	header, _ := f.GetCellValue(SheetSkills, "A3")
	assert.Equal(t, "Skill", header)

	_, err = Workbook(nil)
	assert.Error(t, err)
}

func TestSaveTo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, err := SaveTo(dir, sampleBundle())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "skillconnect_reports_2025-04-02_081500.xlsx"), path)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
