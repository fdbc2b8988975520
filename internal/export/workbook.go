package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"skillconnect/internal/models"
)

// Sheet names of the report workbook.
const (
	SheetTotals       = "Totals"
	SheetDemographics = "Demographics"
	SheetSkills       = "Skills"
	SheetTrades       = "Trades"
	SheetServices     = "Most Booked"
	SheetOverTime     = "Over Time"
)

// ContentType is the MIME type of xlsx files.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type styles struct {
	title  int
	header int
}

// Workbook renders the reports into a new workbook. The caller closes it.
func Workbook(bundle *models.ReportBundle) (*excelize.File, error) {
	if bundle == nil {
		return nil, fmt.Errorf("report bundle is nil")
	}

	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	writers := []func(*excelize.File, styles, *models.ReportBundle) error{
		writeTotals,
		writeDemographics,
		writeSkills,
		writeTrades,
		writeServices,
		writeOverTime,
	}
	for _, write := range writers {
		if err := write(f, st, bundle); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if idx, err := f.GetSheetIndex(SheetTotals); err == nil {
		f.SetActiveSheet(idx)
	}
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, bundle *models.ReportBundle) error {
	f, err := Workbook(bundle)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveTo writes the workbook into dir and returns the file path.
func SaveTo(dir string, bundle *models.ReportBundle) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := Workbook(bundle)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(bundle.GeneratedAt))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

// FileName is the download name for a report generated at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("skillconnect_reports_%s.xlsx", t.UTC().Format("2006-01-02_150405"))
}

func newStyles(f *excelize.File) (styles, error) {
	title, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	if err != nil {
		return styles{}, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return styles{}, err
	}
	return styles{title: title, header: header}, nil
}

// table writes a title row, a header row and data rows starting at A1.
func table(f *excelize.File, st styles, sheet, title string, header []interface{}, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", sheet, err)
	}

	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}
	_ = f.SetCellStyle(sheet, "A1", "A1", st.title)

	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 3)
	_ = f.SetCellStyle(sheet, "A3", last, st.header)

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, 4+i)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	_ = f.SetColWidth(sheet, "A", lastCol, 22)
	return nil
}

func writeTotals(f *excelize.File, st styles, b *models.ReportBundle) error {
	t := b.Totals
	if t == nil {
		t = &models.Totals{}
	}
	rows := [][]interface{}{
		{"Users", t.Users},
		{"Service providers", t.ServiceProviders},
		{"Community members", t.CommunityMembers},
		{"Service requests", t.ServiceRequests},
		{"Open requests", t.OpenRequests},
		{"Bookings", t.Bookings},
		{"Completed bookings", t.CompletedBookings},
		{"Reviews", t.Reviews},
	}
	title := "Generated " + b.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")
	return table(f, st, SheetTotals, title, []interface{}{"Metric", "Count"}, rows)
}

func writeDemographics(f *excelize.File, st styles, b *models.ReportBundle) error {
	d := b.Demographics
	if d == nil {
		d = &models.Demographics{}
	}
	roles := make([]string, 0, len(d.ByRole))
	for role := range d.ByRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	rows := make([][]interface{}, 0, len(roles)+3)
	for _, role := range roles {
		rows = append(rows, []interface{}{"Role: " + role, d.ByRole[role]})
	}
	rows = append(rows,
		[]interface{}{"Verified", d.Verified},
		[]interface{}{"Unverified", d.Unverified},
		[]interface{}{"Banned", d.Banned},
	)
	return table(f, st, SheetDemographics, "User demographics", []interface{}{"Group", "Users"}, rows)
}

func writeSkills(f *excelize.File, st styles, b *models.ReportBundle) error {
	rows := make([][]interface{}, 0, len(b.Skills))
	for _, s := range b.Skills {
		rows = append(rows, []interface{}{s.Skill, s.Providers})
	}
	return table(f, st, SheetSkills, "Providers per skill", []interface{}{"Skill", "Providers"}, rows)
}

func writeTrades(f *excelize.File, st styles, b *models.ReportBundle) error {
	rows := make([][]interface{}, 0, len(b.SkilledPerTrade))
	for _, t := range b.SkilledPerTrade {
		rows = append(rows, []interface{}{t.Trade, t.Providers})
	}
	return table(f, st, SheetTrades, "Skilled providers per trade", []interface{}{"Trade", "Providers"}, rows)
}

func writeServices(f *excelize.File, st styles, b *models.ReportBundle) error {
	rows := make([][]interface{}, 0, len(b.MostBooked))
	for _, s := range b.MostBooked {
		rows = append(rows, []interface{}{s.TypeOfWork, s.Bookings})
	}
	return table(f, st, SheetServices, "Most booked services", []interface{}{"Type of work", "Bookings"}, rows)
}

func writeOverTime(f *excelize.File, st styles, b *models.ReportBundle) error {
	rows := make([][]interface{}, 0, len(b.OverTime))
	for _, p := range b.OverTime {
		rows = append(rows, []interface{}{p.Period, p.Users, p.ServiceRequests, p.Bookings})
	}
	header := []interface{}{"Month", "New users", "New requests", "New bookings"}
	return table(f, st, SheetOverTime, "Totals over time", header, rows)
}
