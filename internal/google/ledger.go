package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"skillconnect/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	errRowNotFound = errors.New("booking row not found")
	appendedRowRe  = regexp.MustCompile(`![A-Z]+(\d+)`)
)

// BookingsLedger mirrors bookings into one sheet of a spreadsheet, one row per booking.
type BookingsLedger struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

// NewBookingsLedger authenticates with a service account key file.
func NewBookingsLedger(ctx context.Context, credentialsFile, spreadsheetID, sheet string) (*BookingsLedger, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newLedger(srv, spreadsheetID, sheet), nil
}

func newLedger(srv *sheets.Service, spreadsheetID, sheet string) *BookingsLedger {
	if sheet == "" {
		sheet = "Bookings"
	}
	return &BookingsLedger{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		rowCache:      make(map[int64]int),
	}
}

// ServiceAccountEmail returns the client_email of a key file, which must be
// granted edit access to the spreadsheet.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// TestConnection reads the header cell.
func (l *BookingsLedger) TestConnection(ctx context.Context) error {
	_, err := l.service.Spreadsheets.Values.Get(l.spreadsheetID, l.sheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles into row 1.
func (l *BookingsLedger) EnsureHeader(ctx context.Context) error {
	header := []interface{}{
		"Booking ID", "Request ID", "Requester ID", "Provider ID", "Type of Work", "Budget", "Status",
		"Created At", "Completed At",
	}
	_, err := l.service.Spreadsheets.Values.Update(l.spreadsheetID, l.sheet+"!A1:I1", &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (l *BookingsLedger) WarmUpCache(ctx context.Context) error {
	resp, err := l.service.Spreadsheets.Values.Get(l.spreadsheetID, l.sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok {
			cache[id] = i + 1
		}
	}

	l.cacheMu.Lock()
	l.rowCache = cache
	l.cacheMu.Unlock()
	return nil
}

// UpsertBooking updates the booking's row or appends a new one.
func (l *BookingsLedger) UpsertBooking(ctx context.Context, row *models.LedgerRow) error {
	if row == nil || row.BookingID == 0 {
		return fmt.Errorf("ledger row requires a booking id")
	}

	rowIdx, err := l.FindBookingRow(ctx, row.BookingID)
	if errors.Is(err, errRowNotFound) {
		return l.appendRow(ctx, row)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:I%d", l.sheet, rowIdx, rowIdx)
	_, err = l.service.Spreadsheets.Values.Update(l.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{rowValues(row)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (l *BookingsLedger) appendRow(ctx context.Context, row *models.LedgerRow) error {
	resp, err := l.service.Spreadsheets.Values.Append(l.spreadsheetID, l.sheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{rowValues(row)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if m := appendedRowRe.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if idx, err := strconv.Atoi(m[1]); err == nil {
				l.setCachedRow(row.BookingID, idx)
			}
		}
	}
	return nil
}

// FindBookingRow locates the 1-based row of bookingID in column A.
func (l *BookingsLedger) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if row, ok := l.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := l.service.Spreadsheets.Values.Get(l.spreadsheetID, l.sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if id, ok := cellID(row); ok && id == bookingID {
			l.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	var id int64
	switch v := row[0].(type) {
	case float64:
		id = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	}
	return id, id > 0
}

func (l *BookingsLedger) getCachedRow(id int64) (int, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	row, ok := l.rowCache[id]
	return row, ok
}

func (l *BookingsLedger) setCachedRow(id int64, row int) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.rowCache[id] = row
}

func rowValues(row *models.LedgerRow) []interface{} {
	completed := ""
	if row.CompletedAt != nil {
		completed = row.CompletedAt.UTC().Format(timeLayout)
	}
	return []interface{}{
		row.BookingID,
		row.ServiceRequestID,
		row.RequesterID,
		row.ProviderID,
		row.TypeOfWork,
		row.Budget,
		row.Status,
		row.CreatedAt.UTC().Format(timeLayout),
		completed,
	}
}

// RefreshEvery reloads the row cache periodically until ctx is done.
func (l *BookingsLedger) RefreshEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			_ = l.WarmUpCache(refreshCtx)
			cancel()
		}
	}
}
