package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"registro/internal/core"
	ports "registro/internal/sheets"
)

const defaultRowCacheTTL = 2 * time.Minute

// header is written to row 1 of a new yearly sheet.
var header = []any{"ID", "Date", "Kind", "Amount", "Category", "Payment method", "Memo", "Recurring ID"}

// Config selects the spreadsheet and credentials. OAuth credentials win
// over a service account when both are set.
type Config struct {
	SpreadsheetID string
	// SheetName is the base name; rows go to "<year> <SheetName>".
	SheetName string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string

	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	// Next-row cache per sheet, saves a read before every append.
	mu                 sync.Mutex
	rowCounts          map[string]int
	cacheExpiresAt     map[string]time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.TransactionWriter  = (*Client)(nil)
	_ ports.TransactionDeleter = (*Client)(nil)
)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Transactions"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, cfg), nil
}

func newClient(svc *gsheet.Service, cfg Config) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      cfg.SpreadsheetID,
		sheetBase:          cfg.SheetName,
		rowCounts:          make(map[string]int),
		cacheExpiresAt:     make(map[string]time.Time),
		cacheValidDuration: defaultRowCacheTTL,
	}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var opts []goption.ClientOption

	switch {
	case cfg.OAuthClientJSON != "" || cfg.OAuthClientFile != "":
		ts, err := oauthTokenSource(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth credentials for Google Sheets")
		base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
		opts = append(opts, goption.WithHTTPClient(oauth2.NewClient(base, ts)))
	case cfg.ServiceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		opts = append(opts,
			goption.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case cfg.ServiceAccountFile != "":
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials file", "path", cfg.ServiceAccountFile)
		opts = append(opts,
			goption.WithCredentialsJSON(b),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	default:
		return nil, errors.New("missing credentials (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_SERVICE_ACCOUNT_JSON, or their _FILE variants)")
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// oauthTokenSource builds a refreshing token source from an installed-app
// client and the token saved by oauth-init.
func oauthTokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	clientJSON, err := readInlineOrFile(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	if cfg.OAuthTokenJSON == "" && cfg.OAuthTokenFile == "" {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	tokenJSON, err := readInlineOrFile(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return oauthCfg.TokenSource(ctx, &tok), nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	return os.ReadFile(path)
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// SheetFor returns the yearly sheet a transaction dated d belongs to.
func (c *Client) SheetFor(d core.Date) string {
	return yearPrefixedName(c.sheetBase, d.Year())
}

// Append writes tx as a new row of its yearly sheet and returns the range
// it was written to.
func (c *Client) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.SheetFor(tx.Date)
	nextRow, err := c.nextRow(ctx, sheet)
	if err != nil {
		return "", err
	}

	values := [][]any{transactionRow(tx)}
	if nextRow == 1 {
		values = [][]any{header, transactionRow(tx)}
	}
	lastRow := nextRow + len(values) - 1
	rng := fmt.Sprintf("%s!A%d:H%d", sheet, nextRow, lastRow)

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.InvalidateRowCache()
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	c.mu.Lock()
	c.rowCounts[sheet] = lastRow
	c.mu.Unlock()

	return fmt.Sprintf("%s!A%d:H%d", sheet, lastRow, lastRow), nil
}

// Delete clears the row whose first column holds txID.
func (c *Client) Delete(ctx context.Context, txID string, date core.Date) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := c.SheetFor(date)
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}

	row := findRow(resp.Values, txID)
	if row == 0 {
		return fmt.Errorf("%w: %s in %s", ports.ErrRowNotFound, txID, sheet)
	}

	clearRange := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	slog.InfoContext(ctx, "Cleared transaction row", "transaction_id", txID, "range", clearRange)
	return nil
}

// nextRow returns the first free row of sheet, reading column A when the
// cached count is stale.
func (c *Client) nextRow(ctx context.Context, sheet string) (int, error) {
	c.mu.Lock()
	if n, ok := c.rowCounts[sheet]; ok && time.Now().Before(c.cacheExpiresAt[sheet]) {
		c.mu.Unlock()
		return n + 1, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}

	n := len(resp.Values)
	c.mu.Lock()
	c.rowCounts[sheet] = n
	c.cacheExpiresAt[sheet] = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return n + 1, nil
}

// InvalidateRowCache forces the next append to re-read the sheet size.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.rowCounts)
	clear(c.cacheExpiresAt)
}

func transactionRow(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Date.String(),
		string(tx.Kind),
		tx.Amount.String(),
		tx.Category,
		tx.PaymentMethod,
		tx.Memo,
		tx.RecurringID,
	}
}

// findRow returns the 1-based row whose first cell equals id, or 0.
func findRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
