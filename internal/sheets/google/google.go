// Package google mirrors ledger rows to a Google Sheets spreadsheet using a
// service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"farmledger/internal/core"
	"farmledger/internal/log"
	ports "farmledger/internal/sheets"
)

// Options selects the spreadsheet, its tabs and the service account.
// Credentials are taken from CredentialsJSON, then CredentialsFile, then
// ApplicationCredentials.
type Options struct {
	SpreadsheetID          string
	RevenueSheet           string
	ExpenseSheet           string
	CredentialsJSON        string
	CredentialsFile        string
	ApplicationCredentials string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabs          map[core.LedgerKind]string
	logger        *log.Logger
	now           func() time.Time

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ ports.LedgerMirror = (*Client)(nil)

func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := credentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", opts.SpreadsheetID)

	return newClient(svc, opts, logger), nil
}

func newClient(svc *gsheet.Service, opts Options, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentSheets)
	}
	revenue, expenses := opts.RevenueSheet, opts.ExpenseSheet
	if revenue == "" {
		revenue = "Revenue"
	}
	if expenses == "" {
		expenses = "Expenses"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		tabs:          map[core.LedgerKind]string{core.KindRevenue: revenue, core.KindExpense: expenses},
		logger:        logger,
		now:           time.Now,
		sheetIDs:      map[string]int64{},
	}
}

func credentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case opts.CredentialsFile != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	case opts.ApplicationCredentials != "":
		b, err := os.ReadFile(opts.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("read application credentials: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) tab(kind core.LedgerKind) (string, error) {
	name, ok := c.tabs[kind]
	if !ok {
		return "", fmt.Errorf("unknown ledger kind %q", kind)
	}
	return name, nil
}

// idColumn reads column A, where ledger ids live.
func (c *Client) idColumn(ctx context.Context, tab string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", tab)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) Upsert(ctx context.Context, row ports.LedgerRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	tab, err := c.tab(row.Kind)
	if err != nil {
		return "", err
	}

	ids, err := c.idColumn(ctx, tab)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		if err := c.write(ctx, tab, 1, ports.Header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		ids = [][]any{{"id"}}
	}

	n := findRow(ids, row.ID)
	if n == 0 {
		n = len(ids) + 1
	}
	if row.SyncedAt.IsZero() {
		row.SyncedAt = c.now()
	}
	if err := c.write(ctx, tab, n, row.Values()); err != nil {
		return "", err
	}
	return rowRef(tab, n), nil
}

func (c *Client) write(ctx context.Context, tab string, n int, values []any) error {
	rng := rowRef(tab, n)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, kind core.LedgerKind, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab, err := c.tab(kind)
	if err != nil {
		return err
	}
	ids, err := c.idColumn(ctx, tab)
	if err != nil {
		return err
	}
	n := findRow(ids, id)
	if n == 0 {
		c.logger.DebugContext(ctx, "Row not in sheet, nothing to delete", log.FieldEntityID, id, "sheet", tab)
		return nil
	}

	sheetID, err := c.sheetID(ctx, tab)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:         sheetID,
			Dimension:       "ROWS",
			StartIndex:      int64(n - 1),
			EndIndex:        int64(n),
			ForceSendFields: []string{"SheetId", "StartIndex"},
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d of %s: %w", n, tab, err)
	}
	c.logger.InfoContext(ctx, "Deleted ledger row from sheet", log.FieldEntityID, id, log.FieldSheetsRef, rowRef(tab, n))
	return nil
}

// sheetID resolves a tab title to its numeric id, caching the answer.
func (c *Client) sheetID(ctx context.Context, tab string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[tab]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[tab]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", tab)
	}
	return id, nil
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

func rowRef(tab string, n int) string {
	return fmt.Sprintf("%s!A%d:I%d", tab, n, n)
}
