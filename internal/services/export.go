package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"farmledger/internal/backend"
	"farmledger/internal/core"
	"farmledger/internal/log"
)

const utf8BOM = "\ufeff"

var csvHeader = []string{"type", "date", "category", "amount", "counterparty", "description"}

var ErrRangeOrder = errors.New("start date must not be after end date")

// ExportRange is an inclusive date range.
type ExportRange struct {
	Start core.Date
	End   core.Date
}

// Filename names the download, e.g. accounting_export_2025-01-01_2025-03-31.csv.
func (r ExportRange) Filename(ext string) string {
	return fmt.Sprintf("accounting_export_%s_%s.%s", r.Start, r.End, ext)
}

type ExportService struct {
	store  backend.LedgerStore
	logger *log.Logger
	now    func() time.Time
}

func NewExportService(store backend.LedgerStore, logger *log.Logger) *ExportService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportService{store: store, logger: logger.WithComponent(log.ComponentExport), now: time.Now}
}

// Range parses form dates. Blank start defaults to January 1st of this year,
// blank end to today.
func (s *ExportService) Range(start, end string) (ExportRange, error) {
	today := core.DateOf(s.now())
	r := ExportRange{Start: today.StartOfYear(), End: today}

	if d, err := core.ParseOptionalDate(start); err != nil {
		return ExportRange{}, &core.ValidationError{Field: "start", Err: err}
	} else if !d.IsZero() {
		r.Start = d
	}
	if d, err := core.ParseOptionalDate(end); err != nil {
		return ExportRange{}, &core.ValidationError{Field: "end", Err: err}
	} else if !d.IsZero() {
		r.End = d
	}
	if r.Start.After(r.End.Time) {
		return ExportRange{}, &core.ValidationError{Field: "start", Err: ErrRangeOrder}
	}
	return r, nil
}

func (s *ExportService) load(ctx context.Context, farmID string, r ExportRange) ([]core.Revenue, []core.Expense, error) {
	var (
		revenue  []core.Revenue
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revenue, err = s.store.ListRevenueRange(gctx, farmID, r.Start, r.End)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpensesRange(gctx, farmID, r.Start, r.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("load ledger: %w", err)
	}
	return revenue, expenses, nil
}

// WriteCSV writes revenue rows then expense rows, each oldest first, behind a
// UTF-8 BOM so spreadsheet tools detect the encoding. It returns the number of
// data rows written.
func (s *ExportService) WriteCSV(ctx context.Context, w io.Writer, farmID string, r ExportRange) (int, error) {
	revenue, expenses, err := s.load(ctx, farmID, r)
	if err != nil {
		return 0, err
	}

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, rv := range revenue {
		if err := cw.Write([]string{"revenue", rv.Date.String(), string(rv.Type), rv.Amount.Decimal(), csvText(rv.CustomerName), csvText(rv.Description)}); err != nil {
			return 0, err
		}
	}
	for _, e := range expenses {
		if err := cw.Write([]string{"expense", e.Date.String(), string(e.Category), e.Amount.Decimal(), csvText(e.VendorName), csvText(e.Description)}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}

	n := len(revenue) + len(expenses)
	s.logger.InfoContext(ctx, "CSV export written",
		log.FieldFarmID, farmID,
		log.FieldOperation, log.OpExport,
		"rows", n,
		"start", r.Start.String(),
		"end", r.End.String())
	return n, nil
}

// csvText quotes free text that a spreadsheet would otherwise evaluate as a formula.
func csvText(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// WriteXLSX writes a workbook with Revenue, Expenses and Summary sheets.
func (s *ExportService) WriteXLSX(ctx context.Context, w io.Writer, farmID, farmName string, r ExportRange) error {
	revenue, expenses, err := s.load(ctx, farmID, r)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	const revenueSheet, expenseSheet, summarySheet = "Revenue", "Expenses", "Summary"
	if err := f.SetSheetName("Sheet1", revenueSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{expenseSheet, summarySheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %s: %w", name, err)
		}
	}

	revRows := make([][]any, 0, len(revenue))
	for _, rv := range revenue {
		revRows = append(revRows, []any{rv.Date.String(), rv.Type.Label(), rv.Amount.Float64(), rv.CustomerName, rv.Description})
	}
	if err := writeTable(f, revenueSheet, bold, []any{"Date", "Type", "Amount", "Customer", "Description"}, revRows); err != nil {
		return err
	}

	expRows := make([][]any, 0, len(expenses))
	for _, e := range expenses {
		expRows = append(expRows, []any{e.Date.String(), e.Category.Label(), e.Amount.Float64(), e.VendorName, e.Description})
	}
	if err := writeTable(f, expenseSheet, bold, []any{"Date", "Category", "Amount", "Vendor", "Description"}, expRows); err != nil {
		return err
	}

	if err := writeTable(f, summarySheet, bold, []any{"Item", "Value"}, summaryRows(farmName, r, revenue, expenses)); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	s.logger.InfoContext(ctx, "XLSX export written",
		log.FieldFarmID, farmID,
		log.FieldOperation, log.OpExport,
		"revenue_rows", len(revenue),
		"expense_rows", len(expenses))
	return nil
}

func writeTable(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return f.SetColWidth(sheet, "A", "E", 18)
}

// summaryRows totals the range and breaks it down by revenue type and expense category.
func summaryRows(farmName string, r ExportRange, revenue []core.Revenue, expenses []core.Expense) [][]any {
	var totalRev, totalExp core.Money
	byType := map[string]core.Money{}
	byCategory := map[string]core.Money{}
	for _, rv := range revenue {
		totalRev = totalRev.Add(rv.Amount)
		byType[rv.Type.Label()] = byType[rv.Type.Label()].Add(rv.Amount)
	}
	for _, e := range expenses {
		totalExp = totalExp.Add(e.Amount)
		byCategory[e.Category.Label()] = byCategory[e.Category.Label()].Add(e.Amount)
	}

	rows := [][]any{
		{"Farm", farmName},
		{"Period", r.Start.String() + " to " + r.End.String()},
		{"Total revenue", totalRev.Float64()},
		{"Total expenses", totalExp.Float64()},
		{"Profit", totalRev.Sub(totalExp).Float64()},
	}
	for _, k := range sortedKeys(byType) {
		rows = append(rows, []any{"Revenue: " + k, byType[k].Float64()})
	}
	for _, k := range sortedKeys(byCategory) {
		rows = append(rows, []any{"Expense: " + k, byCategory[k].Float64()})
	}
	return rows
}

func sortedKeys(m map[string]core.Money) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
