package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// XLSXStore keeps records in a local workbook with the same layout as the
// hosted spreadsheet. Every write re-reads and saves the file under a lock, so
// compare-and-swap is exact for writers in this process.
type XLSXStore struct {
	path          string
	accountsSheet string
	catalogSheet  string
	logger        *slog.Logger
	mu            sync.Mutex
}

// NewXLSXStore opens an existing workbook
func NewXLSXStore(cfg config.StoreConfig, logger *slog.Logger) (*XLSXStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	accounts, catalog := cfg.AccountsSheet, cfg.CatalogSheet
	if accounts == "" {
		accounts = config.DefaultAccountsSheet
	}
	if catalog == "" {
		catalog = accounts
	}

	f, err := excelize.OpenFile(cfg.XLSXPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", cfg.XLSXPath, err)
	}
	defer f.Close()

	for _, sheet := range []string{accounts, catalog} {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			return nil, fmt.Errorf("workbook %s has no sheet %q", cfg.XLSXPath, sheet)
		}
	}

	return &XLSXStore{
		path:          cfg.XLSXPath,
		accountsSheet: accounts,
		catalogSheet:  catalog,
		logger:        logger.With(slog.String("component", "xlsx_store")),
	}, nil
}

// FindAccountByEmail implements RecordStore
func (s *XLSXStore) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var account *domain.Account
	err := s.withTable(s.accountsSheet, AccountHeaders, false, func(_ *excelize.File, h header, rows [][]string) error {
		i := h.findAccountRow(rows, email)
		if i < 0 {
			return ErrAccountNotFound
		}
		a := h.account(rows[i])
		account = &a
		return nil
	})
	return account, err
}

// UpdateAccountDeviceBinding implements RecordStore
func (s *XLSXStore) UpdateAccountDeviceBinding(_ context.Context, email, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTable(s.accountsSheet, AccountHeaders, true, func(f *excelize.File, h header, rows [][]string) error {
		i := h.findAccountRow(rows, email)
		if i < 0 {
			return ErrAccountNotFound
		}
		return setCell(f, s.accountsSheet, i, h[ColDevice], fingerprint)
	})
}

// ListCatalogEntries implements RecordStore
func (s *XLSXStore) ListCatalogEntries(context.Context) ([]domain.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []domain.CatalogEntry
	err := s.withTable(s.catalogSheet, CatalogHeaders, false, func(_ *excelize.File, h header, rows [][]string) error {
		entries = h.entries(rows)
		return nil
	})
	return entries, err
}

// UpdateCatalogSerialKey implements RecordStore
func (s *XLSXStore) UpdateCatalogSerialKey(_ context.Context, displayName, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTable(s.catalogSheet, CatalogHeaders, true, func(f *excelize.File, h header, rows [][]string) error {
		i := h.findEntryRow(rows, displayName)
		if i < 0 {
			return ErrEntryNotFound
		}
		return setCell(f, s.catalogSheet, i, h[ColSerialKey], newKey)
	})
}

// CompareAndSwapSerialKey implements RecordStore
func (s *XLSXStore) CompareAndSwapSerialKey(_ context.Context, displayName, oldKey, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTable(s.catalogSheet, CatalogHeaders, true, func(f *excelize.File, h header, rows [][]string) error {
		i := h.findEntryRow(rows, displayName)
		if i < 0 {
			return ErrEntryNotFound
		}
		if h.cell(rows[i], ColSerialKey) != strings.TrimSpace(oldKey) {
			return ErrKeyConflict
		}
		return setCell(f, s.catalogSheet, i, h[ColSerialKey], newKey)
	})
}

// withTable opens the workbook, parses a sheet and runs fn. When save is set
// and fn succeeds the workbook is written back.
func (s *XLSXStore) withTable(sheet string, required []string, save bool, fn func(*excelize.File, header, [][]string) error) error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("sheet %s is empty", sheet)
	}

	h := parseHeader(rows[0])
	if err := h.require(required...); err != nil {
		return fmt.Errorf("sheet %s: %w", sheet, err)
	}

	if err := fn(f, h, rows); err != nil {
		return err
	}

	if save {
		if err := f.Save(); err != nil {
			return fmt.Errorf("failed to save workbook: %w", err)
		}
		s.logger.Debug("Workbook saved", slog.String("sheet", sheet))
	}
	return nil
}

func setCell(f *excelize.File, sheet string, rowIndex, colIndex int, value string) error {
	cell, err := excelize.CoordinatesToCellName(colIndex+1, rowIndex+1)
	if err != nil {
		return err
	}
	return f.SetCellStr(sheet, cell, value)
}

// CreateWorkbook writes a new single-sheet workbook holding accounts and
// catalog entries side by side, the layout the hosted spreadsheet uses.
func CreateWorkbook(path string, accounts []domain.Account, entries []domain.CatalogEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := config.DefaultAccountsSheet
	headers := append(append([]string{}, AccountHeaders...), CatalogHeaders...)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	rows := len(accounts)
	if len(entries) > rows {
		rows = len(entries)
	}
	for i := 0; i < rows; i++ {
		row := make([]string, len(headers))
		if i < len(accounts) {
			a := accounts[i]
			copy(row, []string{a.Email, a.Secret, a.DeviceFingerprint, a.Entitlements})
		}
		if i < len(entries) {
			e := entries[i]
			copy(row[len(AccountHeaders):], []string{e.DisplayName, e.InternalName, e.Locator, e.SerialKey})
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}
