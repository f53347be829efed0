package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

const tracerName = "record-store"

// SheetsStore reads and writes records in a Google spreadsheet.
//
// The Sheets API has no conditional write. CompareAndSwapSerialKey therefore
// re-reads the key cell immediately before writing and holds a process-wide
// lock; a writer on another machine can still interleave between that read
// and the write.
type SheetsStore struct {
	service       *sheets.Service
	spreadsheetID string
	accountsSheet string
	catalogSheet  string
	logger        *slog.Logger
	mu            sync.Mutex
}

// NewSheetsStore creates a store authenticated with a service account file
func NewSheetsStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*SheetsStore, error) {
	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewSheetsStoreWithService(service, cfg, logger), nil
}

// NewSheetsStoreWithService wraps an existing sheets service
func NewSheetsStoreWithService(service *sheets.Service, cfg config.StoreConfig, logger *slog.Logger) *SheetsStore {
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
	return &SheetsStore{
		service:       service,
		spreadsheetID: cfg.SheetID,
		accountsSheet: accounts,
		catalogSheet:  catalog,
		logger:        logger.With(slog.String("component", "sheets_store")),
	}
}

// FindAccountByEmail implements RecordStore
func (s *SheetsStore) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var account *domain.Account
	err := s.traceOperation(ctx, "find_account", func(ctx context.Context) error {
		h, rows, err := s.readTable(ctx, s.accountsSheet, AccountHeaders)
		if err != nil {
			return err
		}
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
func (s *SheetsStore) UpdateAccountDeviceBinding(ctx context.Context, email, fingerprint string) error {
	return s.traceOperation(ctx, "update_device_binding", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		h, rows, err := s.readTable(ctx, s.accountsSheet, AccountHeaders)
		if err != nil {
			return err
		}
		i := h.findAccountRow(rows, email)
		if i < 0 {
			return ErrAccountNotFound
		}
		return s.writeCell(ctx, s.accountsSheet, i, h[ColDevice], fingerprint)
	})
}

// ListCatalogEntries implements RecordStore
func (s *SheetsStore) ListCatalogEntries(ctx context.Context) ([]domain.CatalogEntry, error) {
	var entries []domain.CatalogEntry
	err := s.traceOperation(ctx, "list_catalog", func(ctx context.Context) error {
		h, rows, err := s.readTable(ctx, s.catalogSheet, CatalogHeaders)
		if err != nil {
			return err
		}
		entries = h.entries(rows)
		return nil
	})
	return entries, err
}

// UpdateCatalogSerialKey implements RecordStore
func (s *SheetsStore) UpdateCatalogSerialKey(ctx context.Context, displayName, newKey string) error {
	return s.traceOperation(ctx, "update_serial_key", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		h, rows, err := s.readTable(ctx, s.catalogSheet, CatalogHeaders)
		if err != nil {
			return err
		}
		i := h.findEntryRow(rows, displayName)
		if i < 0 {
			return ErrEntryNotFound
		}
		return s.writeCell(ctx, s.catalogSheet, i, h[ColSerialKey], newKey)
	})
}

// CompareAndSwapSerialKey implements RecordStore
func (s *SheetsStore) CompareAndSwapSerialKey(ctx context.Context, displayName, oldKey, newKey string) error {
	return s.traceOperation(ctx, "swap_serial_key", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		h, rows, err := s.readTable(ctx, s.catalogSheet, CatalogHeaders)
		if err != nil {
			return err
		}
		i := h.findEntryRow(rows, displayName)
		if i < 0 {
			return ErrEntryNotFound
		}
		if h.cell(rows[i], ColSerialKey) != strings.TrimSpace(oldKey) {
			return ErrKeyConflict
		}
		return s.writeCell(ctx, s.catalogSheet, i, h[ColSerialKey], newKey)
	})
}

// readTable fetches a whole sheet and parses its header row
func (s *SheetsStore) readTable(ctx context.Context, sheet string, required []string) (header, [][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, quoteSheet(sheet)).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, v := range raw {
			row[j] = fmt.Sprint(v)
		}
		rows[i] = row
	}

	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	h := parseHeader(rows[0])
	if err := h.require(required...); err != nil {
		return nil, nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	return h, rows, nil
}

// writeCell updates one cell. rowIndex is zero-based into the values read by
// readTable, so the sheet row number is rowIndex+1.
func (s *SheetsStore) writeCell(ctx context.Context, sheet string, rowIndex, colIndex int, value string) error {
	rangeStr := fmt.Sprintf("%s!%s%d", quoteSheet(sheet), columnLetter(colIndex), rowIndex+1)
	valueRange := &sheets.ValueRange{Values: [][]interface{}{{value}}}

	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeStr, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rangeStr, err)
	}

	s.logger.InfoContext(ctx, "Record cell updated", slog.String("range", rangeStr))
	return nil
}

// traceOperation wraps a spreadsheet call in a span
func (s *SheetsStore) traceOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "store.sheets."+operation,
		trace.WithAttributes(
			attribute.String("store.driver", "sheets"),
			attribute.String("store.operation", operation),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Float64("store.duration_ms", float64(time.Since(start).Milliseconds())))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
