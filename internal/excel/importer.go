package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/pkg/models"
)

// languageMarker starts a row that sets the language of the following rows,
// e.g. "# fr".
const languageMarker = "#"

// VocabStore is the storage the importer writes to
type VocabStore interface {
	FindByTerm(ctx context.Context, term string) (*models.VocabItem, error)
	Add(ctx context.Context, fields models.VocabFields) (int64, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath         string // Path to the Excel or CSV file
	TermColumn       string
	DefinitionColumn string
	LanguageColumn   string
	ExampleColumn    string
	SheetName        string // Excel only; empty means the first sheet
	DefaultLanguage  string // used when a row has no language
	StartRow         int    // 1-based
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		TermColumn:       "A",
		DefinitionColumn: "B",
		LanguageColumn:   "C",
		ExampleColumn:    "D",
		StartRow:         2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

// Importer loads vocabulary rows through the regular add path, so duplicate
// terms update the existing item
type Importer struct {
	store VocabStore
	log   zerolog.Logger
}

// NewImporter creates a new importer
func NewImporter(store VocabStore, log zerolog.Logger) *Importer {
	return &Importer{store: store, log: log.With().Str("component", "importer").Logger()}
}

// ImportFile imports vocabulary from an Excel or CSV file
func (im *Importer) ImportFile(ctx context.Context, cfg ImportConfig) (*ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(cfg.FilePath)) {
	case ".csv":
		rows, err = readCSV(cfg.FilePath)
	case ".xlsx", ".xlsm":
		rows, err = readExcel(cfg.FilePath, cfg.SheetName)
	default:
		return nil, apperrors.Validation("file", "unsupported extension "+filepath.Ext(cfg.FilePath))
	}
	if err != nil {
		return nil, err
	}

	result := im.importRows(ctx, rows, cfg)
	im.log.Info().
		Str("file", cfg.FilePath).
		Int("processed", result.TotalProcessed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("import finished")
	return result, nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (im *Importer) importRows(ctx context.Context, rows [][]string, cfg ImportConfig) *ImportResult {
	result := &ImportResult{Errors: make([]string, 0)}
	currentLanguage := cfg.DefaultLanguage

	for i, row := range rows {
		rowNum := i + 1
		if rowNum < cfg.StartRow {
			continue
		}

		first := strings.TrimSpace(cell(row, "A"))
		if strings.HasPrefix(first, languageMarker) {
			currentLanguage = strings.TrimSpace(strings.TrimPrefix(first, languageMarker))
			continue
		}

		fields := models.VocabFields{
			Term:       cleanTerm(cell(row, cfg.TermColumn)),
			Definition: strings.TrimSpace(cell(row, cfg.DefinitionColumn)),
			Language:   strings.TrimSpace(cell(row, cfg.LanguageColumn)),
			Example:    strings.TrimSpace(cell(row, cfg.ExampleColumn)),
		}
		if fields.Term == "" {
			result.Skipped++
			continue
		}
		if fields.Language == "" {
			fields.Language = currentLanguage
		}

		result.TotalProcessed++
		if err := im.importRow(ctx, fields, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		}
	}
	return result
}

func (im *Importer) importRow(ctx context.Context, fields models.VocabFields, result *ImportResult) error {
	_, err := im.store.FindByTerm(ctx, fields.Term)
	exists := err == nil
	if err != nil && !apperrors.IsNotFound(err) {
		return err
	}

	if _, err := im.store.Add(ctx, fields); err != nil {
		return err
	}
	if exists {
		result.Updated++
	} else {
		result.Created++
	}
	return nil
}

// cell returns the value of a column letter, or "" when absent.
func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

// cleanTerm drops trailing notes in brackets, e.g. "go (went, gone)".
func cleanTerm(term string) string {
	if i := strings.Index(term, "("); i > 0 {
		return strings.TrimSpace(term[:i])
	}
	return strings.TrimSpace(term)
}

// columnToIndex converts an Excel column letter to a 0-based index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
