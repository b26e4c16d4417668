package rowstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/xuri/excelize/v2"
)

const headerRow = 1

// XLSXStore keeps watch rows in one sheet of an .xlsx workbook. Row 1 is the
// header; data rows start at 2, matching spreadsheet row numbers. Delete blanks
// the row in place and Append never reuses a row number handed out by this
// store, so an index read earlier never points at another record.
type XLSXStore struct {
	mu     sync.Mutex
	path   string
	sheet  string
	file   *excelize.File
	header map[string]int
	width  int
	next   int
}

func OpenXLSX(path, sheet string) (*XLSXStore, error) {
	file, err := openWorkbook(path, sheet)
	if err != nil {
		return nil, err
	}

	s := &XLSXStore{path: path, sheet: sheet, file: file, header: make(map[string]int)}
	if err := s.loadHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}
	rows, err := file.GetRows(sheet)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	s.next = max(len(rows)+1, headerRow+1)
	if err := s.save(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return s, nil
}

func openWorkbook(path, sheet string) (*excelize.File, error) {
	if _, err := os.Stat(path); err == nil {
		file, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook %s: %w", path, err)
		}
		index, err := file.GetSheetIndex(sheet)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		if index == -1 {
			if _, err := file.NewSheet(sheet); err != nil {
				_ = file.Close()
				return nil, err
			}
		}
		return file, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	file := excelize.NewFile()
	if err := file.SetSheetName(file.GetSheetName(0), sheet); err != nil {
		_ = file.Close()
		return nil, err
	}
	return file, nil
}

func (s *XLSXStore) loadHeader() error {
	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		s.width = len(rows[0])
		for i, cell := range rows[0] {
			name, ok := domain.CanonicalColumn(cell)
			if !ok {
				continue
			}
			if _, seen := s.header[name]; !seen {
				s.header[name] = i + 1
			}
		}
	}

	// append canonical columns the sheet does not have yet
	for _, name := range domain.Columns {
		if _, ok := s.header[name]; ok {
			continue
		}
		s.width++
		cell, err := excelize.CoordinatesToCellName(s.width, headerRow)
		if err != nil {
			return err
		}
		if err := s.file.SetCellStr(s.sheet, cell, name); err != nil {
			return err
		}
		s.header[name] = s.width
	}
	return nil
}

func (s *XLSXStore) List(ctx context.Context) ([]domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Row, 0, len(rows))
	for i := headerRow; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		values := make(map[string]string, len(s.header))
		for name, col := range s.header {
			if col-1 < len(rows[i]) {
				values[name] = strings.TrimSpace(rows[i][col-1])
			} else {
				values[name] = ""
			}
		}
		result = append(result, domain.Row{Index: i + 1, Values: values})
	}
	return result, nil
}

func (s *XLSXStore) Append(ctx context.Context, values map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return 0, err
	}
	index := max(s.next, len(rows)+1)
	if err := s.writeCells(index, values); err != nil {
		return 0, err
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	s.next = index + 1
	return index, nil
}

func (s *XLSXStore) Update(ctx context.Context, index int, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	if err := s.writeCells(index, values); err != nil {
		return err
	}
	return s.save()
}

func (s *XLSXStore) Delete(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return err
	}
	if !present(rows, index) {
		return domain.ErrNotFound
	}
	// blank every cell, foreign columns included, so List skips the row
	for col := 1; col <= max(s.width, len(rows[index-1])); col++ {
		cell, err := excelize.CoordinatesToCellName(col, index)
		if err != nil {
			return err
		}
		if err := s.file.SetCellValue(s.sheet, cell, nil); err != nil {
			return err
		}
	}
	return s.save()
}

func (s *XLSXStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *XLSXStore) checkIndex(index int) error {
	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return err
	}
	if !present(rows, index) {
		return domain.ErrNotFound
	}
	return nil
}

func present(rows [][]string, index int) bool {
	return index > headerRow && index <= len(rows) && !blank(rows[index-1])
}

func (s *XLSXStore) writeCells(index int, values map[string]string) error {
	for column, value := range values {
		name, ok := domain.CanonicalColumn(column)
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(s.header[name], index)
		if err != nil {
			return err
		}
		if err := s.file.SetCellStr(s.sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *XLSXStore) save() error {
	return s.file.SaveAs(s.path)
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
