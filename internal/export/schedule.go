// Package export builds spreadsheet reports of the appointment schedule.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"zapis/internal/calendar"
	"zapis/internal/domain"
	"zapis/internal/models"
	"zapis/internal/notify"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	scheduleSheet = "Расписание"
	listSheet     = "Записи"
)

// Exporter renders a day of appointments as an xlsx workbook: a slot grid
// per service and a flat list.
type Exporter struct {
	rules   calendar.Rules
	catalog domain.Catalog
	dir     string
	logger  *zerolog.Logger
}

func NewExporter(rules calendar.Rules, catalog domain.Catalog, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{rules: rules, catalog: catalog, dir: dir, logger: logger}
}

// FileName is the name used for a day's export.
func FileName(day calendar.Day) string {
	return fmt.Sprintf("schedule_%s.xlsx", day)
}

// Write streams the workbook for day to w.
func (e *Exporter) Write(w io.Writer, day calendar.Day, appts []*models.Appointment) error {
	f, err := e.build(day, appts)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// Save writes the workbook into the export directory and returns its path.
func (e *Exporter) Save(day calendar.Day, appts []*models.Appointment) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(day, appts)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, FileName(day))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", path).Int("appointments", len(appts)).Msg("Excel file created")
	return path, nil
}

func (e *Exporter) build(day calendar.Day, appts []*models.Appointment) (*excelize.File, error) {
	f := excelize.NewFile()

	for _, name := range []string{scheduleSheet, listSheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("error creating sheet: %w", err)
		}
	}
	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(scheduleSheet); err == nil {
		f.SetActiveSheet(index)
	}

	columns := e.serviceColumns(appts)
	if err := e.writeGrid(f, day, columns, appts); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeList(f, appts); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

type serviceColumn struct {
	id   string
	name string
}

// serviceColumns lists bookable services first, then services that only
// appear in the appointments (e.g. switched off after booking).
func (e *Exporter) serviceColumns(appts []*models.Appointment) []serviceColumn {
	seen := make(map[string]bool)
	var columns []serviceColumn
	for _, s := range e.catalog.Services() {
		seen[s.ID] = true
		columns = append(columns, serviceColumn{id: s.ID, name: s.Name})
	}
	for _, a := range appts {
		if !seen[a.ServiceID] {
			seen[a.ServiceID] = true
			columns = append(columns, serviceColumn{id: a.ServiceID, name: a.ServiceName})
		}
	}
	return columns
}

func (e *Exporter) writeGrid(f *excelize.File, day calendar.Day, columns []serviceColumn, appts []*models.Appointment) error {
	type slotKey struct {
		service string
		time    calendar.Clock
	}
	booked := make(map[slotKey]*models.Appointment, len(appts))
	for _, a := range appts {
		booked[slotKey{a.ServiceID, a.Time}] = a
	}

	// Слоты сетки плюс время записей вне сетки
	slots := e.rules.CandidateSlots()
	inGrid := make(map[calendar.Clock]bool, len(slots))
	for _, c := range slots {
		inGrid[c] = true
	}
	for _, a := range appts {
		if !inGrid[a.Time] {
			inGrid[a.Time] = true
			slots = insertSorted(slots, a.Time)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	bookedStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	freeStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	_ = f.SetCellValue(scheduleSheet, "A1", "Расписание на "+notify.FormatDay(day))
	lastCol, _ := excelize.ColumnNumberToName(len(columns) + 1)
	_ = f.MergeCell(scheduleSheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(scheduleSheet, "A1", "A1", titleStyle)

	_ = f.SetCellValue(scheduleSheet, "A2", "Время")
	_ = f.SetCellStyle(scheduleSheet, "A2", "A2", headerStyle)
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+2, 2)
		_ = f.SetCellValue(scheduleSheet, cell, col.name)
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headerStyle)
	}

	for r, slot := range slots {
		row := r + 3
		timeCell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(scheduleSheet, timeCell, slot.String())

		for i, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(i+2, row)
			if a, ok := booked[slotKey{col.id, slot}]; ok {
				_ = f.SetCellValue(scheduleSheet, cell, clientCell(a))
				_ = f.SetCellStyle(scheduleSheet, cell, cell, bookedStyle)
				continue
			}
			_ = f.SetCellValue(scheduleSheet, cell, "Свободно")
			_ = f.SetCellStyle(scheduleSheet, cell, cell, freeStyle)
		}
	}

	_ = f.SetColWidth(scheduleSheet, "A", "A", 10)
	if len(columns) > 0 {
		_ = f.SetColWidth(scheduleSheet, "B", lastCol, 25)
	}
	return nil
}

var listHeaders = []string{
	"Время", "Услуга", "Имя", "Фамилия", "Телефон",
	"Длительность, мин", "Стоимость", "Комментарий", "ID",
}

func writeList(f *excelize.File, appts []*models.Appointment) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	for i, h := range listHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(listSheet, cell, h)
		_ = f.SetCellStyle(listSheet, cell, cell, headerStyle)
	}

	for r, a := range appts {
		row := []any{
			a.Time.String(), a.ServiceName, a.FirstName, a.LastName, a.Phone,
			a.DurationMinutes, notify.FormatPrice(a.Price, a.Currency), a.Notes, a.ID,
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(listSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing row: %w", err)
		}
	}

	_ = f.SetColWidth(listSheet, "A", "A", 10)
	_ = f.SetColWidth(listSheet, "B", "H", 20)
	_ = f.SetColWidth(listSheet, "I", "I", 38)
	return nil
}

func clientCell(a *models.Appointment) string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	text := fmt.Sprintf("%s\n%s", name, a.Phone)
	if a.Notes != "" {
		text += "\n" + a.Notes
	}
	return text
}

func insertSorted(slots []calendar.Clock, c calendar.Clock) []calendar.Clock {
	i := 0
	for i < len(slots) && slots[i] < c {
		i++
	}
	slots = append(slots, 0)
	copy(slots[i+1:], slots[i:])
	slots[i] = c
	return slots
}
