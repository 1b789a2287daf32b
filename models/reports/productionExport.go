package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/models"
	"github.com/xuri/excelize/v2"
)

const productionSheet = "Üretim Raporu"

var productionHeaders = []string{"İş Adı", "Makine", "Operatör", "Koli Sayısı", "Başlangıç", "Tamamlanma"}

// ProductionExport is a rendered workbook of completed jobs.
type ProductionExport struct {
	Filename string
	Data     []byte
	Rows     int
}

// ExportProduction renders completed jobs of the period (weekly, monthly or a number of days) as xlsx.
func ExportProduction(ctx context.Context, period string) (*ProductionExport, error) {
	days, err := models.PeriodDays(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "weekly"
	}
	jobs, err := models.CompletedJobsSince(ctx, days)
	if err != nil {
		return nil, err
	}

	f, err := buildProductionWorkbook(jobs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return &ProductionExport{
		Filename: fmt.Sprintf("uretim_raporu_%s.xlsx", period),
		Data:     buf.Bytes(),
		Rows:     len(jobs),
	}, nil
}

func buildProductionWorkbook(jobs []*models.Job) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", productionSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFBF00"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	for i, h := range productionHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(productionSheet, cell, h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(productionSheet, "A1", "F1", headerStyle); err != nil {
		return nil, err
	}

	for i, job := range jobs {
		row := i + 2
		operator := "Unknown"
		if job.OperatorName != nil && *job.OperatorName != "" {
			operator = *job.OperatorName
		}
		values := []interface{}{
			job.Name,
			job.MachineName,
			operator,
			job.CompletedKoli,
			formatTime(job.StartedAt),
			formatTime(job.CompletedAt),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(productionSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(productionSheet, "A", "F", 20); err != nil {
		return nil, err
	}
	return f, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
