package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportMonthlyReportExcel renders a calculated month as an xlsx workbook with
// one block per report section.
func ExportMonthlyReportExcel(data *MonthlyReportData) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Sheet1"

	f.SetCellValue(sheet, "A1", fmt.Sprintf("Monthly Report of Operations - %d-%02d", data.Year, data.Month))

	row := 3
	sections := []struct {
		title  string
		totals []SectionTotal
	}{
		{"Opening Inventory", data.Opening},
		{"Production", data.Production},
		{"Transfers In", data.TransfersIn},
		{"Transfers Out", data.TransfersOut},
		{"Losses", data.Losses},
		{"Closing Inventory", data.Closing},
	}
	for _, section := range sections {
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), section.title)
		row++
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), "Category")
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), "SpiritClass")
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), "WineGallons")
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), "ProofGallons")
		row++
		for _, total := range section.totals {
			f.SetCellValue(sheet, "A"+fmt.Sprint(row), total.ProductCategory)
			f.SetCellValue(sheet, "B"+fmt.Sprint(row), string(total.SpiritClass))
			f.SetCellValue(sheet, "C"+fmt.Sprint(row), total.WineGallons.StringFixed(2))
			f.SetCellValue(sheet, "D"+fmt.Sprint(row), total.ProofGallons.StringFixed(2))
			row++
		}
		row++
	}

	if len(data.Warnings) > 0 {
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), "Warnings")
		row++
		for _, warning := range data.Warnings {
			f.SetCellValue(sheet, "A"+fmt.Sprint(row), warning)
			row++
		}
	}
	return f, nil
}
