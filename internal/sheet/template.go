package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	// TemplateFileName is the download name of the CSV template
	TemplateFileName = "product_upload_template.csv"
	// TemplateContentType is the MIME type of the CSV template
	TemplateContentType = "text/csv"

	// TemplateXLSXFileName is the download name of the workbook template
	TemplateXLSXFileName = "product_upload_template.xlsx"
	// TemplateXLSXContentType is the MIME type of the workbook template
	TemplateXLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// TemplateColumn describes one column of the upload contract
type TemplateColumn struct {
	Name        string
	Description string
	Required    bool
	Example     string
}

// TemplateColumns is the ordered column contract. Order is for display only;
// the parser keys cells by header name.
var TemplateColumns = []TemplateColumn{
	{Name: "name", Description: "Product display name", Required: true, Example: "Oak Dining Chair"},
	{Name: "sku", Description: "Unique stock keeping unit", Required: true, Example: "CHAIR-OAK-001"},
	{Name: "category_name", Description: "Existing category name", Required: true, Example: "Dining Room"},
	{Name: "subcategory_name", Description: "Subcategory of category_name", Required: true, Example: "Chairs"},
	{Name: "brand", Description: "Brand or maker", Example: "Nordwood"},
	{Name: "color", Description: "Primary color or finish", Example: "Natural Oak"},
	{Name: "description", Description: "Long description", Example: "Solid oak dining chair with upholstered seat"},
	{Name: "dimensions", Description: "Width x depth x height", Example: "45x50x90 cm"},
	{Name: "price", Description: "Decimal price, 0 or more", Required: true, Example: "129.99"},
	{Name: "stock", Description: "Units in stock, defaults to 0", Example: "25"},
	{Name: "image_urls", Description: "Image URLs separated by semicolons", Example: "https://example.com/images/chair-front.jpg;https://example.com/images/chair-side.jpg"},
}

// TemplateHeaders returns the column keys in display order
func TemplateHeaders() []string {
	headers := make([]string, len(TemplateColumns))
	for i, col := range TemplateColumns {
		headers[i] = col.Name
	}
	return headers
}

// TemplateExample returns the example row keyed by column
func TemplateExample() map[string]string {
	example := make(map[string]string, len(TemplateColumns))
	for _, col := range TemplateColumns {
		example[col.Name] = col.Example
	}
	return example
}

// GenerateTemplate returns the CSV template: the header row and one example row
func GenerateTemplate() []byte {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	examples := make([]string, len(TemplateColumns))
	for i, col := range TemplateColumns {
		examples[i] = col.Example
	}

	// Writes to a bytes.Buffer cannot fail
	_ = writer.Write(TemplateHeaders())
	_ = writer.Write(examples)
	writer.Flush()

	return buf.Bytes()
}

// GenerateTemplateXLSX returns a workbook with the same columns as the CSV
// template on its first sheet plus an Instructions sheet.
func GenerateTemplateXLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Products"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create required style: %w", err)
	}

	for i, col := range TemplateColumns {
		header, _ := excelize.CoordinatesToCellName(i+1, 1)
		example, _ := excelize.CoordinatesToCellName(i+1, 2)

		if err := f.SetCellStr(sheetName, header, col.Name); err != nil {
			return nil, err
		}
		// Strings keep values like "129.99" exactly as the CSV template has them
		if err := f.SetCellStr(sheetName, example, col.Example); err != nil {
			return nil, err
		}

		style := headerStyle
		if col.Required {
			style = requiredStyle
		}
		if err := f.SetCellStyle(sheetName, header, header, style); err != nil {
			return nil, err
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, colName, colName, 22); err != nil {
			return nil, err
		}
	}

	if err := writeInstructions(f); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInstructions(f *excelize.File) error {
	const sheet = "Instructions"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add instructions sheet: %w", err)
	}

	lines := []string{
		"Product Upload Instructions",
		"",
		"Only the first sheet is imported. Keep the header row as is.",
		"Orange headers are required. Column order does not matter.",
		"Validate the file before committing: commit stays disabled until every row is valid.",
		"Rows rejected at commit time must be fixed and uploaded again in a new file.",
	}
	for i, line := range lines {
		if err := f.SetCellStr(sheet, fmt.Sprintf("A%d", i+1), line); err != nil {
			return err
		}
	}

	row := len(lines) + 2
	for i, title := range []string{"Column", "Description", "Required", "Example"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := f.SetCellStr(sheet, cell, title); err != nil {
			return err
		}
	}
	for _, col := range TemplateColumns {
		row++
		required := "No"
		if col.Required {
			required = "Yes"
		}
		values := []string{col.Name, col.Description, required, col.Example}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err := f.SetCellStr(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 45)
	_ = f.SetColWidth(sheet, "C", "C", 12)
	_ = f.SetColWidth(sheet, "D", "D", 60)
	return nil
}
