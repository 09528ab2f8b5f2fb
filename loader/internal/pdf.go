package internal

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// MaxPages bounds the size of a personal PDF.
const MaxPages = 200

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// InspectPDF validates the file and returns its page count.
func InspectPDF(path string) (int, error) {
	if err := api.ValidateFile(path, pdfConfig()); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	if pages == 0 {
		return 0, fmt.Errorf("PDF has no page")
	}
	if pages > MaxPages {
		return 0, fmt.Errorf("PDF has %d pages, limit is %d", pages, MaxPages)
	}
	return pages, nil
}

// CropMargins removes running headers and footers by cropping every page.
// top and bottom are in points (1 pt = 1/72 inch).
func CropMargins(inputPath, outputPath string, top, bottom float64) error {
	box, err := model.ParseBox(fmt.Sprintf("%.2f 0 %.2f 0", top, bottom), types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, []string{"1-"}, box, pdfConfig()); err != nil {
		return fmt.Errorf("failed to crop PDF: %w", err)
	}
	return nil
}
