package internal

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Running header and footer heights in points (1 pt = 1/72 inch).
const (
	headerCrop = 46.0
	footerCrop = 57.0
)

// RemoveHeaderFooterCrop writes a copy of inputPath with top and bottom trimmed from
// every page, so page headers and footers don't end up in the extracted text.
func RemoveHeaderFooterCrop(inputPath, outputPath string, top, bottom float64) error {
	conf := model.NewDefaultConfiguration()

	box, err := model.ParseBox(fmt.Sprintf("%.2f 0 %.2f 0", top, bottom), types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, []string{"1-"}, box, conf); err != nil {
		return fmt.Errorf("failed to crop PDF: %w", err)
	}
	return nil
}

// croppedCopy crops path into a temporary file and returns its name.
// The caller removes the file.
func croppedCopy(path string) (string, error) {
	tmp, err := os.CreateTemp("", "docchat-*.pdf")
	if err != nil {
		return "", err
	}
	tmp.Close()

	if err := RemoveHeaderFooterCrop(path, tmp.Name(), headerCrop, footerCrop); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
