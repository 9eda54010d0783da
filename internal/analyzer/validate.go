// internal/analyzer/validate.go
package analyzer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mcp-calorie-analyzer/internal/models"
)

// EstimateDecodedSize approximates the decoded byte length of a base64
// payload as 3/4 of its encoded length. Padding makes it overshoot by up to
// two bytes, which is fine for a soft limit.
func EstimateDecodedSize(encoded string) float64 {
	return float64(len(encoded)) * 3 / 4
}

// Validate checks a submission before any model call. The image bytes are
// never decoded or sniffed.
func Validate(sub models.ImageSubmission) *models.AnalysisError {
	if strings.TrimSpace(sub.ImageData) == "" {
		return &models.AnalysisError{
			Message: "Image data is empty",
			Code:    models.CodeInvalidImage,
			Details: "image_data must contain a base64 encoded image",
		}
	}

	if size := EstimateDecodedSize(sub.ImageData); size > models.MaxImageBytes {
		return &models.AnalysisError{
			Message: "Image size exceeds 5MB limit",
			Code:    models.CodeImageTooLarge,
			Details: fmt.Sprintf("Image size: %sMB, limit: %sMB", formatMB(size), formatMB(models.MaxImageBytes)),
		}
	}

	if !sub.ImageType.Valid() {
		return &models.AnalysisError{
			Message: "Unsupported image type",
			Code:    models.CodeValidationError,
			Details: fmt.Sprintf("image_type %q must be one of %s", sub.ImageType, supportedTypesList()),
		}
	}

	if sub.DetailLevel != "" && !sub.DetailLevel.Valid() {
		return &models.AnalysisError{
			Message: "Unsupported detail level",
			Code:    models.CodeValidationError,
			Details: fmt.Sprintf("detail_level %q must be one of basic, detailed", sub.DetailLevel),
		}
	}

	return nil
}

// formatMB renders a byte count in MiB rounded to two decimals.
func formatMB(bytes float64) string {
	mb := math.Round(bytes/1024/1024*100) / 100
	return strconv.FormatFloat(mb, 'f', -1, 64)
}

func supportedTypesList() string {
	names := make([]string, 0, len(models.SupportedImageTypes))
	for _, t := range models.SupportedImageTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
