package contribution

import (
	"fmt"
	"strings"

	"contactdir/internal/gateway/entity"
	"contactdir/internal/githost"
)

// CodeInvalidInput classifies submissions rejected before any remote call.
const CodeInvalidInput githost.Code = "INVALID_INPUT"

// Submission is one contribution request.
type Submission struct {
	Company entity.Company `json:"company"`
	LogoSVG string         `json:"logoSvg"`
	IsEdit  bool           `json:"isEdit"`
}

// ValidationError lists the problems that keep a submission from running.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Code() githost.Code { return CodeInvalidInput }

// Check rejects submissions without an id, a name or a logo.
func (s Submission) Check() error {
	var problems []string
	if strings.TrimSpace(s.Company.ID) == "" {
		problems = append(problems, "company id is required")
	}
	if strings.TrimSpace(s.Company.Name) == "" {
		problems = append(problems, "company name is required")
	}
	logo := strings.TrimSpace(s.LogoSVG)
	switch {
	case logo == "":
		problems = append(problems, "logo is required")
	case !strings.Contains(logo, "<svg"):
		problems = append(problems, "logo must be an SVG document")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// NewValidationError builds a ValidationError from formatted problems.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}
