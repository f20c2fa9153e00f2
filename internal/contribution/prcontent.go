package contribution

import (
	"fmt"
	"strings"
)

// CompanyPath returns the repository path of a company's data file.
func CompanyPath(companyID string) string {
	return "data/companies/" + companyID + ".json"
}

type PRContent struct {
	Title string
	Body  string
}

// GeneratePRContent builds the pull request title and body for a submission.
func GeneratePRContent(companyID, companyName string, isEdit bool) PRContent {
	verb, action := "Add", "adds"
	if isEdit {
		verb, action = "Edit", "updates"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This pull request %s **%s** (`%s`) in the contact directory.\n\n", action, companyName, companyID)
	b.WriteString("### Files changed\n\n")
	fmt.Fprintf(&b, "- `%s`\n", CompanyPath(companyID))
	fmt.Fprintf(&b, "- `%s`\n\n", RegistryPath)
	b.WriteString("### Reviewer checklist\n\n")
	b.WriteString("- [ ] Company name, description and links are accurate\n")
	b.WriteString("- [ ] Every contact handle belongs to the listed product\n")
	b.WriteString("- [ ] Logo renders in light and dark themes\n")
	b.WriteString("- [ ] No duplicate company or product entries\n\n")
	b.WriteString("_Submitted through the contribution form._\n")

	return PRContent{
		Title: fmt.Sprintf("%s: %s", verb, companyName),
		Body:  b.String(),
	}
}
