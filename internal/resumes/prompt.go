package resumes

import (
	_ "embed"
	"strings"
)

//go:embed prompts/feedback.txt
var feedbackTemplate string

// Instructions renders the analysis instructions for a job.
func Instructions(jobTitle, jobDescription string) string {
	title := strings.TrimSpace(jobTitle)
	if title == "" {
		title = "N/A"
	}
	desc := strings.TrimSpace(jobDescription)
	if desc == "" {
		desc = "N/A"
	}
	replacer := strings.NewReplacer(
		"{{JOB_TITLE}}", title,
		"{{JOB_DESCRIPTION}}", desc,
	)
	return replacer.Replace(feedbackTemplate)
}
