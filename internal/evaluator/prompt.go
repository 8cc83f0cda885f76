package evaluator

import (
	"fmt"
	"strings"

	"job-recommender/internal/repository"
)

const scoringPolicy = `Scoring policy:
- 70-100: the job is directly relevant to one of the requested careers.
- 40-70: the job is indirectly relevant to one of the requested careers.
- 0-40: the job is unrelated to every requested career.`

const responseContract = `Respond with a JSON array only. One object per job:
{"job_index": <int, as given>, "is_relevant": <bool>, "match_score": <int 0-100>, "matched_career": <string, one of the requested careers>, "reason": <string, one sentence>, "required_skills": [<string>], "skill_match": [<string>]}`

const maxDescriptionRunes = 600

func buildPrompt(careers []string, jobs []repository.JobListing, offset int) string {
	var b strings.Builder
	b.WriteString("Evaluate how well each job listing fits the requested careers.\n\n")
	b.WriteString("Requested careers: ")
	b.WriteString(strings.Join(careers, ", "))
	b.WriteString("\n\n")
	b.WriteString(scoringPolicy)
	b.WriteString("\n\n")
	b.WriteString(responseContract)
	b.WriteString("\n\nJobs:\n")

	for i, j := range jobs {
		fmt.Fprintf(&b, "\n[job_index=%d]\n", offset+i)
		fmt.Fprintf(&b, "title: %s\n", oneLine(j.Title))
		if j.Company != "" {
			fmt.Fprintf(&b, "company: %s\n", oneLine(j.Company))
		}
		if j.Location != "" {
			fmt.Fprintf(&b, "location: %s\n", oneLine(j.Location))
		}
		if len(j.TechStack) > 0 {
			fmt.Fprintf(&b, "tech_stack: %s\n", strings.Join(j.TechStack, ", "))
		}
		if len(j.RequiredSkills) > 0 {
			fmt.Fprintf(&b, "required_skills: %s\n", strings.Join(j.RequiredSkills, ", "))
		}
		if d := truncateRunes(oneLine(j.Description), maxDescriptionRunes); d != "" {
			fmt.Fprintf(&b, "description: %s\n", d)
		}
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
