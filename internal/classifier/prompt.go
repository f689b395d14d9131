package classifier

import (
	"fmt"
	"time"
)

const promptFormat = `You track job applications. Analyze the following email and decide whether it is about a job application the recipient made or is making.
Respond with a JSON object containing:
- is_job_related: boolean (true only for mail about a specific application, interview, assessment, offer or rejection)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- company: string (the hiring company, not the job board or recruiting agency)
- position: string (the role title)
- status: string (one of APPLIED, SCREENING, INTERVIEWING, OFFER, ACCEPTED, REJECTED, WITHDRAWN)
- contact_name: string
- contact_email: string
- next_action: string (what the candidate should do next, empty if nothing)
- key_date: string (ISO 8601 date of the next interview or deadline, empty if none)
- summary: string (one sentence)

Use an empty string for anything the email does not state.

Email:
%s

Respond only with the JSON object and nothing else.`

const emailFormat = `From: %s
To: %s
Date: %s
Subject: %s
Body:
%s`

func formatEmail(from, to, subject, body string, receivedAt time.Time) string {
	date := ""
	if !receivedAt.IsZero() {
		date = receivedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf(emailFormat, from, to, date, subject, body)
}

func buildPrompt(email string) string {
	return fmt.Sprintf(promptFormat, email)
}
