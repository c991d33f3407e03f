package prompt

import "fmt"

// SummaryInstruction is the system instruction for document summaries.
const SummaryInstruction = `You summarize documents for a team workspace assistant.
Write a faithful, compact summary of the document. Keep names, dates, amounts, decisions and action items.
Do not add facts that are not in the document. Use short paragraphs or bullet points.`

// SummaryRequest renders the user turn for summarizing text titled title.
func SummaryRequest(text, title string) string {
	return fmt.Sprintf("Summarize the document %q.\n\n<document>\n%s\n</document>", title, text)
}
