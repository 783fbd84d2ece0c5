// Package prompt holds the system prompts sent alongside each headline.
package prompt

import "fmt"

// Baseline asks for a one-word real/fake classification
const Baseline = `
Your job is to determine whether a news headlines is 'real' or 'fake'.

You will be provided a news headline. You must respond with either 'real' or 'fake'.
- real headlines are accurate and unbiased
- your response must be one word ONLY: either 'real' or 'fake'.
- Do not respond with any additional information or analysis.

Acceptable Responses:
- 'fake'
- 'real'
`

// StrictVerdict is appended to Baseline when a reply came back malformed
const StrictVerdict = "YOU CAN ONLY RESPOND WITH ONE WORD: EITHER 'real' OR 'fake'. DO NOT INCLUDE ANY OTHER TEXT OR ADDITIONAL RESPONSE."

// StrictRating is appended to a certainty prompt when a reply came back malformed
const StrictRating = "YOU CAN ONLY RESPOND WITH ONE INTEGER BETWEEN 1 AND 5. DO NOT INCLUDE ANY TEXT OR ADDITIONAL RESPONSE."

// Certainty asks the model to rate, 1 to 5, how confident it is that the
// headline is pred ("real" or "fake")
func Certainty(pred string) string {
	return fmt.Sprintf(`
Your job is to rate how confident you are that a given news headline is '%s' on a scale of 1 to 5.

You will be provided a news headline. You must respond with either '1', '2', '3', '4', or '5'.
- 5 represents being most confident, 1 represents being least confident.
- 'real' headlines are accurate and unbiased, 'fake' headlines are not accurate and/or biased.
- your response must be only a single integer from 1 to 5.
- Do not respond with any additional information or analysis.

Acceptable Responses:
- '1'
- '2'
- '3'
- '4'
- '5'
`, pred)
}

// WithConstraint appends a hard constraint to a system prompt
func WithConstraint(template, constraint string) string {
	return template + "\n" + constraint
}
