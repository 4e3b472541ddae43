package agent

import "strings"

// TerminationPhrase ends the conversation when it is the agent's final output.
const TerminationPhrase = "Goodbye, have a nice day!"

// IsTermination reports whether output is the termination phrase, ignoring
// case and surrounding whitespace. Anything else, including the phrase
// embedded in a longer reply, is not a termination.
func IsTermination(output string) bool {
	return strings.EqualFold(strings.TrimSpace(output), TerminationPhrase)
}
