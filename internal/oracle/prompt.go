package oracle

import "fmt"

// promptTemplate grounds the assistant on one document. The #### fences keep
// document text apart from the instructions, and the reload hint covers
// bot-interstitial pages that slip through the website loader.
const promptTemplate = `You are a friendly assistant named Oracle.
You have access to the following information from a document of type %s:

####
%s
####

Use the provided information as a basis for your responses.

Whenever you encounter $ in your output, replace it with S.

If the document contains something like "Just a moment...Enable JavaScript and cookies to continue"
suggest the user reload the Oracle!`

// SystemPrompt renders the system message for a document of the given type.
func SystemPrompt(sourceType, document string) string {
	return fmt.Sprintf(promptTemplate, sourceType, document)
}
