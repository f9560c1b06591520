package strategy

import (
	"strings"
	"text/template"
)

var prompts = template.Must(template.New("prompts").Parse(`
{{define "extract"}}Extract the symbols defined or imported by the source file below.

Report these categories, one line each, omitting empty ones:

Usage: <what the file is for, at most 100 characters>
Functions: <name>, <name>, ...
Variables: <name>, <name>, ...
Classes: <name>, <name>, ...
Imports: <import statement>^^<import statement>^^...

Rules:
1. Output only those lines, no code and no commentary.
2. Separate import statements with ^^ exactly as shown.
3. If there are no symbols, reply with an empty message.

Source of {{.Path}}:

{{.Code}}
{{end}}

{{define "match"}}Known files and their symbols:

{{.Indices}}
The user's question:

{{.Query}}

Find the files relevant to the question. Tokens starting with @ name a file path
(partial matches count). Tokens starting with @@ name a symbol such as a function,
class or variable. Use the Imports lines to include direct dependencies of the files
you find and the Usage lines to judge relevance.

Reply with JSON only, in this format:

` + "```json" + `
{"file_list": [{"file_path": "path/to/file", "reason": "why it is relevant", "confidence": 0-10}]}
` + "```" + `

If nothing is relevant reply {"file_list": []}. Only use paths that appear above.
{{end}}

{{define "related"}}Known files and their symbols:

{{.Indices}}
Find the files above that are used or referenced by these files:

{{.Paths}}

Reply with JSON only, in this format:

` + "```json" + `
{"file_list": [{"file_path": "path/to/file", "reason": "short reason, under 20 words"}]}
` + "```" + `

If there are none reply {"file_list": []}. Only use paths that appear above.
{{end}}

{{define "verify"}}Decide whether the content below is relevant to the user's question.

Content:
{{.Content}}

Question:
{{.Query}}

Relevant means the content is needed as context, or must be changed, to answer the
question. Give a score from 0 to 10 and a reason of at most 50 words.

Reply with JSON only:

` + "```json" + `
{"relevant_score": 0-10, "reason": "..."}
` + "```" + `
{{end}}

{{define "excerpt"}}Use the document below to extract the information relevant to the question.

<document>
{{.Content}}
</document>

Question:
{{.Query}}

Copy the relevant passages as close to the original wording as possible and output
only them, in at most {{.Words}} words. If the document has nothing relevant, reply
exactly: {{.None}}
{{end}}
`))

// NoRelevantInfo is the reply an excerpt model gives when a document has nothing to offer.
const NoRelevantInfo = "NO_RELEVANT_INFORMATION"

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
