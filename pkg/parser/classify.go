package parser

import (
	"strings"

	"github.com/finlex/docindexer/pkg/core"
)

// filenameHints are checked in order; the first match wins.
var filenameHints = []struct {
	keywords []string
	class    core.DocumentClass
}{
	{[]string{"receipt", "invoice", "bill"}, core.ClassExpenseDocument},
	{[]string{"statement"}, core.ClassFinancialStatement},
	{[]string{"contract", "agreement"}, core.ClassContract},
	{[]string{"report", "summary"}, core.ClassReport},
}

var contentHints = []string{"total:", "amount:", "$", "€", "£", "payment", "transaction"}

// Classify labels a document from its filename first, then its content,
// defaulting to general_document.
func Classify(filename, text string) core.DocumentClass {
	name := strings.ToLower(filename)
	for _, hint := range filenameHints {
		for _, kw := range hint.keywords {
			if strings.Contains(name, kw) {
				return hint.class
			}
		}
	}

	content := strings.ToLower(text)
	for _, kw := range contentHints {
		if strings.Contains(content, kw) {
			return core.ClassExpenseDocument
		}
	}

	return core.ClassGeneralDocument
}
