package classify

import (
	"strings"
	"text/template"
)

// MaxTextRunes caps how much page text is sent to the model.
const MaxTextRunes = 15000

var systemPromptTmpl = template.Must(template.New("system").Parse(strings.TrimSpace(`
Analyze this text with the **primary objective of determining if it is a valid Product Disclosure Statement (PDS)** for {{.Product}} ({{.APIR}}). Identifying the document type is secondary and intended to assist with reasoning if invalid.

**Validation Criteria (Focus on PDS Validity):**
1. **Product Name Match:** Must match {{.Product}} exactly.
2. **APIR Code Match:** Must match {{.APIR}} if present.
3. **Multiple Product Names:** If multiple product names exist, but {{.Product}} is present, it is still valid.
4. **Recency Check:**
   - PDS date after Jan 2023: Score ` + "`100`" + `
   - PDS date before Jan 2023: Deduct ` + "`25`" + `
5. **Document Type Identification (Secondary):** Analyze title and context to determine type (e.g., TMD, Supplementary Prospectus). Return ` + "`Unknown reason`" + ` if unclear.

**Scoring Rules:**
- ` + "`100 | [blank] | PDS date: D Month YYYY`" + ` (Fully Valid)
- ` + "`<score> | <reason> | PDS date:`" + ` (Partial Validity)
- ` + "`0 | <reason>`" + ` (Invalid)

**Examples:**
- ` + "`100 | [blank] | PDS date: 10 April 2023`" + `
- ` + "`75 | Old date (-25) | PDS date: 15 March 2022`" + `
- ` + "`0 | Supplementary Prospectus – Not PDS`" + `
- ` + "`0 | Unknown reason`" + `

**Important:** Primary goal: Validate PDS status. Provide reasons clearly if score <100, and return ` + "`Unknown reason`" + ` if document type is unclear.
`)))

// SystemPrompt renders the scoring rubric for one product.
func SystemPrompt(product, apir string) string {
	if strings.TrimSpace(apir) == "" {
		apir = "no APIR code"
	}
	var b strings.Builder
	_ = systemPromptTmpl.Execute(&b, struct{ Product, APIR string }{product, apir})
	return b.String()
}

// TruncateText keeps at most MaxTextRunes characters of text.
func TruncateText(text string) string {
	s, _ := truncateRunes(text, MaxTextRunes)
	return s
}

// truncateRunes cuts s to at most n runes and reports whether it was cut.
func truncateRunes(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
