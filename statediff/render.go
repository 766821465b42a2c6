package statediff

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
)

// Render formats the report as human readable text. Colour uses ANSI escapes
// and is meant for terminals.
func (r *Report) Render(colour bool) string {
	paint := func(c text.Color, s string) string {
		if !colour {
			return s
		}
		return c.Sprint(s)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", paint(text.Bold, "State diff for"), r.TestID)
	fmt.Fprintf(&b, "  expected root:  %s\n", r.ExpectedRoot.Hex())
	fmt.Fprintf(&b, "  backend root:   %s\n", r.BackendRoot.Hex())
	refLine := r.ReferenceRoot.Hex()
	if r.ReferenceRoot == r.ExpectedRoot {
		refLine = paint(text.FgGreen, refLine)
	}
	fmt.Fprintf(&b, "  reference root: %s\n", refLine)

	switch {
	case r.Accounts == nil:
		b.WriteString("  backend reported no accounts, account diff skipped\n")
		return b.String()
	case r.Accounts.Empty():
		b.WriteString("  accounts match the reference\n")
		return b.String()
	}

	for _, addr := range r.Accounts.OnlyInBackend {
		fmt.Fprintf(&b, "  %s %s\n", paint(text.FgRed, "+ only in backend:  "), addr.Hex())
	}
	for _, addr := range r.Accounts.OnlyInReference {
		fmt.Fprintf(&b, "  %s %s\n", paint(text.FgYellow, "- only in reference:"), addr.Hex())
	}
	for _, acc := range r.Accounts.Changed {
		fmt.Fprintf(&b, "  %s %s\n", paint(text.FgCyan, "~ account"), acc.Address.Hex())
		for _, f := range acc.Fields {
			name := f.Field
			if f.Slot != nil {
				name = fmt.Sprintf("%s[%s]", f.Field, f.Slot.Hex())
			}
			fmt.Fprintf(&b, "      %s: backend %s, reference %s\n",
				name, paint(text.FgRed, f.Backend), paint(text.FgGreen, f.Reference))
		}
	}
	return b.String()
}
