package application

import (
	"strings"
	"time"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

// Export renders keys in the plain-text block format accepted by ParseImport:
// a key line, optional account and password lines, then a blank line.
func Export(keys model.Collection) string {
	var b strings.Builder
	for _, k := range keys {
		b.WriteString("Key: ")
		b.WriteString(k.Secret)
		b.WriteByte('\n')
		if k.Email != "" {
			b.WriteString("Account: ")
			b.WriteString(k.Email)
			b.WriteByte('\n')
		}
		if k.Password != "" {
			b.WriteString("Password: ")
			b.WriteString(k.Password)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ExportFilename returns the dated download name for an export taken at now.
func ExportFilename(now time.Time) string {
	return "deepl_keys_export_" + now.Format(time.DateOnly) + ".txt"
}
