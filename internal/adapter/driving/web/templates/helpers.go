package templates

import (
	"fmt"

	"github.com/a-h/templ"
)

const importPlaceholder = "Key: ...\nAccount: ...\nPassword: ..."

// barWidth is the inline width of a usage bar fill.
func barWidth(percent float64) templ.SafeCSS {
	return templ.SafeCSS(fmt.Sprintf("width: %.1f%%", percent))
}
