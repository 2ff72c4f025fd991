package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// printer writes command output through cobra's configured streams.
type printer struct {
	cmd *cobra.Command
}

func newPrinter(cmd *cobra.Command) printer {
	return printer{cmd: cmd}
}

// printNotices writes successes and info to stdout, warnings and errors to
// stderr.
func (p printer) printNotices(notices []application.Notice) {
	for _, n := range notices {
		switch n.Level {
		case application.NoticeError:
			p.cmd.PrintErrln(dangerStyle.Render("error: " + n.Message))
		case application.NoticeWarning:
			p.cmd.PrintErrln(warningStyle.Render("warning: " + n.Message))
		case application.NoticeInfo:
			fmt.Fprintln(p.cmd.OutOrStdout(), infoStyle.Render(n.Message))
		default:
			fmt.Fprintln(p.cmd.OutOrStdout(), successStyle.Render(n.Message))
		}
	}
}

// printTable renders rows with a header, shrinking to the terminal width when
// stdout is a terminal.
func (p printer) printTable(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	rendered := t.Render()
	if width := terminalWidth(p.cmd.OutOrStdout()); width > 0 && lipgloss.Width(rendered) > width {
		rendered = t.Width(width).Render()
	}
	fmt.Fprintln(p.cmd.OutOrStdout(), rendered)
}

// terminalWidth returns the column count of w, or 0 when w is not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// readSecretLine reads one line without echo from a terminal, or a plain
// line from any other input.
func readSecretLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(cmd.InOrStdin())
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt+" [y/N] ")
	answer, err := readLine(cmd.InOrStdin())
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// levelStyle maps a usage level to its colour.
func levelStyle(l model.UsageLevel) lipgloss.Style {
	switch l {
	case model.UsageLevelCritical:
		return dangerStyle
	case model.UsageLevelWarning:
		return warningStyle
	default:
		return successStyle
	}
}

// usageCells returns the usage and status columns for one key.
func usageCells(k model.Key) (usage, status string) {
	switch {
	case k.Usage != nil:
		u := *k.Usage
		usage = humanize.Comma(u.CharacterCount) + " / " + humanize.Comma(u.CharacterLimit)
		status = levelStyle(u.Level()).Render(fmt.Sprintf("%d%%", int(math.Round(u.Percent()))))
	case k.LastError != "":
		usage = "-"
		status = dangerStyle.Render(k.LastError)
	default:
		usage = "-"
		status = mutedStyle.Render("not checked")
	}
	return usage, status
}
