package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

var (
	listJSON bool

	exportOutput string

	editSecret         string
	editEmail          string
	editPassword       string
	editPromptPassword bool

	clearYes bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys and their last known usage",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import keys from pasted text",
	Long: `Reads text containing "Key:", "Account:" and "Password:" lines from a file,
or from stdin when no file or "-" is given, and adds every key not already stored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export keys in the import text format",
	Long: `Prints every stored key in the format accepted by import. With --output the
text is written to a file instead; a directory receives a dated file name.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var checkCmd = &cobra.Command{
	Use:   "check [key]",
	Short: "Check one key's character usage",
	Long:  `Queries the relay for one key, addressed by ID or by its 1-based position in list.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var editCmd = &cobra.Command{
	Use:   "edit [key]",
	Short: "Change a key's secret or account details",
	Long:  `Replaces the given fields of one key and clears its stored usage. Fields not given keep their value.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Remove one key",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored key",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output keys as JSON")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file or directory")

	editCmd.Flags().StringVar(&editSecret, "secret", "", "new API key")
	editCmd.Flags().StringVar(&editEmail, "email", "", "account email (empty to remove)")
	editCmd.Flags().StringVar(&editPassword, "password", "", "account password (empty to remove)")
	editCmd.Flags().BoolVar(&editPromptPassword, "prompt-password", false, "read the password from the terminal without echo")
	editCmd.MarkFlagsMutuallyExclusive("password", "prompt-password")

	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")

	rootCmd.AddCommand(listCmd, importCmd, exportCmd, checkCmd, editCmd, deleteCmd, clearCmd)
}

// keyJSON is the list --json shape. Secrets are masked.
type keyJSON struct {
	Index int          `json:"index"`
	ID    string       `json:"id"`
	Key   string       `json:"key"`
	Email string       `json:"email,omitempty"`
	Usage *model.Usage `json:"usage,omitempty"`
	Error string       `json:"error,omitempty"`
}

func runList(cmd *cobra.Command, _ []string) error {
	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		keys := c.keys.Snapshot().Keys

		if listJSON {
			out := make([]keyJSON, 0, len(keys))
			for i, k := range keys {
				out = append(out, keyJSON{
					Index: i + 1,
					ID:    k.ID,
					Key:   k.MaskedSecret(),
					Email: k.Email,
					Usage: k.Usage,
					Error: k.LastError,
				})
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal keys: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(keys) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No keys stored. Add some with: keyquota import")
			return nil
		}

		printKeys(p, keys)

		if used, limit, ok := keys.Totals(); ok {
			total := model.Usage{CharacterCount: used, CharacterLimit: limit}
			usage, status := usageCells(model.Key{Usage: &total})
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %s (%s)\n", usage, status)
		}
		return nil
	})
}

func printKeys(p printer, keys model.Collection) {
	rows := make([][]string, 0, len(keys))
	for i, k := range keys {
		account := k.Email
		if account == "" {
			account = mutedStyle.Render("no account info")
		}
		usage, status := usageCells(k)
		rows = append(rows, []string{strconv.Itoa(i + 1), k.ID, account, k.MaskedSecret(), usage, status})
	}
	p.printTable([]string{"#", "ID", "Account", "Key", "Used / Limit", "Status"}, rows)
}

func runImport(cmd *cobra.Command, args []string) error {
	text, err := readImportText(cmd, args)
	if err != nil {
		return err
	}

	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		report, res := c.keys.Import(cmd.Context(), text)
		p.printNotices(res.Notices())

		switch report.Outcome {
		case application.ImportEmptyInput, application.ImportNoKeyFound:
			return errors.New("nothing imported")
		}
		if report.Duplicates > 0 || len(report.Rejected) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d duplicate(s) and %d invalid key(s)\n", report.Duplicates, len(report.Rejected))
		}
		return nil
	})
}

func readImportText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		text, err := c.keys.Export()
		if err != nil {
			return err
		}

		if exportOutput == "" {
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}

		path := exportOutput
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, application.ExportFilename(time.Now()))
		}
		if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d key(s) to %s\n", len(c.keys.Snapshot().Keys), path)
		return nil
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		id, err := resolveKey(c.keys.Snapshot().Keys, args[0])
		if err != nil {
			return err
		}

		res, err := c.keys.Check(cmd.Context(), id)
		p.printNotices(res.Notices())
		if err != nil {
			return err
		}

		k, ok := c.keys.Snapshot().Keys.Find(id)
		if !ok {
			return nil
		}
		printKeys(p, model.Collection{*k})
		if k.LastError != "" {
			return fmt.Errorf("usage check failed: %s", k.LastError)
		}
		return nil
	})
}

func runEdit(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("secret") && !flags.Changed("email") && !flags.Changed("password") && !editPromptPassword {
		return errors.New("nothing to change: pass --secret, --email, --password or --prompt-password")
	}

	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		keys := c.keys.Snapshot().Keys
		id, err := resolveKey(keys, args[0])
		if err != nil {
			return err
		}
		current, _ := keys.Find(id)

		in := application.EditInput{
			ID:       id,
			Secret:   current.Secret,
			Email:    current.Email,
			Password: current.Password,
		}
		if flags.Changed("secret") {
			in.Secret = editSecret
		}
		if flags.Changed("email") {
			in.Email = editEmail
		}
		if flags.Changed("password") {
			in.Password = editPassword
		}
		if editPromptPassword {
			in.Password, err = readSecretLine(cmd, "Password: ")
			if err != nil {
				return err
			}
		}

		res, err := c.keys.Edit(cmd.Context(), in)
		if err != nil {
			return err
		}
		p.printNotices(res.Notices())
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		id, err := resolveKey(c.keys.Snapshot().Keys, args[0])
		if err != nil {
			return err
		}

		res, err := c.keys.Delete(cmd.Context(), id)
		if err != nil {
			return err
		}
		p.printNotices(res.Notices())
		return nil
	})
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !clearYes {
		ok, err := confirm(cmd, "Remove every stored key?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
	}

	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		p.printNotices(c.keys.Clear(cmd.Context()).Notices())
		return nil
	})
}

// resolveKey accepts a key ID or a 1-based position in the collection.
func resolveKey(keys model.Collection, ref string) (string, error) {
	if _, ok := keys.Find(ref); ok {
		return ref, nil
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(keys) {
		return keys[n-1].ID, nil
	}
	return "", fmt.Errorf("%q: %w", ref, application.ErrKeyNotFound)
}
