package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lending/internal/database"
	"lending/internal/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return database.Migrate(a.db)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Audit book copy counters against copy rows and repair drift",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.svc.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// ─── Accounts ─────────────────────────────────────────────────────────────────

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage login accounts",
}

var (
	bootstrapName     string
	bootstrapEmail    string
	bootstrapPhone    string
	bootstrapUsername string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create a librarian together with its login account",
	Long: `bootstrap creates a librarian record and an account for it without an existing
librarian identity. Use it to create the first librarian; everything else can then be
done through the API. The password is read from the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bootstrapName == "" || bootstrapEmail == "" || bootstrapUsername == "" {
			return fmt.Errorf("--name, --email and --username are required")
		}
		password, err := readPassword(fmt.Sprintf("Password for %s: ", bootstrapUsername))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		confirm, err := readPassword("Repeat password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		librarian, account, err := a.svc.BootstrapLibrarian(cmd.Context(), services.CreateLibrarianRequest{
			Name:  bootstrapName,
			Email: bootstrapEmail,
			Phone: bootstrapPhone,
		}, bootstrapUsername, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created librarian %d (%s) with account %q\n", librarian.ID, librarian.Name, account.Username)
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapName, "name", "", "librarian name")
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "librarian email address")
	bootstrapCmd.Flags().StringVar(&bootstrapPhone, "phone", "", "librarian phone number")
	bootstrapCmd.Flags().StringVar(&bootstrapUsername, "username", "", "login username")
	accountsCmd.AddCommand(bootstrapCmd)
}

// readPassword reads a password from the terminal without echo.
func readPassword(prompt string) (string, error) {
	return promptPassword(os.Stderr, prompt, func() ([]byte, error) {
		return term.ReadPassword(int(syscall.Stdin))
	})
}

// promptPassword keeps the password exactly as typed; edge spaces are part of it.
func promptPassword(w io.Writer, prompt string, read func() ([]byte, error)) (string, error) {
	fmt.Fprint(w, prompt)
	bytePassword, err := read()
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(bytePassword), nil
}
