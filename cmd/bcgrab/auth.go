package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bcgrab/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Barchart credentials",
	Long: `Manage stored Barchart credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (BCGRAB_USERNAME / BCGRAB_PASSWORD)

Never share your credentials or config files!`,
}

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store Barchart credentials securely",
	Long: `Store Barchart credentials in the system keychain or an encrypted file.

You will be prompted for the username (if not provided) and the password.
The password is read without echo.`,
	Example: `  # Interactive login
  bcgrab auth login

  # Login with username
  bcgrab auth login trader@example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogin,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	store, err := auth.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return auth.ErrInvalidCredentials
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	account := &auth.Account{Username: username, Password: string(password)}
	if err := store.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	fmt.Printf("Stored credentials for %s\n", username)
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	store, err := auth.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	if err := store.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	fmt.Printf("Removed credentials for %s\n", args[0])
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	store, err := auth.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	names, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No stored accounts")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
