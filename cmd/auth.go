package cmd

import (
	"context"
	"fmt"

	"github.com/Ashfaaq98/case-tracker/internal/app"
	"github.com/spf13/cobra"
)

// loginCmd requests a magic link
var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Request a one-time login link",
	Long: `Request a one-time login link for the given email address.

With the local backend the message is written to the outbox directory
(local.outbox_dir) instead of being mailed. Complete sign-in with
'case-tracker verify <link>' or from the TUI sign-in page.

The email address is asked for when it is not given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// verifyCmd completes a magic link
var verifyCmd = &cobra.Command{
	Use:   "verify <token|link>",
	Short: "Complete sign-in from a login link",
	Long: `Complete sign-in from the login link (or its bare token) and keep the
session in session.file so the TUI and other commands pick it up.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

// logoutCmd ends the session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE:  runLogout,
}

// whoamiCmd prints the signed-in identity
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runLogin(cmd *cobra.Command, args []string) error {
	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		var err error
		if email, err = promptLine(cmd, "Email: "); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}

	b, err := openBackend(GetConfig())
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.RequestMagicLink(commandContext(cmd), email); err != nil {
		return fmt.Errorf("failed to request login link: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), app.LinkSentMessage)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	b, err := openBackend(GetConfig())
	if err != nil {
		return err
	}
	defer b.Close()

	id, err := b.VerifyMagicLink(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to verify login link: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	b, err := openBackend(GetConfig())
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.SignOut(commandContext(cmd)); err != nil {
		// the local session is gone either way
		return fmt.Errorf("failed to sign out: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	b, err := openBackend(GetConfig())
	if err != nil {
		return err
	}
	defer b.Close()

	id, err := b.GetCurrentSession(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if id == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.Email, id.UserID)
	return nil
}
