package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Ashfaaq98/case-tracker/internal/backend"
	"github.com/Ashfaaq98/case-tracker/internal/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var forceTUI bool

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the terminal UI",
	Long: `Start the Case Tracker terminal UI.

The TUI shows a sign-in page until a session exists, then the case list
with search, and a form for adding or editing a case.

Keys:
  r  refresh the list      n  add a new case
  /  search                t  cycle theme
  q  quit                  Esc  cancel the open form

Examples:
  # Start with the local backend
  case-tracker tui

  # Start against a Supabase project
  CASE_TRACKER_SUPABASE_ANON_KEY=... case-tracker tui --supabase-url https://xyz.supabase.co`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	rootCmd.PersistentFlags().BoolVar(&forceTUI, "force-tui", false, "Force TUI mode even in unsupported terminals")
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	config := GetConfig()

	// Silent TUI mode: logs go to file, errors still visible on terminal
	logFile, logPath := setupFileLogger()
	var logger *log.Logger
	if logFile != nil {
		defer logFile.Close()
		logger = log.New(io.MultiWriter(logFile, &errorFilterWriter{os.Stderr}), "[tui] ", log.LstdFlags)
	} else {
		logger = log.New(os.Stderr, "[tui] ", log.LstdFlags)
	}

	logger.Println("Starting Case Tracker")
	logger.Printf("Terminal info: %s", getTerminalInfo())

	if !forceTUI && !canInitializeTUI() {
		// Check if we can fix this with pseudo-TTY
		if needsPseudoTTY() {
			logger.Println("No TTY available, using script command for pseudo-TTY...")
			return runWithPseudoTTY()
		}
		fmt.Fprintln(os.Stderr, "TUI cannot be initialized in this terminal environment.")
		fmt.Fprintln(os.Stderr, "CLI alternatives:")
		fmt.Fprintln(os.Stderr, "  case-tracker login <email>")
		fmt.Fprintln(os.Stderr, "  case-tracker verify <link>")
		fmt.Fprintln(os.Stderr, "  case-tracker list")
		return errors.New("failed to initialize terminal")
	}

	// Backend and UI log only to the file while the screen is owned by tview
	var uiLogger *log.Logger
	if logFile != nil {
		uiLogger = log.New(logFile, "[UI] ", log.LstdFlags)
		uiLogger.Printf("UI logger initialized (path=%s)", logPath)
		_ = logFile.Sync()
	} else {
		uiLogger = log.New(io.Discard, "[UI] ", log.LstdFlags)
	}
	backendLogger := log.New(uiLogger.Writer(), backendPrefix(config), log.LstdFlags)

	cfg := config.Backend()
	cfg.DBPath = resolvePathRelativeToBase(getWorkingDir(), cfg.DBPath)
	b, err := backend.New(cfg, backendLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}
	defer b.Close()

	tui := ui.NewUI(ctx, b, ui.Options{
		Theme:  config.UI.Theme,
		Logger: uiLogger,
	})
	if err := tui.Start(ctx); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Println("Case Tracker stopped")
	return nil
}

// canInitializeTUI tests if tcell can actually be initialized
func canInitializeTUI() bool {
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}

	err = screen.Init()
	if err != nil {
		return false
	}

	// Clean up immediately
	screen.Fini()
	return true
}

// getTerminalInfo returns detailed terminal information
func getTerminalInfo() string {
	var info []string

	term := os.Getenv("TERM")
	if term == "" {
		info = append(info, "TERM=<not set>")
	} else {
		info = append(info, fmt.Sprintf("TERM=%s", term))
	}

	if termProgram := os.Getenv("TERM_PROGRAM"); termProgram != "" {
		info = append(info, fmt.Sprintf("TERM_PROGRAM=%s", termProgram))
	}

	if width, height := getTerminalSize(); width > 0 && height > 0 {
		info = append(info, fmt.Sprintf("Size=%dx%d", width, height))
	}

	if isTerminal() {
		info = append(info, "TTY=yes")
	} else {
		info = append(info, "TTY=no")
	}

	if supportsColors() {
		info = append(info, "Colors=yes")
	} else {
		info = append(info, "Colors=no")
	}

	return strings.Join(info, ", ")
}

// getExecutableDir returns the directory of the running executable.
// Falls back to current directory on error.
func getExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// getWorkingDir returns the current working directory.
// Falls back to executable directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	return getExecutableDir()
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths and the in-memory database are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// getTerminalSize returns terminal dimensions, preferring COLUMNS/LINES
func getTerminalSize() (int, int) {
	if cols, rows := os.Getenv("COLUMNS"), os.Getenv("LINES"); cols != "" && rows != "" {
		c, errC := strconv.Atoi(cols)
		r, errR := strconv.Atoi(rows)
		if errC == nil && errR == nil {
			return c, r
		}
	}
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0
	}
	return width, height
}

// supportsColors checks if terminal supports colors
func supportsColors() bool {
	term := strings.ToLower(os.Getenv("TERM"))

	for _, colorTerm := range []string{"color", "256", "truecolor", "24bit"} {
		if strings.Contains(term, colorTerm) {
			return true
		}
	}

	if os.Getenv("COLORTERM") != "" {
		return true
	}

	// Known color-supporting terminals
	for _, supported := range []string{"xterm", "screen", "tmux", "linux", "ansi"} {
		if strings.Contains(term, supported) {
			return true
		}
	}

	return false
}

// needsPseudoTTY checks if we need to use script command for pseudo-TTY
func needsPseudoTTY() bool {
	// Try to actually open /dev/tty (not just check if it exists)
	if file, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		file.Close()
		return false
	}
	return true
}

// runWithPseudoTTY re-executes the command using script for pseudo-TTY
func runWithPseudoTTY() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmdArgs := append([]string{}, os.Args[1:]...)
	if !containsArg(cmdArgs, "--force-tui") {
		cmdArgs = append(cmdArgs, "--force-tui")
	}

	quoted := make([]string, len(cmdArgs))
	for i, arg := range cmdArgs {
		quoted[i] = fmt.Sprintf("%q", arg)
	}
	fullCmd := fmt.Sprintf("TERM=%s %q %s", os.Getenv("TERM"), executable, strings.Join(quoted, " "))

	scriptCmd := exec.Command("script", "-qec", fullCmd, "/dev/null")
	scriptCmd.Stdin = os.Stdin
	scriptCmd.Stdout = os.Stdout
	scriptCmd.Stderr = os.Stderr
	scriptCmd.Env = os.Environ()

	return scriptCmd.Run()
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

// setupFileLogger creates a log file for TUI mode
func setupFileLogger() (*os.File, string) {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// If we can't create logs directory, we'll fall back to stderr
		return nil, ""
	}

	logPath := filepath.Join(logDir, "case-tracker.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, ""
	}

	return logFile, logPath
}

// errorFilterWriter only writes error messages to the underlying writer
type errorFilterWriter struct {
	writer io.Writer
}

func (w *errorFilterWriter) Write(p []byte) (n int, err error) {
	lc := strings.ToLower(string(p))
	if strings.Contains(lc, "error") ||
		strings.Contains(lc, "failed") ||
		strings.Contains(lc, "panic") {
		return w.writer.Write(p)
	}
	// Suppress non-error logs
	return len(p), nil
}
