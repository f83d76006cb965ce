package ui

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/app"
	"github.com/Ashfaaq98/case-tracker/internal/backend"
	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Page names
const (
	pageSignIn = "signin"
	pageMain   = "main"
	pageModal  = "modal"

	detailForm        = "form"
	detailPlaceholder = "placeholder"

	placeholderText = "Click a case to edit or add new."
)

// Options configures the terminal UI
type Options struct {
	Theme  string
	Logger *log.Logger
	Now    func() time.Time
}

// UI is the terminal front end over an app.App
type UI struct {
	app    *tview.Application
	core   *app.App
	logger *log.Logger

	pages *tview.Pages

	// Sign-in page
	signInForm *tview.Form

	// Main page
	layout      *tview.Flex
	appTitle    *tview.TextView
	refreshBtn  *tview.Button
	signOutBtn  *tview.Button
	search      *tview.InputField
	loading     *tview.TextView
	caseList    *tview.List
	addBtn      *tview.Button
	detail      *tview.Pages
	placeholder *tview.TextView
	form        *tview.Form
	statusBar   *tview.TextView

	// Rendered state
	mu        sync.Mutex
	visible   []cases.Record
	formSeq   uint64
	page      string
	lastAlert string

	// Theme state
	theme     Theme
	themeName string

	// Runtime
	running      atomic.Bool
	renderQueued atomic.Bool
	modalActive  bool
	lastFocus    tview.Primitive

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewUI builds the UI and its state container over b
func NewUI(ctx context.Context, b backend.Backend, opts Options) *UI {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[UI] ", log.LstdFlags)
	}

	uiCtx, cancel := context.WithCancel(ctx)
	ui := &UI{
		app:    tview.NewApplication(),
		logger: opts.Logger,
		ctx:    uiCtx,
		cancel: cancel,
	}
	ui.core = app.New(b, app.Options{
		Notifier: ui,
		OnChange: ui.onStateChange,
		Logger:   opts.Logger,
		Now:      opts.Now,
	})

	name := opts.Theme
	if name == "" && !detectTrueColor() {
		// hex palettes render poorly on 16-color terminals
		name = ThemeHighContrast
	}
	ui.themeName, ui.theme = themeByName(name)

	ui.setupLayout()
	ui.setupKeybindings()
	ui.applyTheme()
	ui.render(ui.core.State())

	return ui
}

// Core exposes the state container
func (ui *UI) Core() *app.App {
	return ui.core
}

// Start runs the TUI until it is stopped or ctx is cancelled
func (ui *UI) Start(ctx context.Context) error {
	ui.logger.Println("Starting TUI application")
	ui.running.Store(true)

	go func() {
		if err := ui.core.Start(ui.ctx); err != nil {
			ui.logger.Printf("Failed to start session gate: %v", err)
		}
	}()

	// Handle context cancellation for both external and internal contexts
	go func() {
		select {
		case <-ctx.Done():
			ui.logger.Println("External context cancelled, stopping TUI")
		case <-ui.ctx.Done():
			ui.logger.Println("UI context cancelled, stopping TUI")
		}
		ui.cancel()
		ui.app.Stop()
	}()

	err := ui.app.Run()
	ui.running.Store(false)
	ui.cancel()
	ui.core.Close()
	ui.logger.Printf("app.Run() returned with error: %v", err)
	return err
}

// Stop stops the TUI application
func (ui *UI) Stop() {
	ui.logger.Println("Stopping TUI application")
	ui.cancel()
	ui.app.Stop()
}

// Alert shows msg in a modal. It is safe to call from any goroutine.
func (ui *UI) Alert(msg string) {
	ui.mu.Lock()
	ui.lastAlert = msg
	ui.mu.Unlock()
	ui.logger.Printf("Alert: %s", msg)

	if !ui.running.Load() {
		return
	}
	ui.app.QueueUpdateDraw(func() { ui.showModal("Case Tracker", msg) })
}

// onStateChange coalesces state changes into a single queued redraw.
func (ui *UI) onStateChange(s app.State) {
	if !ui.running.Load() {
		ui.render(s)
		return
	}
	if !ui.renderQueued.CompareAndSwap(false, true) {
		return
	}
	ui.app.QueueUpdateDraw(func() {
		ui.renderQueued.Store(false)
		ui.render(ui.core.State())
	})
}

// setupLayout creates both pages
func (ui *UI) setupLayout() {
	ui.signInForm = tview.NewForm()
	ui.signInForm.SetBorder(true)
	ui.signInForm.SetTitle(" Sign in ")
	ui.signInForm.SetTitleAlign(tview.AlignLeft)
	ui.signInForm.AddInputField("Email", "", 40, nil, nil)
	ui.signInForm.AddButton("Sign in (magic link)", func() {
		email := ui.signInForm.GetFormItemByLabel("Email").(*tview.InputField).GetText()
		ui.setStatusDirect("[%s]Requesting login link...[-:-:-]", ui.theme.TagWarning)
		go ui.core.SignIn(ui.ctx, email)
	})
	ui.signInForm.AddInputField("Login link", "", 40, nil, nil)
	ui.signInForm.AddButton("Verify link", func() {
		link := ui.signInForm.GetFormItemByLabel("Login link").(*tview.InputField).GetText()
		go ui.core.Verify(ui.ctx, link)
	})
	ui.signInForm.AddButton("Quit", ui.Stop)

	signInPage := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(ui.signInForm, 11, 0, true).
			AddItem(nil, 0, 1, false), 60, 0, true).
		AddItem(nil, 0, 1, false)

	// Header: title, Refresh, Sign out
	ui.appTitle = tview.NewTextView().SetDynamicColors(true)
	ui.refreshBtn = tview.NewButton("Refresh").SetSelectedFunc(ui.refresh)
	ui.signOutBtn = tview.NewButton("Sign out").SetSelectedFunc(func() {
		ui.setStatusDirect("[%s]Signing out...[-:-:-]", ui.theme.TagWarning)
		go ui.core.SignOut(ui.ctx)
	})
	header := tview.NewFlex().
		AddItem(ui.appTitle, 0, 1, false).
		AddItem(ui.refreshBtn, 11, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.signOutBtn, 12, 0, false)

	// Left pane: search, loading, list, add
	ui.search = tview.NewInputField().
		SetLabel("Search: ").
		SetPlaceholder("Search by case/court/party...")
	ui.search.SetChangedFunc(ui.core.SetQuery)
	ui.search.SetDoneFunc(func(tcell.Key) { ui.app.SetFocus(ui.caseList) })

	ui.loading = tview.NewTextView().SetDynamicColors(true)

	ui.caseList = tview.NewList()
	ui.caseList.SetBorder(true)
	ui.caseList.SetTitle(" All cases ")
	ui.caseList.SetTitleAlign(tview.AlignLeft)
	ui.caseList.ShowSecondaryText(true)
	ui.caseList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		ui.editVisible(index)
	})

	ui.addBtn = tview.NewButton("Add new case").SetSelectedFunc(ui.core.StartNew)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.search, 1, 0, false).
		AddItem(ui.loading, 1, 0, false).
		AddItem(ui.caseList, 0, 1, true).
		AddItem(ui.addBtn, 1, 0, false)

	// Right pane: form or placeholder
	ui.placeholder = tview.NewTextView().SetDynamicColors(true)
	ui.placeholder.SetBorder(true)
	ui.placeholder.SetTitle(" Details ")
	ui.placeholder.SetTitleAlign(tview.AlignLeft)
	ui.placeholder.SetText(placeholderText)

	ui.form = tview.NewForm()
	ui.form.SetBorder(true)
	ui.form.SetTitleAlign(tview.AlignLeft)

	ui.detail = tview.NewPages().
		AddPage(detailPlaceholder, ui.placeholder, true, true).
		AddPage(detailForm, ui.form, true, false)

	body := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(ui.detail, 0, 1, false)

	ui.statusBar = tview.NewTextView().SetDynamicColors(true)

	ui.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	ui.pages = tview.NewPages().
		AddPage(pageSignIn, signInPage, true, true).
		AddPage(pageMain, ui.layout, true, false)
	ui.page = pageSignIn

	ui.app.SetRoot(ui.pages, true)
	ui.app.SetFocus(ui.signInForm)
}

func (ui *UI) setupKeybindings() {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			ui.Stop()
			return nil
		}
		// While a modal or form is active, allow it to handle all keys
		if ui.isDialogActive() || ui.page != pageMain {
			return event
		}

		switch event.Key() {
		case tcell.KeyTab:
			ui.cycleFocus()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				ui.Stop()
				return nil
			case 'r', 'R':
				ui.refresh()
				return nil
			case 'n', 'N':
				ui.core.StartNew()
				return nil
			case '/':
				ui.app.SetFocus(ui.search)
				return nil
			case 't', 'T':
				ui.setTheme(nextTheme(ui.themeName))
				return nil
			}
		}
		return event
	})
}

// isDialogActive returns true when text input or a modal has focus so global shortcuts are bypassed.
func (ui *UI) isDialogActive() bool {
	if ui.modalActive {
		return true
	}
	switch ui.app.GetFocus().(type) {
	case *tview.Form, *tview.Modal, *tview.InputField, *tview.DropDown, *tview.TextArea:
		return true
	}
	return ui.formHasFocus()
}

func (ui *UI) refresh() {
	ui.setStatusDirect("[%s]Refreshing...[-:-:-]", ui.theme.TagAccent)
	go ui.core.Fetch(ui.ctx)
}

func (ui *UI) editVisible(index int) {
	ui.mu.Lock()
	if index < 0 || index >= len(ui.visible) {
		ui.mu.Unlock()
		return
	}
	rec := ui.visible[index]
	ui.mu.Unlock()
	ui.core.Edit(rec)
}

// render brings every widget in line with s. Call it on the UI goroutine.
func (ui *UI) render(s app.State) {
	page := pageSignIn
	if s.SignedIn() {
		page = pageMain
	}
	if page != ui.page {
		ui.page = page
		ui.pages.SwitchToPage(page)
		if ui.modalActive {
			ui.pages.ShowPage(pageModal)
		}
		if page == pageMain {
			ui.focus(ui.caseList)
		} else {
			ui.focus(ui.signInForm)
		}
	}

	if s.Identity != nil {
		ui.appTitle.SetText(fmt.Sprintf(" [%s::b]Case Tracker[-::-] [%s]%s[-]", ui.theme.TagAccent, ui.theme.TagMuted, s.Identity.Email))
	} else {
		ui.appTitle.SetText(fmt.Sprintf(" [%s::b]Case Tracker[-::-]", ui.theme.TagAccent))
	}

	if s.Loading {
		ui.loading.SetText(fmt.Sprintf("[%s]Loading...[-]", ui.theme.TagWarning))
	} else {
		ui.loading.SetText("")
	}

	if ui.search.GetText() != s.Query {
		ui.search.SetText(s.Query)
	}
	ui.renderList(s.Visible())
	ui.renderDetail(s)

	hint := fmt.Sprintf("%d of %d cases", len(ui.visible), len(s.Cases))
	if s.Saving {
		hint = "Saving..."
	}
	ui.setStatusDirect("%s", hint)
}

func (ui *UI) renderList(visible []cases.Record) {
	current := ui.caseList.GetCurrentItem()
	ui.mu.Lock()
	ui.visible = visible
	ui.mu.Unlock()

	ui.caseList.Clear()
	for _, r := range visible {
		ui.caseList.AddItem(caseRowMain(r), caseRowSecondary(r), 0, nil)
	}
	if n := ui.caseList.GetItemCount(); n > 0 {
		if current >= n {
			current = n - 1
		}
		ui.caseList.SetCurrentItem(current)
	}
}

func (ui *UI) renderDetail(s app.State) {
	if s.Draft == nil {
		if ui.formSeq != 0 {
			// returning focus from a closed form
			if ui.app.GetFocus() == ui.form || ui.formHasFocus() {
				ui.focus(ui.caseList)
			}
		}
		ui.formSeq = 0
		ui.detail.SwitchToPage(detailPlaceholder)
		return
	}
	if ui.formSeq != s.DraftSeq {
		ui.formSeq = s.DraftSeq
		ui.buildForm(*s.Draft)
		ui.detail.SwitchToPage(detailForm)
		ui.focus(ui.form)
	}
}

func (ui *UI) formHasFocus() bool {
	focused := ui.app.GetFocus()
	for i := 0; i < ui.form.GetFormItemCount(); i++ {
		if ui.form.GetFormItem(i) == focused {
			return true
		}
	}
	for i := 0; i < ui.form.GetButtonCount(); i++ {
		if ui.form.GetButton(i) == focused {
			return true
		}
	}
	return false
}

func (ui *UI) focus(p tview.Primitive) {
	if ui.modalActive {
		ui.lastFocus = p
		return
	}
	ui.app.SetFocus(p)
	ui.highlightFocus(p)
}

// cycleFocus moves focus search -> list -> form
func (ui *UI) cycleFocus() {
	order := []tview.Primitive{ui.search, ui.caseList, ui.addBtn}
	if ui.formSeq != 0 {
		order = append(order, ui.form)
	}
	current := ui.app.GetFocus()
	next := order[0]
	for i, p := range order {
		if p == current {
			next = order[(i+1)%len(order)]
			break
		}
	}
	ui.focus(next)
}

func (ui *UI) highlightFocus(focused tview.Primitive) {
	ui.caseList.SetBorderColor(ui.theme.Border)
	ui.form.SetBorderColor(ui.theme.Border)
	ui.placeholder.SetBorderColor(ui.theme.Border)
	switch focused {
	case ui.caseList:
		ui.caseList.SetBorderColor(ui.theme.FocusBorder)
	case ui.form:
		ui.form.SetBorderColor(ui.theme.FocusBorder)
	}
}

// showModal displays a blocking message over the current page
func (ui *UI) showModal(title, text string) {
	modal := tview.NewModal()
	modal.SetText(text)
	modal.SetTitle(fmt.Sprintf(" %s ", title))
	modal.AddButtons([]string{"OK"})

	// Set modal colors to match theme
	modal.SetBackgroundColor(ui.theme.Surface)
	modal.SetTextColor(ui.theme.TextPrimary)
	modal.SetBorderColor(ui.theme.FocusBorder)
	modal.SetButtonBackgroundColor(ui.theme.SelectionBg)
	modal.SetButtonTextColor(ui.theme.SelectionFg)

	modal.SetDoneFunc(func(int, string) { ui.closeModal() })
	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			ui.closeModal()
			return nil
		}
		return event
	})

	if !ui.modalActive {
		ui.lastFocus = ui.app.GetFocus()
	}
	ui.modalActive = true
	ui.pages.AddPage(pageModal, modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) closeModal() {
	ui.modalActive = false
	ui.pages.RemovePage(pageModal)
	target := ui.lastFocus
	if target == nil {
		target = ui.caseList
	}
	ui.app.SetFocus(target)
	ui.highlightFocus(target)
}

// setStatusDirect updates the status bar immediately without QueueUpdate/QueueUpdateDraw.
// Use this only from the UI goroutine.
func (ui *UI) setStatusDirect(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05")

	statusText := fmt.Sprintf("[%s]%s[-] [%s]|[-] %s [%s]|[-] %s",
		ui.theme.TagMuted, timestamp,
		ui.theme.TagTextPrimary,
		message,
		ui.theme.TagMuted,
		ui.shortcutHints())
	ui.statusBar.SetText(statusText)
}

func (ui *UI) shortcutHints() string {
	if ui.page != pageMain {
		return "Tab:next field  Enter:activate  Ctrl+C:quit"
	}
	keys := []string{"r:refresh", "n:new", "/:search", "Tab:focus", "t:theme", "q:quit"}
	if ui.formSeq != 0 {
		keys = append(keys, "Esc:cancel edit")
	}
	return fmt.Sprintf("[%s]%s[-]", ui.theme.TagMuted, strings.Join(keys, "  "))
}

func (ui *UI) applyTheme() {
	ui.logger.Printf("Applying theme: %s", ui.themeName)

	tview.Styles.PrimitiveBackgroundColor = ui.theme.Surface
	tview.Styles.ContrastBackgroundColor = ui.theme.FieldBg
	tview.Styles.PrimaryTextColor = ui.theme.TextPrimary
	tview.Styles.SecondaryTextColor = ui.theme.Header
	tview.Styles.BorderColor = ui.theme.Border
	tview.Styles.TitleColor = ui.theme.Header

	ui.caseList.SetMainTextColor(ui.theme.TextPrimary)
	ui.caseList.SetSecondaryTextColor(ui.theme.TextMuted)
	ui.caseList.SetSelectedTextColor(ui.theme.SelectionFg)
	ui.caseList.SetSelectedBackgroundColor(ui.theme.SelectionBg)
	ui.caseList.SetBackgroundColor(ui.theme.Surface)

	for _, b := range []*tview.Button{ui.refreshBtn, ui.signOutBtn, ui.addBtn} {
		b.SetBackgroundColor(ui.theme.SelectionBg)
		b.SetLabelColor(ui.theme.SelectionFg)
		b.SetBackgroundColorActivated(ui.theme.Accent)
		b.SetLabelColorActivated(ui.theme.Bg)
	}

	ui.search.SetFieldBackgroundColor(ui.theme.FieldBg)
	ui.search.SetFieldTextColor(ui.theme.TextPrimary)
	ui.search.SetLabelColor(ui.theme.Header)
	ui.search.SetBackgroundColor(ui.theme.Surface)
	ui.search.SetPlaceholderTextColor(ui.theme.TextMuted)

	for _, f := range []*tview.Form{ui.signInForm, ui.form} {
		styleForm(f, ui.theme)
	}

	for _, tv := range []*tview.TextView{ui.appTitle, ui.loading, ui.placeholder, ui.statusBar} {
		tv.SetBackgroundColor(ui.theme.Surface)
		tv.SetTextColor(ui.theme.TextPrimary)
	}
	ui.placeholder.SetTextColor(ui.theme.TextMuted)

	ui.highlightFocus(ui.app.GetFocus())
}

func styleForm(f *tview.Form, t Theme) {
	f.SetBackgroundColor(t.Surface)
	f.SetFieldBackgroundColor(t.FieldBg)
	f.SetFieldTextColor(t.TextPrimary)
	f.SetLabelColor(t.Header)
	f.SetButtonBackgroundColor(t.SelectionBg)
	f.SetButtonTextColor(t.SelectionFg)
}

// setTheme applies a named theme
func (ui *UI) setTheme(name string) {
	ui.themeName, ui.theme = themeByName(name)
	ui.applyTheme()
	ui.render(ui.core.State())
	ui.setStatusDirect("[%s]Theme: %s[-:-:-]", ui.theme.TagAccent, ui.themeName)
}

// LastAlert returns the most recent alert text
func (ui *UI) LastAlert() string {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.lastAlert
}
