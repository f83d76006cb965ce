package ui

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	dateFieldWidth = 10
	textFieldWidth = 40
	notesHeight    = 4
)

var activeOptions = []string{"Y", "N"}

// caseRowMain is the list's primary line: case number and court.
func caseRowMain(r cases.Record) string {
	return fmt.Sprintf("%s — %s", orDash(r.CaseNumber), orDash(r.CourtDetails))
}

// caseRowSecondary shows our party and the next hearing date.
func caseRowSecondary(r cases.Record) string {
	return fmt.Sprintf("%s | Next: %s", orDash(r.OurParty), orDash(r.NextDate))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return tview.Escape(s)
}

// acceptDate limits date inputs to digits and dashes in YYYY-MM-DD length.
func acceptDate(text string, last rune) bool {
	if len(text) > dateFieldWidth {
		return false
	}
	return unicode.IsDigit(last) || last == '-'
}

func formTitle(r cases.Record) string {
	if r.HasID() {
		return fmt.Sprintf(" Edit case %s ", tview.Escape(r.CaseNumber))
	}
	return " New case "
}

// buildForm replaces the form's items with fields bound to the draft.
func (ui *UI) buildForm(draft cases.Record) {
	ui.form.Clear(true)
	ui.form.SetTitle(formTitle(draft))

	initial := 1
	if draft.Active {
		initial = 0
	}
	ui.form.AddDropDown("Active", activeOptions, initial, func(option string, _ int) {
		ui.core.SetDraftActive(cases.ParseActive(option))
	})

	for _, f := range cases.Fields {
		onChange := func(text string) { ui.core.SetDraftField(f, text) }
		switch {
		case f.IsDate():
			field := tview.NewInputField().
				SetLabel(f.Label()).
				SetText(draft.Get(f)).
				SetFieldWidth(dateFieldWidth).
				SetPlaceholder("YYYY-MM-DD").
				SetAcceptanceFunc(acceptDate).
				SetChangedFunc(onChange)
			ui.form.AddFormItem(field)
		case f == cases.FieldNotes:
			ui.form.AddTextArea(f.Label(), draft.Get(f), textFieldWidth, notesHeight, 0, onChange)
		default:
			ui.form.AddInputField(f.Label(), draft.Get(f), textFieldWidth, nil, onChange)
		}
	}

	ui.form.AddButton("Save", func() {
		ui.setStatusDirect("[%s]Saving...[-:-:-]", ui.theme.TagWarning)
		go ui.core.Save(ui.ctx)
	})
	ui.form.AddButton("Cancel", ui.core.Cancel)
	ui.form.SetCancelFunc(ui.core.Cancel)
	ui.form.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlS {
			go ui.core.Save(ui.ctx)
			return nil
		}
		return event
	})

	styleForm(ui.form, ui.theme)
}
