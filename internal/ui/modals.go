package ui

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundmix/internal/config"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/rivo/tview"
)

const maxErrorLength = 100

// errorHints turn common transport and library failures into short messages.
// The first matching needle wins.
var errorHints = []struct {
	needles []string
	message string
}{
	{[]string{"no such host"}, "Unable to connect to the sound library.\nCheck your internet connection."},
	{[]string{"connection refused"}, "Connection refused by the library server."},
	{[]string{"timeout", "deadline exceeded"}, "Connection timed out.\nCheck your internet connection."},
	{[]string{"network is unreachable", "network read error"}, "Network is unreachable."},
	{[]string{"status 403"}, "This sound needs premium segments (403)."},
	{[]string{"status 404"}, "Sound not found in the library (404)."},
	{[]string{"no segments"}, "No playable segments for this sound.\nTry enabling premium segments."},
}

func friendlyErrorMessage(errStr string) string {
	for _, hint := range errorHints {
		for _, needle := range hint.needles {
			if strings.Contains(errStr, needle) {
				return hint.message
			}
		}
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		errStr = errStr[:idx]
	}
	if len(errStr) > maxErrorLength {
		errStr = errStr[:maxErrorLength] + "..."
	}
	return errStr
}

// keyBinding is one row of the help screen.
type keyBinding struct {
	keys   string
	action string
}

var helpSections = []struct {
	title    string
	bindings []keyBinding
}{
	{"MIX", []keyBinding{
		{"Enter", "Play / stop selected sound"},
		{"Space", "Pause / resume the mix"},
		{"s", "Stop all sounds"},
	}},
	{"LEVELS", []keyBinding{
		{"← →", "Selected sound level"},
		{"- +", "Master volume"},
		{"m", "Mute / unmute"},
	}},
	{"PRESETS", []keyBinding{
		{"p", "Choose a preset"},
		{"w", "Save the mix as a preset"},
	}},
	{"OTHER", []keyBinding{
		{"?", "This help"},
		{"q Esc", "Quit"},
	}},
}

func (ui *UI) helpText() string {
	keyColor := ui.colors.helpHotkey.String()

	var b strings.Builder
	for _, section := range helpSections {
		fmt.Fprintf(&b, "[%s::b]%s[-::-]\n", keyColor, section.title)
		for _, kb := range section.bindings {
			fmt.Fprintf(&b, "  [%s]%-6s[-] %s\n", keyColor, kb.keys, kb.action)
		}
		b.WriteString("\n")
	}

	configPath, _ := config.GetConfigPath()
	fmt.Fprintf(&b, "[gray]%s v%s\nLibrary: %s\nConfig:  %s[-]",
		config.AppName, config.AppVersion, ui.config.LibraryURL, configPath)
	return b.String()
}

func (ui *UI) showHelpModal() {
	ui.showInfoModal("Help", ui.helpText())
}

// showInfoModal shows a read-only message that any key dismisses.
func (ui *UI) showInfoModal(title, message string) {
	view := ui.modalText(message, tview.AlignLeft)
	view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		ui.closeModal()
		return nil
	})

	height := min(strings.Count(message, "\n")+5, 38)
	ui.showModal(title, view, 52, height)
}

func (ui *UI) showError(err error) {
	var retry func()
	var loadErr *sound.LoadError
	if errors.As(err, &loadErr) {
		soundID := loadErr.SoundID
		retry = func() { ui.playSound(soundID) }
	}
	ui.showPlaybackErrorModal(friendlyErrorMessage(err.Error()), retry)
}

// showPlaybackErrorModal reports a failed sound. R retries when onRetry is set.
func (ui *UI) showPlaybackErrorModal(message string, onRetry func()) {
	if ui.pages == nil {
		return
	}

	hint := "[::d]Esc to dismiss[::-]"
	if onRetry != nil {
		hint = "[::d]R to retry  •  Esc to dismiss[::-]"
	}
	view := ui.modalText(message+"\n\n"+hint, tview.AlignCenter)
	view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEscape || event.Key() == tcell.KeyEnter:
			ui.closeModal()
			return nil
		case onRetry != nil && isRune(event, 'r'):
			ui.closeModal()
			onRetry()
			return nil
		}
		return event
	})

	height := min(strings.Count(message, "\n")+7, 15)
	ui.showModal("Playback error", view, 50, height)
}

// isRune matches a letter key in either case.
func isRune(event *tcell.EventKey, r rune) bool {
	return event.Key() == tcell.KeyRune && unicode.ToLower(event.Rune()) == r
}

func (ui *UI) modalText(text string, align int) *tview.TextView {
	view := tview.NewTextView().
		SetTextAlign(align).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText(text)
	view.SetTextColor(ui.colors.foreground)
	view.SetBackgroundColor(ui.colors.modalBackground)
	return view
}

func (ui *UI) closeModal() {
	ui.pages.RemovePage("modal")
	ui.app.SetFocus(ui.soundList)
}

// showModal centres body in a titled frame on top of the mixer.
func (ui *UI) showModal(title string, body tview.Primitive, width, height int) {
	frame := tview.NewFrame(body).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	ui.pages.AddPage("modal", centered(frame, width, height, ui.colors.background), true, true)
	ui.app.SetFocus(body)
}

func centered(p tview.Primitive, width, height int, bg tcell.Color) *tview.Flex {
	column := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(p, height, 0, true).
		AddItem(nil, 0, 1, false)
	row := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(column, width, 0, true).
		AddItem(nil, 0, 1, false)
	row.SetBackgroundColor(bg)
	return row
}

// handleInitialError replaces the loading screen when the library cannot be
// fetched at startup. R refetches, Q or Esc quits.
func (ui *UI) handleInitialError(err error) {
	view := ui.modalText(fmt.Sprintf("\n[::b]Unable to load the sound library[::-]\n\n%s\n\n[::d]R to retry  •  Q to quit[::-]",
		friendlyErrorMessage(err.Error())), tview.AlignCenter)

	frame := tview.NewFrame(view).SetBorders(1, 1, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Connection error ").
		SetTitleColor(ui.colors.highlight)

	layout := centered(frame, 60, 13, ui.colors.background)
	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case isRune(event, 'r'):
			ui.app.SetRoot(ui.loadingScreen, true)
			go func() {
				if err := ui.fetchSoundsAndInitUI(); err != nil {
					ui.queueDraw(func() { ui.handleInitialError(err) })
				}
			}()
			return nil
		case isRune(event, 'q') || event.Key() == tcell.KeyEscape:
			ui.app.Stop()
			return nil
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}
