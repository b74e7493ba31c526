package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundmix/internal/mixer"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/rivo/tview"
)

// StatusRenderer formats the mixer status shown in the footer. It is only
// touched from the UI goroutine.
type StatusRenderer struct {
	state         mixer.State
	activeCount   int
	quality       string
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer() *StatusRenderer {
	return &StatusRenderer{
		state:         mixer.StateStopped,
		maxAnimFrame:  4,
		ticksPerFrame: 8, // Slow down animation (8 ticks per frame)
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) SetState(state mixer.State) {
	s.state = state
}

func (s *StatusRenderer) SetActiveCount(n int) {
	s.activeCount = n
}

// SetQuality records the configured bitrate, e.g. "320k".
func (s *StatusRenderer) SetQuality(bitrate string) {
	s.quality = bitrate
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	switch s.state {
	case mixer.StatePlaying:
		return s.renderPlaying()
	case mixer.StatePausing:
		return s.renderFading(PauseIcon + " PAUSING")
	case mixer.StatePaused:
		return s.renderPaused()
	case mixer.StateStopping:
		return s.renderFading("↓ STOPPING")
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Select a sound"
	}
	return "○ IDLE │ Select a sound"
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	parts := []string{dot + " MIXING"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, soundCountText(s.activeCount))

	if q := qualityShort(s.quality); q != "" {
		parts = append(parts, fmt.Sprintf("MP3 %s %s", q, s.quality))
	}

	return joinParts(parts)
}

func (s *StatusRenderer) renderPaused() string {
	parts := []string{PauseIcon + " PAUSED"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, soundCountText(s.activeCount))

	return joinParts(parts)
}

func (s *StatusRenderer) renderFading(label string) string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return fmt.Sprintf("%s %s", circles[s.animFrame], label)
}

func soundCountText(n int) string {
	if n == 1 {
		return "1 sound"
	}
	return fmt.Sprintf("%d sounds", n)
}

// qualityShort maps a bitrate tier to a short quality tag.
func qualityShort(bitrate string) string {
	b, err := sound.ParseBitrate(bitrate)
	if err != nil {
		return ""
	}
	switch b {
	case sound.Bitrate256, sound.Bitrate320:
		return "HQ"
	case sound.Bitrate192:
		return "MQ"
	default:
		return "LQ"
	}
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.mixerState {
	case mixer.StatePaused, mixer.StatePausing:
		return fmt.Sprintf("[%s]Enter[-] toggle  [%s]Space[-] resume", keyColor, keyColor)
	case mixer.StatePlaying:
		return fmt.Sprintf("[%s]Enter[-] toggle  [%s]Space[-] pause  [%s]s[-] stop", keyColor, keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]p[-] presets", keyColor, keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]←/→[-] level  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fillRect(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width * 3 / 5
	statusWidth := width - helpWidth

	ui.fillRect(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fillRect(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := max(height/2, 1)
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fillRect(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fillRect(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		tview.Print(screen, statusText, x, helpBoxEnd+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		if width >= FooterBreakpoint {
			ui.drawWideFooter(screen, x, y, width, min(height, FooterHeightWide), helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
