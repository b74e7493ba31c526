package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundmix/internal/config"
	"github.com/glebovdev/soundmix/internal/mixer"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/glebovdev/soundmix/internal/soundplayer"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	colState = iota
	colName
	colGroup
	colLevel
	colStatus
)

const (
	maxNameWidth  = 30
	levelBarWidth = 10
)

func (ui *UI) createSoundListTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle(fmt.Sprintf("Sounds (%d)", ui.soundService.SoundCount())).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	headers := []struct {
		text      string
		expansion int
		align     int
	}{
		{" ", 0, tview.AlignLeft},
		{"Name", 2, tview.AlignLeft},
		{"Group", 1, tview.AlignLeft},
		{"Level", 0, tview.AlignLeft},
		{"State", 0, tview.AlignRight},
	}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h.text).
			SetTextColor(ui.colors.soundListHeaderForeground).
			SetBackgroundColor(ui.colors.soundListHeaderBackground).
			SetExpansion(h.expansion).
			SetAlign(h.align).
			SetSelectable(false))
	}

	soundCount := ui.soundService.SoundCount()
	for i := 0; i < soundCount; i++ {
		ui.setSoundRow(table, i+1, i)
	}

	// Track selected sound ID for preserving selection after refresh
	table.SetSelectionChangedFunc(func(row, column int) {
		if row > 0 && row <= ui.soundService.SoundCount() {
			if s := ui.soundService.GetSound(row - 1); s != nil {
				ui.selectedSoundID = s.ID
			}
		}
	})

	return table
}

func (ui *UI) setSoundRow(table *tview.Table, row int, soundIndex int) {
	s := ui.soundService.GetSound(soundIndex)
	if s == nil {
		return
	}

	state, active := ui.soundStates[s.ID]
	if !active {
		state = soundplayer.StateStopped
	}

	table.SetCell(row, colState, tview.NewTableCell(stateIcon(state)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	table.SetCell(row, colName, tview.NewTableCell(truncate(s.Name, maxNameWidth)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(maxNameWidth+3).
		SetExpansion(2))

	table.SetCell(row, colGroup, tview.NewTableCell(s.Group).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(20).
		SetExpansion(1))

	levelColor := ui.colors.foreground
	if active && state != soundplayer.StateStopped {
		levelColor = ui.colors.highlight
	}
	table.SetCell(row, colLevel, tview.NewTableCell(levelBar(ui.soundLevel(s.ID), levelBarWidth)).
		SetTextColor(levelColor))

	table.SetCell(row, colStatus, tview.NewTableCell(stateLabel(state)).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

func stateIcon(state soundplayer.State) string {
	switch state {
	case soundplayer.StatePlaying:
		return "➤"
	case soundplayer.StateBuffering:
		return "…"
	case soundplayer.StatePausing, soundplayer.StatePaused:
		return PauseIcon
	case soundplayer.StateStopping:
		return "↓"
	default:
		return " "
	}
}

func stateLabel(state soundplayer.State) string {
	switch state {
	case soundplayer.StateBuffering:
		return "loading"
	case soundplayer.StatePlaying:
		return "playing"
	case soundplayer.StatePausing:
		return "fading"
	case soundplayer.StatePaused:
		return "paused"
	case soundplayer.StateStopping:
		return "stopping"
	default:
		return ""
	}
}

func truncate(name string, maxLen int) string {
	runes := []rune(name)
	if len(runes) <= maxLen {
		return name
	}
	return string(runes[:maxLen-3]) + "..."
}

// soundLevel returns the per-sound level in percent.
func (ui *UI) soundLevel(soundID string) int {
	if level, ok := ui.levels[soundID]; ok {
		return level
	}
	return config.DefaultSoundLevel
}

func (ui *UI) selectedSound() *sound.Info {
	if ui.soundList == nil {
		return nil
	}
	row, _ := ui.soundList.GetSelection()
	if row <= 0 || row > ui.soundService.SoundCount() {
		return nil
	}
	return ui.soundService.GetSound(row - 1)
}

func (ui *UI) selectSound(index int) {
	soundCount := ui.soundService.SoundCount()
	if soundCount == 0 || index < 0 || index >= soundCount {
		return
	}
	ui.soundList.Select(index+1, 0)
}

// toggleSound starts the sound at index, or fades it out if it is audible.
func (ui *UI) toggleSound(index int) {
	info := ui.soundService.GetSound(index)
	if info == nil {
		return
	}

	switch ui.mixer.SoundState(info.ID) {
	case soundplayer.StatePlaying, soundplayer.StateBuffering:
		log.Debug().Msgf("Stopping sound: %s", info.Name)
		ui.mixer.StopSound(info.ID)
	default:
		log.Debug().Msgf("Starting sound: %s", info.Name)
		ui.playSound(info.ID)
	}
	ui.activePreset = ""
	ui.updateMixView()
}

func (ui *UI) playSound(soundID string) {
	if err := ui.mixer.SetSoundVolume(soundID, float64(ui.soundLevel(soundID))/100); err != nil {
		log.Error().Err(err).Str("sound", soundID).Msg("Failed to set sound volume")
	}
	if err := ui.mixer.PlaySound(soundID); err != nil {
		log.Error().Err(err).Str("sound", soundID).Msg("Failed to play sound")
		ui.showError(err)
	}
}

func (ui *UI) adjustSelectedLevel(delta int) {
	info := ui.selectedSound()
	if info == nil {
		return
	}

	level := config.ClampVolume(ui.soundLevel(info.ID) + delta)
	ui.levels[info.ID] = level
	if err := ui.mixer.SetSoundVolume(info.ID, float64(level)/100); err != nil {
		log.Error().Err(err).Str("sound", info.ID).Msg("Failed to set sound volume")
	}
	if _, active := ui.soundStates[info.ID]; active {
		ui.activePreset = ""
	}
	ui.refreshSoundRow(info.ID)
	ui.updateMixView()
	log.Debug().Msgf("Level of %s adjusted to %d%%", info.Name, level)
}

func (ui *UI) refreshSoundRow(soundID string) {
	if ui.soundList == nil {
		return
	}
	index := ui.soundService.FindIndexByID(soundID)
	if index < 0 {
		return
	}
	ui.setSoundRow(ui.soundList, index+1, index)
}

func (ui *UI) refreshSoundTable() {
	soundCount := ui.soundService.SoundCount()

	for row := ui.soundList.GetRowCount() - 1; row > soundCount; row-- {
		ui.soundList.RemoveRow(row)
	}
	for i := 0; i < soundCount; i++ {
		ui.setSoundRow(ui.soundList, i+1, i)
	}

	if ui.selectedSoundID != "" {
		if newIndex := ui.soundService.FindIndexByID(ui.selectedSoundID); newIndex >= 0 {
			ui.soundList.Select(newIndex+1, 0)
		}
	}

	ui.soundList.SetTitle(fmt.Sprintf("Sounds (%d)", soundCount))

	log.Debug().Int("count", soundCount).Msg("Sound table refreshed")
}

func (ui *UI) onLibraryRefreshed(sounds []sound.Info) {
	ui.queueDraw(func() {
		ui.refreshSoundTable()
		ui.updateMixView()
	})
}

// updatePlayingIndicators animates the name of every playing sound.
func (ui *UI) updatePlayingIndicators() {
	indicator := ui.getPlayingIndicator()
	for id, state := range ui.soundStates {
		index := ui.soundService.FindIndexByID(id)
		if index < 0 {
			continue
		}
		info := ui.soundService.GetSound(index)
		cell := ui.soundList.GetCell(index+1, colName)
		if info == nil || cell == nil {
			continue
		}
		name := truncate(info.Name, maxNameWidth)
		if state == soundplayer.StatePlaying || state == soundplayer.StateBuffering {
			name += " " + indicator
		}
		cell.SetText(name)
	}
}

func (ui *UI) OnManagerStateChange(state mixer.State) {
	ui.queueDraw(func() {
		ui.applyManagerState(state)
	})
}

func (ui *UI) OnManagerVolumeChange(volume float64) {
	log.Debug().Msgf("Mixer volume is now %.2f", volume)
}

func (ui *UI) OnSoundStateChange(soundID string, state soundplayer.State) {
	ui.queueDraw(func() {
		ui.applySoundState(soundID, state)
	})
}

func (ui *UI) OnSoundVolumeChange(soundID string, volume float64) {
	ui.queueDraw(func() {
		ui.applySoundVolume(soundID, volume)
	})
}

func (ui *UI) applyManagerState(state mixer.State) {
	ui.mixerState = state
	ui.statusRenderer.SetState(state)
	if state == mixer.StateStopped {
		ui.activePreset = ""
	}
	ui.updateMixView()
}

func (ui *UI) applySoundState(soundID string, state soundplayer.State) {
	if state == soundplayer.StateStopped {
		delete(ui.soundStates, soundID)
	} else {
		ui.soundStates[soundID] = state
	}
	ui.statusRenderer.SetActiveCount(ui.audibleCount())
	ui.refreshSoundRow(soundID)
	ui.updateMixView()
}

func (ui *UI) applySoundVolume(soundID string, volume float64) {
	ui.levels[soundID] = config.ClampVolume(int(volume*100 + 0.5))
	ui.refreshSoundRow(soundID)
	ui.updateMixView()
}

func (ui *UI) audibleCount() int {
	count := 0
	for _, state := range ui.soundStates {
		if state != soundplayer.StateStopping {
			count++
		}
	}
	return count
}
