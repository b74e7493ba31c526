package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundmix/internal/config"
	"github.com/glebovdev/soundmix/internal/mixer"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const maxPresetNameLength = 32

func toMixerPreset(p config.Preset) mixer.Preset {
	preset := make(mixer.Preset, len(p))
	for id, level := range p {
		preset[id] = float64(config.ClampVolume(level)) / 100
	}
	return preset
}

func fromMixerPreset(p mixer.Preset) config.Preset {
	preset := make(config.Preset, len(p))
	for id, v := range p {
		preset[id] = config.ClampVolume(int(v*100 + 0.5))
	}
	return preset
}

// describePreset lists the sounds of a preset, louder first.
func describePreset(p config.Preset) string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if p[ids[i]] != p[ids[j]] {
			return p[ids[i]] > p[ids[j]]
		}
		return ids[i] < ids[j]
	})

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s %d%%", id, p[id])
	}
	return strings.Join(parts, ", ")
}

func validPresetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("preset name is empty")
	}
	if len([]rune(name)) > maxPresetNameLength {
		return "", fmt.Errorf("preset name is longer than %d characters", maxPresetNameLength)
	}
	return name, nil
}

// applyPreset plays a saved preset. Unknown names are logged and ignored.
func (ui *UI) applyPreset(name string) {
	preset, ok := ui.config.Presets[name]
	if !ok {
		log.Warn().Str("preset", name).Msg("Preset not found")
		return
	}

	for id, level := range preset {
		ui.levels[id] = config.ClampVolume(level)
	}

	if err := ui.mixer.PlayPreset(toMixerPreset(preset)); err != nil {
		log.Error().Err(err).Str("preset", name).Msg("Failed to play preset")
		ui.showError(err)
	}

	ui.activePreset = name
	ui.config.LastPreset = name
	ui.updateMixView()
	ui.SaveConfig()
	log.Debug().Msgf("Playing preset %q with %d sounds", name, len(preset))
}

// saveCurrentPreset stores the active mix under name.
func (ui *UI) saveCurrentPreset(name string) error {
	name, err := validPresetName(name)
	if err != nil {
		return err
	}

	current := fromMixerPreset(ui.mixer.CurrentPreset())
	if len(current) == 0 {
		return fmt.Errorf("nothing is playing")
	}

	ui.config.SavePreset(name, current)
	ui.activePreset = name
	ui.updateMixView()
	ui.SaveConfig()
	log.Debug().Msgf("Saved preset %q with %d sounds", name, len(current))
	return nil
}

func (ui *UI) showPresetPicker() {
	names := ui.config.PresetNames()
	if len(names) == 0 {
		ui.showInfoModal("Presets", "No presets saved yet.\n\nStart a few sounds and press [::b]w[::-] to save the mix.")
		return
	}

	list := tview.NewList().
		ShowSecondaryText(true).
		SetHighlightFullLine(true)
	list.SetBackgroundColor(ui.colors.modalBackground)
	list.SetMainTextColor(ui.colors.foreground)
	list.SetSecondaryTextColor(tcell.ColorDarkGray)
	list.SetSelectedTextColor(ui.colors.background)
	list.SetSelectedBackgroundColor(ui.colors.highlight)

	current := 0
	for i, name := range names {
		preset := ui.config.Presets[name]
		list.AddItem(name, describePreset(preset), 0, nil)
		if name == ui.config.LastPreset {
			current = i
		}
	}
	list.SetCurrentItem(current)

	list.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		ui.closeModal()
		ui.applyPreset(mainText)
	})

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape:
			ui.closeModal()
			return nil
		case tcell.KeyDelete, tcell.KeyBackspace2:
			index := list.GetCurrentItem()
			name, _ := list.GetItemText(index)
			ui.config.DeletePreset(name)
			if ui.activePreset == name {
				ui.activePreset = ""
				ui.updateMixView()
			}
			list.RemoveItem(index)
			ui.SaveConfig()
			if list.GetItemCount() == 0 {
				ui.closeModal()
			}
			return nil
		}
		return event
	})

	height := min(len(names)*2+4, 24)
	ui.showModal("Presets · Enter play · Del remove", list, 56, height)
}

func (ui *UI) showSavePresetModal() {
	input := tview.NewInputField().
		SetLabel("Name: ").
		SetFieldWidth(maxPresetNameLength).
		SetText(ui.activePreset)
	input.SetBackgroundColor(ui.colors.modalBackground)
	input.SetLabelColor(ui.colors.foreground)
	input.SetFieldBackgroundColor(ui.colors.background)
	input.SetFieldTextColor(ui.colors.highlight)

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			ui.closeModal()
			return
		}
		if key != tcell.KeyEnter {
			return
		}
		err := ui.saveCurrentPreset(input.GetText())
		ui.closeModal()
		if err != nil {
			ui.showInfoModal("Preset not saved", err.Error())
		}
	})

	ui.showModal("Save mix as preset", input, 50, 5)
}
