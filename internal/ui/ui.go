package ui

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundmix/internal/config"
	"github.com/glebovdev/soundmix/internal/mixer"
	"github.com/glebovdev/soundmix/internal/service"
	"github.com/glebovdev/soundmix/internal/soundplayer"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep            = 5
	LevelStep             = 5
	HeaderHeight          = 3
	FooterHeightWide      = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow    = 6 // Narrow: 2 rows × 3 lines each
	MixerPanelHeight      = 12
	FooterBreakpoint      = 130 // Width threshold for responsive footer
	MinLoadingDisplayTime = 1200 * time.Millisecond
	MinStatusDisplayTime  = 300 * time.Millisecond
	LibraryRefreshPeriod  = 30 * time.Minute
	LibraryLoadTimeout    = 30 * time.Second
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Mixer is the part of the mixer the interface drives.
type Mixer interface {
	State() mixer.State
	SoundState(soundID string) soundplayer.State
	PlaySound(soundID string) error
	StopSound(soundID string)
	SetVolume(v float64) error
	SetSoundVolume(soundID string, v float64) error
	Pause(immediate bool)
	Resume()
	Stop(immediate bool)
	PlayPreset(preset mixer.Preset) error
	CurrentPreset() mixer.Preset
}

type UI struct {
	app             *tview.Application
	soundService    *service.SoundService
	mixer           Mixer
	soundList       *tview.Table
	helpPanel       *tview.Box
	contentLayout   *tview.Flex
	mixerPanel      *tview.Flex
	mixView         *tview.TextView
	volumeView      *tview.Flex
	mainLayout      *tview.Flex
	loadingScreen   *tview.Flex
	loadingText     *tview.TextView
	progressBar     *tview.TextView
	pages           *tview.Pages
	stopUpdates     chan struct{}
	running         atomic.Bool
	selectedSoundID string
	soundStates     map[string]soundplayer.State
	levels          map[string]int
	mixerState      mixer.State
	activePreset    string
	startPreset     string
	currentVolume   int
	isMuted         bool
	config          *config.Config
	lastFooterWidth int // Track width to detect layout changes
	mu              sync.Mutex
	animationFrame  int
	playingSpinner  *PlayingSpinner
	statusRenderer  *StatusRenderer
	colors          struct {
		background                tcell.Color
		foreground                tcell.Color
		borders                   tcell.Color
		highlight                 tcell.Color
		mutedVolume               tcell.Color
		headerBackground          tcell.Color
		soundListHeaderBackground tcell.Color
		soundListHeaderForeground tcell.Color
		helpBackground            tcell.Color
		helpForeground            tcell.Color
		helpHotkey                tcell.Color
		groupTagBackground        tcell.Color
		modalBackground           tcell.Color
	}
}

// NewUI builds the interface. startPreset, when set, is played once the
// library has loaded.
func NewUI(soundService *service.SoundService, cfg *config.Config, startPreset string) *UI {
	ui := &UI{
		app:           tview.NewApplication(),
		soundService:  soundService,
		stopUpdates:   make(chan struct{}),
		soundStates:   make(map[string]soundplayer.State),
		levels:        make(map[string]int),
		mixerState:    mixer.StateStopped,
		startPreset:   startPreset,
		currentVolume: cfg.Volume,
		config:        cfg,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.mutedVolume = config.GetColor(cfg.Theme.MutedVolume)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.soundListHeaderBackground = config.GetColor(cfg.Theme.SoundListHeaderBackground)
	ui.colors.soundListHeaderForeground = config.GetColor(cfg.Theme.SoundListHeaderForeground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.groupTagBackground = config.GetColor(cfg.Theme.GroupTagBackground)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	ui.statusRenderer = NewStatusRenderer()
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())
	ui.statusRenderer.SetQuality(cfg.Bitrate)

	return ui
}

// SetMixer attaches the mixer the interface controls. It must be called
// before Run.
func (ui *UI) SetMixer(m Mixer) {
	ui.mixer = m
	_ = m.SetVolume(float64(ui.currentVolume) / 100)
	log.Debug().Msgf("Loaded volume from config: %d%%", ui.currentVolume)
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		select {
		case <-ui.stopUpdates:
			// Already closed
		default:
			close(ui.stopUpdates)
		}
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	ui.running.Store(false)
	ui.soundService.StopPeriodicRefresh()
	ui.safeCloseChannel()
	ui.SaveConfig()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	if !ui.running.Load() {
		ui.app.Stop()
		return
	}
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	ui.running.Store(true)
	go ui.initAsync()

	err := ui.app.Run()
	ui.running.Store(false)
	return err
}

// queueDraw runs fn on the UI goroutine while the application is running.
// Updates arriving after shutdown are dropped.
func (ui *UI) queueDraw(fn func()) {
	if !ui.running.Load() {
		return
	}
	ui.app.QueueUpdateDraw(fn)
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.fetchSoundsAndInitUI(); err != nil {
		ui.queueDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Loading sound library... (1/3)")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(renderProgressBar(0))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

func renderProgressBar(percent int) string {
	const width = 30
	filled := (percent * width) / 100
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := renderProgressBar(fromPercent)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := renderProgressBar(p); bar != lastBar {
			ui.queueDraw(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

func (ui *UI) fetchSoundsAndInitUI() error {
	const totalStages = 3
	stagePercent := func(stage int) int { return (stage * 100) / totalStages }

	startTime := time.Now()

	animDone := make(chan struct{})
	go func() {
		ui.animateProgress(stagePercent(0), stagePercent(1), MinStatusDisplayTime)
		close(animDone)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), LibraryLoadTimeout)
	defer cancel()
	if _, err := ui.soundService.GetSounds(ctx); err != nil {
		return fmt.Errorf("failed to fetch sound library: %w", err)
	}
	log.Debug().Msgf("Loaded %d sounds in %v", ui.soundService.SoundCount(), time.Since(startTime))

	<-animDone

	ui.queueDraw(func() {
		ui.loadingText.SetText("Loading presets... (2/3)")
	})

	ui.config.CleanupPresets(ui.soundService.GetValidSoundIDs())
	ui.SaveConfig()

	ui.animateProgress(stagePercent(1), stagePercent(2), MinStatusDisplayTime)

	ui.queueDraw(func() {
		ui.loadingText.SetText("Building mixer... (3/3)")
	})

	ui.setupUI()
	ui.soundService.StartPeriodicRefresh(LibraryRefreshPeriod, ui.onLibraryRefreshed)

	ui.animateProgress(stagePercent(2), stagePercent(3), MinStatusDisplayTime)

	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Msgf("Total loading time: %v", time.Since(startTime))

	ui.queueDraw(func() {
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.app.SetFocus(ui.soundList)
		ui.selectSound(0)
		ui.startAnimation()

		if ui.startPreset != "" {
			ui.applyPreset(ui.startPreset)
		}
	})

	return nil
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.mixerPanel = tview.NewFlex().SetDirection(tview.FlexRow)
	ui.mixerPanel.SetBackgroundColor(ui.colors.background)
	ui.mixerPanel.AddItem(ui.createMixerPanel(), 0, 1, false)

	ui.soundList = ui.createSoundListTable()

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.mixerPanel, MixerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.soundList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

// createMixerPanel shows the active mix on the left and the master volume
// bar on the right.
func (ui *UI) createMixerPanel() *tview.Flex {
	mixLabel := tview.NewTextView()
	mixLabel.SetText(" Mix:")
	mixLabel.SetTextColor(ui.colors.foreground)
	mixLabel.SetBackgroundColor(ui.colors.background)

	ui.mixView = tview.NewTextView()
	ui.mixView.SetDynamicColors(true)
	ui.mixView.SetTextColor(ui.colors.foreground)
	ui.mixView.SetBackgroundColor(ui.colors.background)
	ui.mixView.SetWrap(true)
	ui.updateMixView()

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mixLabel, 1, 0, false).
		AddItem(ui.mixView, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createGraphicalVolumeBar()

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(infoContent, 0, 1, false).
		AddItem(ui.volumeView, 7, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	contentWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 4, 0, false)
	contentWithPadding.SetBackgroundColor(ui.colors.background)

	return contentWithPadding
}

func (ui *UI) updateMixView() {
	if ui.mixView == nil {
		return
	}
	ui.mixView.SetText(ui.describeMix())
}

// describeMix lists active sounds with their levels, preset name first.
func (ui *UI) describeMix() string {
	highlight := ui.colors.highlight.String()

	var b strings.Builder
	if ui.activePreset != "" {
		fmt.Fprintf(&b, " [%s::b]%s[-::-]\n", highlight, ui.activePreset)
	}

	active := 0
	for i := 0; i < ui.soundService.SoundCount(); i++ {
		info := ui.soundService.GetSound(i)
		if info == nil {
			continue
		}
		state, ok := ui.soundStates[info.ID]
		if !ok || state == soundplayer.StateStopped {
			continue
		}
		active++
		fmt.Fprintf(&b, " %s %s [%s]%d%%[-]\n", stateIcon(state), info.Name, highlight, ui.soundLevel(info.ID))
	}

	if active == 0 {
		b.WriteString(" Nothing playing. Select a sound and press Enter.")
	}
	return b.String()
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	frameIndex := ui.animationFrame % len(ui.playingSpinner.Frames)
	return ui.playingSpinner.Frames[frameIndex]
}

func (ui *UI) startAnimation() {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.mu.Lock()
	stop := ui.stopUpdates
	ui.mu.Unlock()
	if stop == nil {
		return
	}

	go func() {
		animationTicker := time.NewTicker(ui.playingSpinner.FPS)
		defer animationTicker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-animationTicker.C:
				ui.queueDraw(func() {
					ui.animationFrame++
					ui.statusRenderer.AdvanceAnimation()
					if ui.mixerState != mixer.StateStopped {
						ui.updatePlayingIndicators()
					}
				})
			}
		}
	}()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.togglePause()
			return nil
		case 's', 'S':
			ui.mixer.Stop(false)
			ui.activePreset = ""
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case ']':
			ui.adjustSelectedLevel(LevelStep)
			return nil
		case '[':
			ui.adjustSelectedLevel(-LevelStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case 'p', 'P':
			ui.showPresetPicker()
			return nil
		case 'w', 'W':
			ui.showSavePresetModal()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		}
	case tcell.KeyEnter:
		row, _ := ui.soundList.GetSelection()
		if row > 0 && row <= ui.soundService.SoundCount() {
			ui.toggleSound(row - 1)
		}
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.adjustSelectedLevel(LevelStep)
		return nil
	case tcell.KeyLeft:
		ui.adjustSelectedLevel(-LevelStep)
		return nil
	}
	return event
}

// togglePause pauses a playing mix and resumes a paused one.
func (ui *UI) togglePause() {
	switch ui.mixer.State() {
	case mixer.StatePlaying:
		ui.mixer.Pause(false)
	case mixer.StatePaused, mixer.StatePausing:
		ui.mixer.Resume()
	default:
		row, _ := ui.soundList.GetSelection()
		if row > 0 && row <= ui.soundService.SoundCount() {
			ui.toggleSound(row - 1)
		}
	}
}
