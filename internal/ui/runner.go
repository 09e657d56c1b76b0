package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/huddle/internal/huddle"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the subset of *huddle.Session the huddle screen drives.
type Controller interface {
	Enable(ctx context.Context) error
	Disable()
	ToggleAudio() bool
	ToggleVideo() bool
	ToggleScreenShare(ctx context.Context) error
	Snapshot() huddle.Snapshot
	Updates() <-chan struct{}
}

// HuddleUI runs the interactive huddle screen.
type HuddleUI struct {
	model *huddleModel
	opts  []tea.ProgramOption
}

type huddleModel struct {
	ctx      context.Context
	ctrl     Controller
	poll     func(context.Context) error
	spinner  spinner.Model
	snap     huddle.Snapshot
	busy     string
	status   string
	failed   bool
	popOut   bool
	quitting bool
	now      func() time.Time
	copy     func(string) error
}

type stateChangedMsg struct{}

type actionDoneMsg struct {
	action string
	err    error
}

type tickMsg time.Time

// NewHuddleUI builds the screen. poll is optional and only bound to a key
// when the signaling transport needs manual polling.
func NewHuddleUI(ctx context.Context, ctrl Controller, poll func(context.Context) error, opts ...tea.ProgramOption) *HuddleUI {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &HuddleUI{
		model: &huddleModel{
			ctx:     ctx,
			ctrl:    ctrl,
			poll:    poll,
			spinner: s,
			snap:    ctrl.Snapshot(),
			now:     time.Now,
			copy:    CopyToClipboard,
		},
		opts: opts,
	}
}

// Run blocks until the user quits or ctx is cancelled.
func (ui *HuddleUI) Run() error {
	p := tea.NewProgram(ui.model, append([]tea.ProgramOption{tea.WithContext(ui.model.ctx)}, ui.opts...)...)
	_, err := p.Run()
	if err == tea.ErrProgramKilled {
		return nil
	}
	return err
}

func (m *huddleModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *huddleModel) listenForUpdates() tea.Cmd {
	updates := m.ctrl.Updates()
	return func() tea.Msg {
		select {
		case <-updates:
			return stateChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// run performs a blocking controller action off the update loop.
func (m *huddleModel) run(action string, fn func() error) tea.Cmd {
	m.busy = action
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn()}
	}
}

func (m *huddleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg.String())

	case stateChangedMsg:
		m.snap = m.ctrl.Snapshot()
		return m, m.listenForUpdates()

	case actionDoneMsg:
		m.busy = ""
		m.snap = m.ctrl.Snapshot()
		if msg.err != nil {
			m.failed = true
			m.status = fmt.Sprintf("%s: %v", msg.action, msg.err)
		} else {
			m.failed = false
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m *huddleModel) handleKey(key string) tea.Cmd {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.ctrl.Disable()
		return tea.Quit
	}
	if m.busy != "" {
		return nil
	}

	switch key {
	case "h":
		if m.snap.Enabled {
			m.ctrl.Disable()
			m.snap = m.ctrl.Snapshot()
			return nil
		}
		return m.run("join huddle", func() error { return m.ctrl.Enable(m.ctx) })
	case "m":
		m.ctrl.ToggleAudio()
		m.snap = m.ctrl.Snapshot()
	case "v":
		m.ctrl.ToggleVideo()
		m.snap = m.ctrl.Snapshot()
	case "s":
		return m.run("screen share", func() error { return m.ctrl.ToggleScreenShare(m.ctx) })
	case "w":
		m.popOut = !m.popOut
	case "c":
		if err := m.copy(m.snap.RoomID); err != nil {
			m.failed, m.status = true, fmt.Sprintf("copy room id: %v", err)
		} else {
			m.failed, m.status = false, IconCopy+" room id copied"
		}
	case "p":
		if m.poll != nil {
			return m.run("poll", func() error { return m.poll(m.ctx) })
		}
	}
	return nil
}

func toggle(label string, on bool) string {
	if on {
		return ToggleOnStyle.Render(label)
	}
	return ToggleOffStyle.Render(label)
}

func (m *huddleModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	s := m.snap

	b.WriteString(RoomInfo{RoomID: s.RoomID, UserID: s.UserID}.View())
	b.WriteString("\n\n")

	switch {
	case m.busy != "":
		fmt.Fprintf(&b, "%s %s...\n\n", m.spinner.View(), m.busy)
	case s.Enabled:
		fmt.Fprintf(&b, "%s %s\n\n", IconConnect, SuccessStyle.Render("In the huddle"))
	default:
		fmt.Fprintf(&b, "%s %s\n\n", IconWaiting, MutedStyle.Render("Huddle is off"))
	}

	fmt.Fprintf(&b, "%s %s  %s\n\n",
		toggle(IconMic+" mic", s.AudioEnabled),
		toggle(IconCamera+" camera", s.VideoEnabled),
		toggle(IconScreen+" screen", s.ScreenSharing),
	)

	if s.Enabled {
		if s.Preview != "" {
			fmt.Fprintf(&b, "%s preview %s %s\n", IconStream, MutedStyle.Render(string(s.PreviewSource)), MutedStyle.Render(s.Preview))
		}
		if m.popOut {
			fmt.Fprintf(&b, "%s %d remote streams in pop-out view\n\n", IconWindow, s.RemoteStreams)
		} else {
			fmt.Fprintf(&b, "%s %d remote streams\n\n", IconStream, s.RemoteStreams)
			b.WriteString(PeerTableView(s.Peers, m.now()))
			b.WriteString("\n")
		}
	}

	if m.status != "" {
		style := MutedStyle
		icon := IconInfo
		if m.failed {
			style = ErrorStyle
			icon = IconError
		}
		fmt.Fprintf(&b, "\n%s %s\n", icon, style.Render(m.status))
	}

	b.WriteString(FooterStyle.Render(m.help()))
	return b.String()
}

func (m *huddleModel) help() string {
	keys := []string{
		KeyStyle.Render("h") + " huddle",
		KeyStyle.Render("m") + " mic",
		KeyStyle.Render("v") + " camera",
		KeyStyle.Render("s") + " screen",
		KeyStyle.Render("w") + " pop-out",
		KeyStyle.Render("c") + " copy room",
	}
	if m.poll != nil {
		keys = append(keys, KeyStyle.Render("p")+" poll")
	}
	keys = append(keys, KeyStyle.Render("q")+" quit")
	return strings.Join(keys, "  ")
}
