package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/beamspace/beam/cmd/beam/tui"
	"github.com/beamspace/beam/internal/state"
	"github.com/beamspace/beam/internal/worker"
)

// ------------------------------------------------------ Model ------------------------------------------------------

type focusField int

const (
	focusPath focusField = iota
	focusTicket
	focusDest
	focusFieldCount
)

type wakeMsg struct{}
type tickMsg time.Time

const frameInterval = 100 * time.Millisecond

type model struct {
	store   *state.Store
	worker  *worker.Worker
	wake    <-chan struct{}
	version string

	snapshot state.Snapshot

	focus       focusField
	pathInput   textinput.Model
	ticketInput textinput.Model
	destInput   textinput.Model

	copiedTicket bool

	width   int
	spinner spinner.Model
	help    help.Model
	keys    tui.KeyMap
}

// Option modifies the app model.
type Option func(*model)

// WithVersion sets the version rendered in the header.
func WithVersion(version string) Option {
	return func(m *model) {
		m.version = version
	}
}

// WithDownloadDir sets the initial download destination.
func WithDownloadDir(dir string) Option {
	return func(m *model) {
		m.destInput.SetValue(dir)
	}
}

// New creates a program that renders the shared application state and
// dispatches share and download requests onto the worker.
func New(store *state.Store, w *worker.Worker, wake <-chan struct{}, opts ...Option) *tea.Program {
	pathInput := textinput.New()
	pathInput.Placeholder = "path to file or directory"
	pathInput.Focus()

	ticketInput := textinput.New()
	ticketInput.Placeholder = "paste a beam ticket"

	destInput := textinput.New()
	destInput.Placeholder = "download directory"
	destInput.SetValue(".")

	m := model{
		store:       store,
		worker:      w,
		wake:        wake,
		pathInput:   pathInput,
		ticketInput: ticketInput,
		destInput:   destInput,
		snapshot:    store.Snapshot(),
		help:        help.New(),
		keys:        tui.Keys,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.resetSpinner()
	return tea.NewProgram(m)
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenWakeCmd(m.wake), tickCmd())
}

// ------------------------------------------------------ Update -----------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case wakeMsg:
		m.snapshot = m.store.Snapshot()
		m.syncErrorKeys()
		return m, listenWakeCmd(m.wake)

	case tickMsg:
		m.snapshot = m.store.Snapshot()
		m.syncErrorKeys()
		return m, tickCmd()

	case tea.KeyMsg:
		if m.snapshot.Err != nil {
			switch {
			case key.Matches(msg, m.keys.DismissError):
				m.store.AckError()
				m.snapshot = m.store.Snapshot()
				m.syncErrorKeys()
				return m, nil
			case key.Matches(msg, m.keys.Quit):
				return m, m.quit()
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, m.quit()

		case key.Matches(msg, m.keys.NextField):
			m.focus = (m.focus + 1) % focusFieldCount
			m.syncFocus()
			return m, nil

		case key.Matches(msg, m.keys.CopyTicket):
			if m.snapshot.Ticket != nil {
				err := clipboard.WriteAll(m.snapshot.Ticket.String())
				m.copiedTicket = err == nil
			}
			return m, nil

		case key.Matches(msg, m.keys.Confirm):
			switch m.focus {
			case focusPath:
				return m, m.dispatchShare()
			case focusTicket, focusDest:
				return m, m.dispatchGet()
			}
		}

		var cmds []tea.Cmd
		cmds = append(cmds, m.updateInputs(msg)...)
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		tui.Progressbar.Width = msg.Width - 2*tui.PADDING - 4
		if tui.Progressbar.Width > tui.MAX_WIDTH {
			tui.Progressbar.Width = tui.MAX_WIDTH
		}
		return m, nil

	default:
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		return m, spinnerCmd
	}
}

// dispatchShare starts a fresh share cycle for the currently entered path.
// Picking a new file invalidates the previous ticket and cancels the
// operation that produced it.
func (m *model) dispatchShare() tea.Cmd {
	path := strings.TrimSpace(m.pathInput.Value())
	if path == "" {
		return nil
	}
	if m.snapshot.Sharing != nil {
		m.worker.CancelActive()
	}
	m.store.ResetShareCycle()
	m.copiedTicket = false
	m.worker.Dispatch(worker.ShareRequest{Path: path})
	m.snapshot = m.store.Snapshot()
	return nil
}

func (m *model) dispatchGet() tea.Cmd {
	text := strings.TrimSpace(m.ticketInput.Value())
	if text == "" {
		return nil
	}
	dest := strings.TrimSpace(m.destInput.Value())
	if dest == "" {
		dest = "."
	}
	m.worker.Dispatch(worker.GetRequest{TicketText: text, Dest: dest})
	return nil
}

func (m *model) quit() tea.Cmd {
	m.worker.CancelActive()
	m.worker.Stop()
	return tea.Quit
}

func (m *model) syncFocus() {
	inputs := []*textinput.Model{&m.pathInput, &m.ticketInput, &m.destInput}
	for i := range inputs {
		if focusField(i) == m.focus {
			inputs[i].Focus()
		} else {
			inputs[i].Blur()
		}
	}
}

func (m *model) syncErrorKeys() {
	m.keys.DismissError.SetEnabled(m.snapshot.Err != nil)
	m.keys.CopyTicket.SetEnabled(m.snapshot.Ticket != nil)
}

func (m *model) updateInputs(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	cmds = append(cmds, cmd)
	m.ticketInput, cmd = m.ticketInput.Update(msg)
	cmds = append(cmds, cmd)
	m.destInput, cmd = m.destInput.Update(msg)
	cmds = append(cmds, cmd)
	return cmds
}

func (m *model) resetSpinner() {
	m.spinner = spinner.New()
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(tui.ELEMENT_COLOR))
	m.spinner.Spinner = tui.WaitingSpinner
}

// ------------------------------------------------------ View -------------------------------------------------------

func (m model) View() string {
	if m.snapshot.Err != nil {
		return m.errorView()
	}

	header := tui.PadText + tui.BoldText("beam") + " " + tui.HelpStyle(m.version) + "\n"
	return header +
		tui.LogSeparator(m.width) +
		m.sendView() +
		tui.LogSeparator(m.width) +
		m.receiveView() +
		tui.PadText + m.help.View(m.keys) + "\n\n"
}

func (m model) sendView() string {
	var status string
	switch {
	case m.snapshot.Sharing != nil:
		status = tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Providing payload", m.spinner.View())) + "\n\n" +
			tui.PadText + m.progressView(*m.snapshot.Sharing) + "\n\n"
	case m.snapshot.Ticket != nil:
		ticketText := wordwrap.String(m.snapshot.Ticket.String(), max(m.width-4*tui.PADDING, 16))
		copied := ""
		if m.copiedTicket {
			copied = tui.CheckText(" ✓ copied")
		}
		status = tui.PadText + tui.InfoStyle(fmt.Sprintf("Ready to beam (%s)%s", tui.ByteCountSI(m.snapshot.Ticket.Size), copied)) + "\n\n" +
			tui.PadText + tui.ItalicText(ticketText) + "\n\n"
	}

	return tui.PadText + tui.BoldText("Send") + "\n\n" +
		tui.PadText + m.pathInput.View() + "\n\n" +
		status
}

func (m model) receiveView() string {
	var status string
	if m.snapshot.Download != nil {
		status = tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Receiving payload", m.spinner.View())) + "\n\n" +
			tui.PadText + m.progressView(*m.snapshot.Download) + "\n\n"
	}

	return tui.PadText + tui.BoldText("Receive") + "\n\n" +
		tui.PadText + m.ticketInput.View() + "\n" +
		tui.PadText + m.destInput.View() + "\n\n" +
		status
}

func (m model) progressView(p state.Progress) string {
	if !p.Known {
		return tui.ItalicText("waiting for size")
	}
	return tui.Progressbar.ViewAs(p.Ratio)
}

func (m model) errorView() string {
	body := wordwrap.String(m.snapshot.Err.Error(), max(m.width-4*tui.PADDING, 16))
	pending := ""
	if m.snapshot.PendingErrors > 1 {
		pending = "\n" + tui.HelpStyle(fmt.Sprintf("(%d more)", m.snapshot.PendingErrors-1))
	}
	box := tui.ErrorBoxStyle.Render(tui.ErrorText(body) + pending)
	return "\n" + tui.PadText + box + "\n\n" +
		tui.PadText + m.help.View(m.keys) + "\n\n"
}

// ------------------------------------------------------ Commands ---------------------------------------------------

func listenWakeCmd(wake <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-wake
		return wakeMsg{}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
