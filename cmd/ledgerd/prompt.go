package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/ledgerd/pkg/control"
	"github.com/germanamz/ledgerd/pkg/control/wsbridge"
)

const (
	connectHelp = "Plug in your Ledger and unlock it with your **PIN**."
	appHelp     = "Open the **IOTA** application on the device. The request is retried every few seconds."
	dialTimeout = 5 * time.Second
)

func runPrompt(args []string) error {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	url := fs.String("url", "", "control websocket URL (default: derived from control.listen)")
	_ = fs.Parse(args)

	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if *url == "" {
		*url = controlURL(cfg.Control.Listen)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	client, err := wsbridge.Dial(dialCtx, *url)
	dialCancel()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	initMarkdownRenderer(72)

	p := tea.NewProgram(newPromptModel(client), tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	_, err = p.Run()
	return err
}

// aborter sends abort commands to the service.
type aborter interface {
	Abort(ctx context.Context) error
}

type statusMsg control.Status

type streamClosedMsg struct{ err error }

// abortSentMsg reports the outcome of an abort sent from this prompt. The
// service publishes nothing further for an aborted request, so a delivered
// abort clears the prompts locally. An abort sent by another client (the
// abort tool) is not observable here; the prompts stay until the next
// request publishes fresh state.
type abortSentMsg struct{ err error }

// promptModel mirrors the service's prompt state: which of the "connect the
// device" and "open the application" prompts is showing.
type promptModel struct {
	client   aborter
	statuses <-chan control.Status
	spinner  spinner.Model
	width    int

	awaitingConnection  bool
	awaitingApplication bool
	aborting            bool
	err                 error
}

func newPromptModel(client *wsbridge.Client) promptModel {
	m := newPromptView()
	m.client = client
	m.statuses = client.Statuses()
	return m
}

func newPromptView() promptModel {
	return promptModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
	}
}

func (m promptModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForStatus(m.statuses))
}

func waitForStatus(ch <-chan control.Status) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return statusMsg(st)
	}
}

func sendAbort(c aborter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		return abortSentMsg{err: c.Abort(ctx)}
	}
}

// apply folds a status into the prompt state. Nil fields leave the
// corresponding prompt unchanged.
func (m promptModel) apply(st control.Status) promptModel {
	if st.AwaitingConnection != nil {
		m.awaitingConnection = *st.AwaitingConnection
	}
	if st.AwaitingApplication != nil {
		m.awaitingApplication = *st.AwaitingApplication
	}
	if !m.awaitingConnection && !m.awaitingApplication {
		m.aborting = false
	}
	return m
}

func (m promptModel) pending() bool {
	return m.awaitingConnection || m.awaitingApplication
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			if !m.pending() || m.aborting || m.client == nil {
				return m, nil
			}
			m.aborting = true
			return m, sendAbort(m.client)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case statusMsg:
		m = m.apply(control.Status(msg))
		return m, waitForStatus(m.statuses)

	case abortSentMsg:
		m.aborting = false
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.awaitingConnection = false
		m.awaitingApplication = false

	case streamClosedMsg:
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m promptModel) View() string {
	var sb strings.Builder

	switch {
	case m.awaitingConnection:
		sb.WriteString(m.prompt("Connect your device", connectHelp))
	case m.awaitingApplication:
		sb.WriteString(m.prompt("Open the signing application", appHelp))
	default:
		sb.WriteString(dimStyle.Render("No pending device request."))
	}
	sb.WriteString("\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render(truncate("error: "+m.err.Error(), m.width)))
		sb.WriteString("\n")
	}

	footer := "q quit"
	switch {
	case m.aborting:
		footer = "cancelling… · " + footer
	case m.pending():
		footer = "esc cancel · " + footer
	}
	sb.WriteString(dimStyle.Render(truncate(footer, m.width)))
	sb.WriteString("\n")

	return sb.String()
}

func (m promptModel) prompt(title, help string) string {
	head := m.spinner.View() + " " + titleStyle.Render(truncate(title, m.width-2))
	return promptBlockStyle.Render(head + "\n" + renderMarkdown(help))
}
