package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/cabload/internal/discovery"
)

// ScanFunc browses for endpoints
type ScanFunc func(ctx context.Context) ([]*discovery.Endpoint, error)

type scanDoneMsg struct {
	endpoints []*discovery.Endpoint
	err       error
}

type pickerKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Rescan, k.Quit}
}

func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newPickerKeyMap() pickerKeyMap {
	return pickerKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// endpointItem adapts an endpoint to bubbles/list
type endpointItem struct {
	ep *discovery.Endpoint
}

func (i endpointItem) FilterValue() string {
	return i.ep.Instance + " " + i.ep.Hostname + " " + i.ep.IP
}

// endpointDelegate renders each endpoint as a name line plus a detail line
type endpointDelegate struct{}

func (endpointDelegate) Height() int                             { return 2 }
func (endpointDelegate) Spacing() int                            { return 1 }
func (endpointDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (endpointDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(endpointItem)
	if !ok {
		return
	}

	name := "  " + it.ep.Instance
	style := lipgloss.NewStyle().Foreground(TextColor)
	if index == m.Index() {
		name = "→ " + it.ep.Instance
		style = style.Foreground(PrimaryColor).Bold(true)
	}

	details := []string{it.ep.Address()}
	if n := it.ep.CabinetAddress(); n > 0 {
		details = append(details, fmt.Sprintf("cabinet %d", n))
	}
	if h := it.ep.GetMetadata("header"); h != "" {
		details = append(details, h+" header")
	}

	_, _ = fmt.Fprintf(w, "%s\n%s",
		style.Render(name),
		LogLineStyle.Render("  "+strings.Join(details, " "+LogMarker+" ")))
}

// EndpointPicker is the interactive scan view. It browses once on start,
// lists what it finds and quits when the user selects an endpoint.
type EndpointPicker struct {
	ctx      context.Context
	scan     ScanFunc
	list     list.Model
	spinner  spinner.Model
	help     help.Model
	keys     pickerKeyMap
	scanning bool
	err      error
	chosen   *discovery.Endpoint
}

// NewEndpointPicker creates the picker. scan is called on start and on
// every rescan with ctx.
func NewEndpointPicker(ctx context.Context, scan ScanFunc) EndpointPicker {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	l := list.New(nil, endpointDelegate{}, MinTerminalWidth, 12)
	l.Title = "Discovered endpoints"
	l.Styles.Title = HeaderTitleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)

	return EndpointPicker{
		ctx:      ctx,
		scan:     scan,
		list:     l,
		spinner:  s,
		help:     help.New(),
		keys:     newPickerKeyMap(),
		scanning: true,
	}
}

func (m EndpointPicker) runScan() tea.Cmd {
	return func() tea.Msg {
		eps, err := m.scan(m.ctx)
		return scanDoneMsg{endpoints: eps, err: err}
	}
}

// Init implements tea.Model
func (m EndpointPicker) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runScan())
}

// Update implements tea.Model
func (m EndpointPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(clampWidth(msg.Width)-4, max(msg.Height-6, 6))
		return m, nil

	case scanDoneMsg:
		m.scanning = false
		m.err = msg.err
		items := make([]list.Item, len(msg.endpoints))
		for i, ep := range msg.endpoints {
			items[i] = endpointItem{ep: ep}
		}
		return m, m.list.SetItems(items)

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case m.scanning:
			return m, nil
		case key.Matches(msg, m.keys.Rescan):
			m.scanning = true
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, m.runScan())
		case key.Matches(msg, m.keys.Select):
			if it, ok := m.list.SelectedItem().(endpointItem); ok {
				m.chosen = it.ep
				return m, tea.Quit
			}
			return m, nil
		}
	}

	if m.scanning {
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m EndpointPicker) View() string {
	var b strings.Builder
	switch {
	case m.scanning:
		b.WriteString(LabelStyle.Render(m.spinner.View() + " Browsing for endpoints..."))
	case m.err != nil:
		b.WriteString(LabelStyle.Render(ErrorMessageStyle.Render(FailureMarker + " " + m.err.Error())))
	case len(m.list.Items()) == 0:
		b.WriteString(LabelStyle.Render("No endpoints found."))
	default:
		b.WriteString(m.list.View())
	}
	b.WriteString("\n\n")
	b.WriteString(LogLineStyle.Render(m.help.View(m.keys)))
	b.WriteString("\n")
	return b.String()
}

// Chosen returns the endpoint the user selected, or nil
func (m EndpointPicker) Chosen() *discovery.Endpoint {
	return m.chosen
}

// PickEndpoint runs the picker on in/out until the user selects an
// endpoint or quits. Quitting returns nil without error.
func PickEndpoint(ctx context.Context, in io.Reader, out io.Writer, scan ScanFunc) (*discovery.Endpoint, error) {
	p := tea.NewProgram(NewEndpointPicker(ctx, scan),
		tea.WithInput(in), tea.WithOutput(out), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(EndpointPicker).Chosen(), nil
}
