// Package tui implements an interactive terminal inspector for program
// corpora.
//
// The inspector shows the disassembly of corpus programs, lets the user step
// through the corpus, generate fresh programs, and preview what each mutator
// does to the current program. It uses the Charm libraries (Bubbletea,
// Bubbles, and Lipgloss) for a modern terminal interface with styled
// listings and asynchronous mutation preview.
//
// The main entry point is Start, which runs the inspector over a corpus.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/googleprojectzero/fuzzilli-sub008/engine"
	"github.com/googleprojectzero/fuzzilli-sub008/il"
	"github.com/googleprojectzero/fuzzilli-sub008/mutator"
)

// Prompt is the inspector's command prompt.
const Prompt = "> "

// Styling
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5F5FD7")).
			Bold(true)

	listingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))

	variableStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	opcodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAF00"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

// Options configures the inspector.
type Options struct {
	// NoColor disables styled output.
	NoColor bool
}

// Start runs the inspector over the given fuzzer and corpus until the user
// quits.
func Start(f *engine.Fuzzer, corpus *engine.MemoryCorpus, options Options) error {
	p := tea.NewProgram(initialModel(f, corpus, options))
	_, err := p.Run()
	return err
}

// mutateResultMsg carries an asynchronous mutation preview back to the
// update loop.
type mutateResultMsg struct {
	mutator string
	program *il.Program
	err     error
	elapsed time.Duration
}

// model is the inspector's application state.
type model struct {
	fuzzer  *engine.Fuzzer
	corpus  *engine.MemoryCorpus
	options Options

	input    textinput.Model
	spin     spinner.Model
	working  bool
	index    int
	current  *il.Program
	preview  *il.Program
	status   string
	isError  bool
	lastTime time.Duration
}

func initialModel(f *engine.Fuzzer, corpus *engine.MemoryCorpus, options Options) model {
	ti := textinput.New()
	ti.Placeholder = "command (h for help)"
	ti.Focus()
	ti.Width = 60
	ti.Prompt = promptStyle.Render(Prompt)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	m := model{
		fuzzer:  f,
		corpus:  corpus,
		options: options,
		input:   ti,
		spin:    s,
	}
	m.loadProgram(0)
	return m
}

// loadProgram selects the i-th corpus program, wrapping the index around at
// either end.
func (m *model) loadProgram(i int) {
	programs := m.corpus.Programs()
	if len(programs) == 0 {
		m.current = nil
		m.index = 0
		return
	}
	if i < 0 {
		i = len(programs) - 1
	}
	if i >= len(programs) {
		i = 0
	}
	m.index = i
	m.current = programs[i]
	m.preview = nil
}

// Init is the first function called by the bubbletea runtime.
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// mutateCmd runs one mutator asynchronously and reports the preview.
func mutateCmd(f *engine.Fuzzer, mut mutator.Mutator, p *il.Program) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		result := f.Mutate(mut, p)
		return mutateResultMsg{
			mutator: mut.Name(),
			program: result.Program,
			err:     result.Err,
			elapsed: time.Since(start),
		}
	}
}

// generateCmd builds a fresh program asynchronously.
func generateCmd(f *engine.Fuzzer) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		p, err := f.GenerateProgram(20)
		return mutateResultMsg{mutator: "generator", program: p, err: err, elapsed: time.Since(start)}
	}
}

// Update handles one message.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.working {
				return m, nil
			}
			cmd := m.handleCommand(strings.TrimSpace(m.input.Value()))
			m.input.SetValue("")
			return m, cmd
		}

	case mutateResultMsg:
		m.working = false
		m.lastTime = msg.elapsed
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.mutator, msg.err)
			m.isError = true
		} else if msg.program != nil {
			m.preview = msg.program
			m.status = fmt.Sprintf("%s produced %d instructions in %v", msg.mutator, msg.program.Size(), msg.elapsed)
			m.isError = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleCommand interprets one inspector command.
func (m *model) handleCommand(cmd string) tea.Cmd {
	m.status = ""
	m.isError = false
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "q", "quit":
		return tea.Quit
	case "n", "next":
		m.loadProgram(m.index + 1)
	case "p", "prev":
		m.loadProgram(m.index - 1)
	case "g", "gen":
		m.working = true
		return generateCmd(m.fuzzer)
	case "k", "keep":
		if m.preview != nil {
			m.corpus.Add(m.preview)
			m.loadProgram(m.corpus.Size() - 1)
			m.status = "preview added to corpus"
		}
	case "m", "mutate":
		if m.current == nil {
			m.status = "no program loaded"
			m.isError = true
			return nil
		}
		mut := m.pickMutator(fields[1:])
		if mut == nil {
			m.status = "unknown mutator; try: input, operation, codegen, splice, combine, jit"
			m.isError = true
			return nil
		}
		m.working = true
		return mutateCmd(m.fuzzer, mut, m.current)
	case "h", "help":
		m.status = "n/p: browse  g: generate  m <name>: mutate  k: keep preview  q: quit"
	default:
		m.status = fmt.Sprintf("unknown command %q (h for help)", fields[0])
		m.isError = true
	}
	return nil
}

// pickMutator resolves a mutator by name fragment, or picks one at random.
func (m *model) pickMutator(args []string) mutator.Mutator {
	if len(args) == 0 {
		return m.fuzzer.RandomMutator()
	}
	needle := strings.ToLower(args[0])
	for _, mut := range m.fuzzer.Mutators() {
		if strings.Contains(strings.ToLower(mut.Name()), needle) {
			return mut
		}
	}
	return nil
}

// applyStyle applies a lipgloss style, respecting the NoColor option.
func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

// renderListing styles a program disassembly line by line.
func (m model) renderListing(p *il.Program) string {
	if p == nil {
		return m.applyStyle(helpStyle, "(empty corpus; use g to generate a program)")
	}
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(p.String(), "\n"), "\n") {
		sb.WriteString("  ")
		sb.WriteString(m.styleListingLine(line))
		sb.WriteString("\n")
	}
	return sb.String()
}

// styleListingLine highlights the defined variable and the opcode of one
// listing line.
func (m model) styleListingLine(line string) string {
	if m.options.NoColor {
		return line
	}
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]
	if lhs, rhs, found := strings.Cut(trimmed, " <- "); found {
		return indent + m.applyStyle(variableStyle, lhs) + " <- " + m.applyStyle(opcodeStyle, firstWord(rhs)) + strings.TrimPrefix(rhs, firstWord(rhs))
	}
	return indent + m.applyStyle(opcodeStyle, firstWord(trimmed)) + strings.TrimPrefix(trimmed, firstWord(trimmed))
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// View renders the inspector.
func (m model) View() string {
	var sb strings.Builder
	sb.WriteString(m.applyStyle(titleStyle, "FuzzIL corpus inspector"))
	sb.WriteString("\n\n")

	if m.current != nil {
		header := fmt.Sprintf("program %d/%d  %s  (%d instructions)",
			m.index+1, m.corpus.Size(), m.current.ID, m.current.Size())
		sb.WriteString(m.applyStyle(infoStyle, header))
		sb.WriteString("\n")
	}
	sb.WriteString(m.renderListing(m.current))

	if m.preview != nil {
		sb.WriteString("\n")
		sb.WriteString(m.applyStyle(infoStyle, "mutation preview:"))
		sb.WriteString("\n")
		sb.WriteString(m.renderListing(m.preview))
	}

	sb.WriteString("\n")
	if m.working {
		sb.WriteString(m.spin.View())
		sb.WriteString(" mutating...\n")
	} else {
		sb.WriteString(m.input.View())
		sb.WriteString("\n")
	}

	if m.status != "" {
		style := infoStyle
		if m.isError {
			style = errorStyle
		}
		sb.WriteString(m.applyStyle(style, m.status))
		sb.WriteString("\n")
	}
	sb.WriteString(m.applyStyle(helpStyle, "h: help  ctrl+c: exit"))
	sb.WriteString("\n")
	return sb.String()
}
