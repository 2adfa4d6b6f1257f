package progress

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 100 * time.Millisecond
	messageWidth    = 48
	barWidth        = 30
)

var (
	rateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Width(12)
	msgStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	bytesStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

type tickMsg time.Time
type stopMsg struct{}

// TeaSink renders one progress bar per active job with bubbletea. Finished
// jobs are printed above the bars and dropped from the live view.
type TeaSink struct {
	program *tea.Program
	done    chan struct{}
	w       io.Writer

	// printMu orders Println against Close. Once stopped is set, lines go
	// straight to w after the program exits.
	printMu sync.Mutex
	stopped bool

	mu     sync.Mutex
	nextID int
	jobs   map[int]*job

	closeOnce sync.Once
}

// NewTeaSink starts a bubbletea program writing to w.
func NewTeaSink(w io.Writer) *TeaSink {
	s := &TeaSink{
		done: make(chan struct{}),
		w:    w,
		jobs: make(map[int]*job),
	}
	m := teaModel{
		sink: s,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
	}
	s.program = tea.NewProgram(m,
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	go func() {
		defer close(s.done)
		_, _ = s.program.Run()
	}()
	return s
}

func (s *TeaSink) NewJob(total int64) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	j := newJob(s.nextID, total, s.onChange)
	s.jobs[j.id] = j
	return j
}

func (s *TeaSink) Println(text string) {
	s.printMu.Lock()
	direct := s.stopped || s.exited()
	if !direct {
		s.program.Println(text)
	}
	s.printMu.Unlock()
	if !direct {
		return
	}

	<-s.done
	s.printMu.Lock()
	defer s.printMu.Unlock()
	fmt.Fprintln(s.w, text)
}

// Close stops the program after a final render.
func (s *TeaSink) Close() error {
	s.closeOnce.Do(func() {
		s.printMu.Lock()
		s.stopped = true
		if !s.exited() {
			s.program.Send(stopMsg{})
		}
		s.printMu.Unlock()
		<-s.done
	})
	return nil
}

func (s *TeaSink) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *TeaSink) onChange(j *job, event string) {
	if event != "finish" {
		return
	}
	snap := j.snapshot()
	s.mu.Lock()
	delete(s.jobs, j.id)
	s.mu.Unlock()
	s.Println(doneStyle.Render(fmt.Sprintf("%s %s", snap.Message, bytesStyle.Render(FormatBytes(snap.Position)))))
}

func (s *TeaSink) snapshots() []Snapshot {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	snaps := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		snaps = append(snaps, j.snapshot())
	}
	sort.Slice(snaps, func(a, b int) bool { return snaps[a].ID < snaps[b].ID })
	return snaps
}

type teaModel struct {
	sink *TeaSink
	bar  progress.Model
	rows []Snapshot
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m teaModel) Init() tea.Cmd {
	return tick()
}

func (m teaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.rows = m.sink.snapshots()
		return m, tick()
	case stopMsg:
		m.rows = m.sink.snapshots()
		return m, tea.Quit
	case tea.WindowSizeMsg:
		w := msg.Width - messageWidth - 40
		if w < 10 {
			w = 10
		}
		if w > 60 {
			w = 60
		}
		m.bar.Width = w
	}
	return m, nil
}

func (m teaModel) View() string {
	var b strings.Builder
	for _, r := range m.rows {
		b.WriteString(renderRow(m.bar, r))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderRow(bar progress.Model, r Snapshot) string {
	return fmt.Sprintf("%s %s %s %s",
		rateStyle.Render("["+FormatRate(r.Rate)+"]"),
		bar.ViewAs(r.Percent()),
		msgStyle.Render(fit(r.Message, messageWidth)),
		bytesStyle.Render(FormatBytes(r.Position)+"/"+FormatBytes(r.Total)),
	)
}

// fit truncates or pads s to exactly n runes.
func fit(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n-1]) + "…"
	}
	return s + strings.Repeat(" ", n-len(runes))
}
