package engine

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"db-sync/internal/schema"

	"github.com/gosuri/uiprogress"
	"github.com/gosuri/uiprogress/util/strutil"
	"github.com/rs/zerolog"
)

// Listener receives task lifecycle events. Started and Finished may be
// called from several goroutines.
type Listener interface {
	Registered(table schema.TableRef)
	Started(table schema.TableRef)
	Finished(table schema.TableRef, result Result, elapsed time.Duration)
}

// Reporter is the user facing report sink.
type Reporter interface {
	Warn(text string)
	Log(text string)
}

// LogReporter writes the report through zerolog.
type LogReporter struct {
	Logger zerolog.Logger
}

func (r LogReporter) Warn(text string) { r.Logger.Warn().Msg(text) }

func (r LogReporter) Log(text string) { r.Logger.Info().Msg(text) }

const (
	successMark = "✔"
	failureMark = "✖"
)

// FinishText is the finish line for a result: the status mark, the table,
// then the first line of the message or the elapsed seconds.
func FinishText(table schema.TableRef, result Result, elapsed time.Duration) string {
	mark := successMark
	if result.Failed() {
		mark = failureMark
	}
	return fmt.Sprintf("%s %s %s", mark, table, finishDetail(result, elapsed))
}

func finishDetail(result Result, elapsed time.Duration) string {
	if result.Message != "" {
		first, _, _ := strings.Cut(result.Message, "\n")
		return first
	}
	return fmt.Sprintf("- %.1fs", elapsed.Seconds())
}

// LineListener emits one line per start and one per finish.
type LineListener struct {
	Reporter Reporter
}

func (l LineListener) Registered(schema.TableRef) {}

func (l LineListener) Started(table schema.TableRef) {
	l.Reporter.Log("Syncing " + table.String())
}

func (l LineListener) Finished(table schema.TableRef, result Result, elapsed time.Duration) {
	l.Reporter.Log(FinishText(table, result, elapsed))
}

// BarListener renders one live indicator per task.
type BarListener struct {
	progress *uiprogress.Progress

	mu    sync.Mutex
	bars  map[schema.TableRef]*uiprogress.Bar
	state map[schema.TableRef]string
	width uint
}

func NewBarListener(out io.Writer) *BarListener {
	p := uiprogress.New()
	p.SetOut(out)
	return &BarListener{
		progress: p,
		bars:     make(map[schema.TableRef]*uiprogress.Bar),
		state:    make(map[schema.TableRef]string),
	}
}

func (l *BarListener) Start() { l.progress.Start() }

func (l *BarListener) Stop() { l.progress.Stop() }

func (l *BarListener) Registered(table schema.TableRef) {
	l.mu.Lock()
	if n := uint(len(table.String())); n > l.width {
		l.width = n
	}
	l.state[table] = "pending"
	l.mu.Unlock()

	// decorators take l.mu, so the bar is configured without holding it
	bar := l.progress.AddBar(1)
	bar.Width = 20
	bar.PrependFunc(func(*uiprogress.Bar) string {
		l.mu.Lock()
		defer l.mu.Unlock()
		return strutil.Resize(table.String(), l.width)
	})
	bar.AppendFunc(func(*uiprogress.Bar) string {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.state[table]
	})

	l.mu.Lock()
	l.bars[table] = bar
	l.mu.Unlock()
}

func (l *BarListener) Started(table schema.TableRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state[table] = "syncing"
}

func (l *BarListener) Finished(table schema.TableRef, result Result, elapsed time.Duration) {
	l.mu.Lock()
	mark := successMark
	if result.Failed() {
		mark = failureMark
	}
	l.state[table] = mark + " " + finishDetail(result, elapsed)
	bar := l.bars[table]
	l.mu.Unlock()
	if bar != nil {
		_ = bar.Set(1)
	}
}

// MultiListener fans events out to several listeners.
type MultiListener []Listener

func (m MultiListener) Registered(table schema.TableRef) {
	for _, l := range m {
		l.Registered(table)
	}
}

func (m MultiListener) Started(table schema.TableRef) {
	for _, l := range m {
		l.Started(table)
	}
}

func (m MultiListener) Finished(table schema.TableRef, result Result, elapsed time.Duration) {
	for _, l := range m {
		l.Finished(table, result, elapsed)
	}
}
