// Package notify delivers progress toasts and completion alerts.
//
// Operations emit short, non-blocking toasts while they work and exactly one
// Alert with their summary counts at the end. Callers never depend on the
// acknowledgement returned by Alert.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink receives operation notifications.
type Sink interface {
	// Toast is a non-blocking progress notice shown for about seconds.
	Toast(msg, title string, seconds int)
	// Alert is a completion or error notice. It reports whether the notice
	// was acknowledged.
	Alert(msg string) bool
}

// Log writes notifications as structured log records.
type Log struct {
	Logger *slog.Logger
}

func (l Log) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l Log) Toast(msg, title string, seconds int) {
	l.logger().Info(msg, "title", title, "seconds", seconds)
}

func (l Log) Alert(msg string) bool {
	l.logger().Info(msg, "alert", true)
	return true
}

// Writer prints alerts to W, one per line. Toasts are dropped unless
// Verbose is set.
type Writer struct {
	W       io.Writer
	Verbose bool

	mu sync.Mutex
}

func (w *Writer) Toast(msg, title string, _ int) {
	if !w.Verbose {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if title != "" {
		fmt.Fprintf(w.W, "[%s] %s\n", title, msg)
		return
	}
	fmt.Fprintln(w.W, msg)
}

func (w *Writer) Alert(msg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.W, msg)
	return err == nil
}

// Multi fans notifications out to every sink. Alert is acknowledged when
// any sink acknowledges it.
type Multi []Sink

func (m Multi) Toast(msg, title string, seconds int) {
	for _, s := range m {
		s.Toast(msg, title, seconds)
	}
}

func (m Multi) Alert(msg string) bool {
	ack := false
	for _, s := range m {
		if s.Alert(msg) {
			ack = true
		}
	}
	return ack
}

// Discard drops everything.
type Discard struct{}

func (Discard) Toast(string, string, int) {}
func (Discard) Alert(string) bool         { return false }

// Toast is one recorded toast.
type Toast struct {
	Msg     string
	Title   string
	Seconds int
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
	alerts []string
}

func (r *Recorder) Toast(msg, title string, seconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, Toast{msg, title, seconds})
}

func (r *Recorder) Alert(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, msg)
	return true
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}
