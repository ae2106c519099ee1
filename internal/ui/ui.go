// Package ui owns terminal output: a logrus-backed warning sink for the
// assembly and runtime layers, and styled session banners.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
}

// SetVerbose switches the logger to debug level.
func SetVerbose(verbose bool) {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
}

// Sink forwards assembly and lifecycle messages to the logger.
type Sink struct{}

func (Sink) Warnf(format string, args ...any) { log.Warnf(format, args...) }
func (Sink) Infof(format string, args ...any) { log.Infof(format, args...) }

// Debugf logs at debug level, visible only with --verbose.
func Debugf(format string, args ...any) { log.Debugf(format, args...) }

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Banner prints the session header: what is being run and where.
func Banner(runtimeName, image, workdir string) {
	fmt.Fprintln(os.Stderr, headerStyle.Render("cage")+" "+dimStyle.Render(runtimeName+" · "+image))
	fmt.Fprintln(os.Stderr, dimStyle.Render("  "+workdir))
}

// Step prints a progress line for a lifecycle phase.
func Step(format string, args ...any) {
	fmt.Fprintln(os.Stderr, dimStyle.Render("→ "+fmt.Sprintf(format, args...)))
}
