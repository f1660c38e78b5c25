package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"cardcast/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// serverLines summarizes the server process and its capture session.
func serverLines(status *api.ServerStatus, colorize bool) []string {
	lines := renderSectionHeader("Server", colorize)
	if !status.Running {
		lines = append(lines, renderStatusLine("Server", statusWarn, "Not running (local view)", colorize))
	} else {
		lines = append(lines, renderStatusLine("Server", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	}
	switch {
	case status.ActiveSession != nil:
		s := status.ActiveSession
		lines = append(lines, renderStatusLine("Recording", statusInfo,
			fmt.Sprintf("%s frame %d/%d", s.ID, s.Frames, s.ExpectedFrames), colorize))
	case status.LastSession != nil:
		s := status.LastSession
		kind := statusOK
		message := fmt.Sprintf("%s %s (%d frames)", s.ID, s.State, s.Frames)
		if s.Error != "" {
			kind = statusError
			message += ": " + s.Error
		}
		lines = append(lines, renderStatusLine("Last session", kind, message, colorize))
	default:
		lines = append(lines, renderStatusLine("Recording", statusInfo, "Idle", colorize))
	}
	lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	return lines
}

func exportCountLines(counts map[string]int, colorize bool) []string {
	lines := renderSectionHeader("Exports", colorize)
	for _, status := range []string{"recording", "done", "error"} {
		kind := statusInfo
		if status == "error" && counts[status] > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(titleCase(status), kind, fmt.Sprint(counts[status]), colorize))
	}
	return lines
}

// dependencyLines renders a summary line, one line per dependency and a
// trailing list of missing required tools when any are absent.
func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	var missing []string
	warn := false
	body := make([]string, 0, len(deps))
	for _, dep := range deps {
		switch {
		case dep.Available:
			message := "Ready"
			if dep.Version != "" {
				message += " " + dep.Version
			}
			if dep.Command != "" {
				message += fmt.Sprintf(" (command: %s)", dep.Command)
			}
			body = append(body, renderStatusLine(dep.Name, statusOK, message, colorize))
		case dep.Optional:
			warn = true
			body = append(body, renderStatusLine(dep.Name, statusWarn, detailOr(dep.Detail, "not available"), colorize))
		default:
			missing = append(missing, dep.Name)
			body = append(body, renderStatusLine(dep.Name, statusError, detailOr(dep.Detail, "not available"), colorize))
		}
	}

	summaryKind, summary := statusOK, "All dependencies available"
	switch {
	case len(missing) > 0:
		summaryKind, summary = statusError, fmt.Sprintf("%d required missing", len(missing))
	case warn:
		summaryKind, summary = statusWarn, "Optional dependencies unavailable"
	}
	lines := []string{renderStatusLine("Summary", summaryKind, summary, colorize)}
	lines = append(lines, body...)
	if len(missing) > 0 {
		lines = append(lines, statusIndent+"Missing dependencies: "+strings.Join(missing, ", "))
	}
	return lines
}

func checkLines(checks []api.CheckResult, colorize bool) []string {
	lines := make([]string, 0, len(checks))
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}

func detailOr(detail, fallback string) string {
	if strings.TrimSpace(detail) == "" {
		return fallback
	}
	return detail
}
