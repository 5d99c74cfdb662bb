package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// predictionLabel colors a Pass/Fail prediction.
func predictionLabel(p string) string {
	switch p {
	case "Pass":
		return colorize(colorGreen, p)
	case "Fail":
		return colorize(colorRed, p)
	}
	return p
}

// writeMetrics renders a metrics response as a short report.
func writeMetrics(w io.Writer, m metricsResponse) {
	if m.Error != nil {
		fmt.Fprintln(w, colorize(colorYellow, *m.Error))
		return
	}
	fmt.Fprintf(w, "%s %.4f\n", colorize(colorBold, "Accuracy: "), m.Accuracy)
	fmt.Fprintf(w, "%s %.4f\n", colorize(colorBold, "Precision:"), m.Precision)
	fmt.Fprintf(w, "%s %.4f\n", colorize(colorBold, "Recall:   "), m.Recall)
	fmt.Fprintf(w, "%s %.4f\n", colorize(colorBold, "F1:       "), m.F1)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Confusion matrix (rows: actual, cols: predicted)")
	fmt.Fprintf(w, "%10s %8s %8s\n", "", "Pass", "Fail")
	fmt.Fprintf(w, "%10s %8d %8d\n", "Pass", m.Matrix[0][0], m.Matrix[0][1])
	fmt.Fprintf(w, "%10s %8d %8d\n", "Fail", m.Matrix[1][0], m.Matrix[1][1])
	if n := len(m.Graph); n > 0 {
		fmt.Fprintf(w, "\nLog-loss: %.4f after round 1, %.4f after round %d\n", m.Graph[0], m.Graph[n-1], n)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
