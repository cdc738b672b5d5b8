// Package ui provides colored terminal output for the CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgWhite)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	stepColor    = color.New(color.FgBlue)
)

// Header prints a banner with the given title.
func Header(title string) {
	line := strings.Repeat("=", headerWidth)
	headerColor.Println(line)
	headerColor.Println(center(title, headerWidth))
	headerColor.Println(line)
}

// Step prints a numbered progress step.
func Step(current, total int, message string) {
	stepColor.Printf("[%d/%d] %s\n", current, total, message)
}

// Success prints a success message with a check mark.
func Success(message string) {
	successColor.Printf("✓ %s\n", message)
}

// Info prints an informational message.
func Info(message string) {
	infoColor.Printf("  %s\n", message)
}

// Warning prints a warning message.
func Warning(message string) {
	warnColor.Printf("⚠ %s\n", message)
}

// Error prints an error message.
func Error(message string) {
	errorColor.Printf("✗ %s\n", message)
}

// BlueText prints text in blue.
func BlueText(text string) {
	stepColor.Println(text)
}

// YellowText prints text in yellow.
func YellowText(text string) {
	warnColor.Println(text)
}

// Summary prints a labeled count line, used for parse result totals.
func Summary(label string, count int) {
	infoColor.Printf("  %-24s %d\n", label+":", count)
}

// center left-pads text to sit in the middle of width. Text wider than
// width is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return fmt.Sprintf("%s%s", strings.Repeat(" ", padding), text)
}
