// Package summary renders snapshot records as short French status sentences,
// suitable for a voice assistant or a terminal.
package summary

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lilletrafic/subway-monitor/internal/disruptions"
	"github.com/lilletrafic/subway-monitor/internal/snapshot"
)

const (
	Unavailable  = "Le service Lille Trafic est actuellement indisponible."
	AllLinesOK   = "Aucune perturbation n'est en cours sur les lignes de métro !"
	lineIDPrefix = "line:TRA:ME"
)

// LineID maps a line number ("1", "2") to its monitored line id.
func LineID(number string) (string, error) {
	lineID := lineIDPrefix + strings.TrimSpace(number)
	if !disruptions.IsMonitored(lineID) {
		return "", fmt.Errorf("unknown subway line %q", number)
	}
	return lineID, nil
}

// Render summarizes every monitored line of rec. A nil record means no snapshot is
// available.
func Render(rec *snapshot.Record) string {
	if rec == nil {
		return Unavailable
	}
	if !rec.HasDisruptions() {
		return AllLinesOK
	}

	var parts []string
	for _, lineID := range disruptions.MonitoredLines {
		if messages := rec.Messages(lineID); len(messages) > 0 {
			parts = append(parts, lineSentence(lineNumber(lineID), messages))
		}
	}
	return strings.Join(parts, " ")
}

// RenderLine summarizes a single line, identified by its number.
func RenderLine(rec *snapshot.Record, number string) (string, error) {
	lineID, err := LineID(number)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return Unavailable, nil
	}

	messages := rec.Messages(lineID)
	if len(messages) == 0 {
		return fmt.Sprintf("Aucune perturbation n'est en cours sur la ligne de métro %s !", lineNumber(lineID)), nil
	}
	return lineSentence(lineNumber(lineID), messages), nil
}

func lineSentence(number string, messages []string) string {
	var b strings.Builder
	count := len(messages)
	if count > 1 {
		b.WriteString(strconv.Itoa(count) + " perturbations sont en cours")
	} else {
		b.WriteString("1 perturbation est en cours")
	}
	b.WriteString(" sur la ligne " + number + " du métro.")
	for _, m := range messages {
		b.WriteString(" " + strings.TrimSpace(m))
	}
	return b.String()
}

func lineNumber(lineID string) string {
	return strings.TrimPrefix(lineID, lineIDPrefix)
}
