package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gisa-chat/server/internal/agent/dataset"
	"github.com/gisa-chat/server/internal/agent/model"
)

const (
	defaultListLimit = 5
	dateLayout       = "02/01/2006"
	askDetails       = "Vuoi vedere l'elenco completo?"
)

// listing splits lines into an inline head and the full list as details.
type listing struct {
	Inline  string
	Details string
	More    bool
}

func buildListing(title string, lines []string, limit int) listing {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	shown := lines
	if limit > 0 && len(lines) > limit {
		shown = lines[:limit]
	}
	writeBullets(&b, shown)
	if len(shown) == len(lines) {
		return listing{Inline: strings.TrimRight(b.String(), "\n")}
	}
	fmt.Fprintf(&b, "\n_...e altri %d._ %s", len(lines)-len(shown), askDetails)

	var d strings.Builder
	d.WriteString(title)
	d.WriteString("\n\n")
	writeBullets(&d, lines)
	return listing{Inline: b.String(), Details: strings.TrimRight(d.String(), "\n"), More: true}
}

func writeBullets(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
}

func bold(s string) string {
	return "**" + s + "**"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "mai"
	}
	return t.Format(dateLayout)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatPiano(p model.Piano) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", bold("Piano "+p.Code), p.Title)
	if p.Area != "" {
		fmt.Fprintf(&b, " (%s)", p.Area)
	}
	if p.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Description)
	}
	return b.String()
}

func pianoLine(p model.Piano) string {
	return fmt.Sprintf("%s: %s", bold(p.Code), p.Title)
}

func activityLine(a model.PianoActivity) string {
	if a.Category == "" {
		return a.Activity
	}
	return fmt.Sprintf("%s (%s)", a.Activity, a.Category)
}

func establishmentLine(e model.Establishment) string {
	return fmt.Sprintf("%s [%s] %s, %s", bold(e.Name), e.ID, e.Activity, e.Comune)
}

func rankedLine(r dataset.RankedEstablishment) string {
	return fmt.Sprintf("%s [%s] %s, %s: punteggio %s, NC %d, ultimo controllo %s",
		bold(r.Name), r.ID, r.Activity, r.Comune, formatScore(r.Score), r.NCCount, formatDate(r.LastControl))
}

func riskActivityLine(a dataset.RankedActivity) string {
	return fmt.Sprintf("%s: rischio %s, NC %d", bold(a.Activity), formatScore(a.Score), a.NCCount)
}

func controlLine(c model.ControlRecord) string {
	line := fmt.Sprintf("%s piano %s: %s", formatDate(c.Date), c.PianoCode, c.Outcome)
	if c.NCCount > 0 {
		line += fmt.Sprintf(" (%d NC", c.NCCount)
		if c.NCCategory != "" {
			line += ", " + c.NCCategory
		}
		line += ")"
	}
	return line
}

func progressLine(p model.PlanProgress) string {
	line := fmt.Sprintf("%s: eseguiti %d su %d", bold("Piano "+p.PianoCode), p.Executed, p.Planned)
	if p.Delayed() {
		line += fmt.Sprintf(", mancano %d controlli", p.Missing())
	}
	if p.UOC != "" {
		line += " (" + p.UOC + ")"
	}
	return line
}
