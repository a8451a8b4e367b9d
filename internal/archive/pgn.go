package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Clock/internal/domain"
)

// BuildPGN renders a game record with the usual seven-tag roster plus clock tags.
func BuildPGN(g *domain.GameRecord) string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	white, black := "Player", "Engine"
	if g.PlayerSide == domain.Black {
		white, black = black, white
	}
	pgnResult := g.PGNResult()

	// headers
	b.WriteString("[Event \"Cheese Clock\"]\n")
	b.WriteString("[Site \"local\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", white))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", black))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", pgnResult))
	if tc := formatTimeControl(g.TimeControl); tc != "" {
		b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", tc))
	}
	if fen := strings.TrimSpace(g.StartFEN); fen != "" {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(fen)))
	}
	if method := strings.TrimSpace(g.ResultMethod); method != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(method))))
	}
	b.WriteString("\n")

	// a black-to-move start numbers the first move "N..."
	ply0, moveNo := 0, 1
	if fields := strings.Fields(g.StartFEN); len(fields) >= 6 {
		if fields[1] == "b" {
			ply0 = 1
		}
		if n, err := fmt.Sscanf(fields[5], "%d", &moveNo); n != 1 || err != nil || moveNo < 1 {
			moveNo = 1
		}
	}
	for i, san := range g.MovesSAN {
		ply := ply0 + i
		switch {
		case ply%2 == 0:
			b.WriteString(fmt.Sprintf("%d. ", moveNo+ply/2))
		case i == 0:
			b.WriteString(fmt.Sprintf("%d... ", moveNo+ply/2))
		}
		b.WriteString(strings.TrimSpace(san))
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func formatTimeControl(tc domain.TimeControl) string {
	if tc.Base <= 0 {
		return ""
	}
	base := trimFloat(tc.Base.Seconds())
	if tc.Increment <= 0 {
		return base
	}
	return base + "+" + trimFloat(tc.Increment.Seconds())
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
