package main

import (
	"github.com/fatih/color"
)

// styles holds color formatters for scan output, following the teacher's
// report.go palette.
type styles struct {
	heading  *color.Color
	id       *color.Color
	ruleName *color.Color
	metadata *color.Color
}

func newStyles(enabled bool) *styles {
	s := &styles{
		heading:  color.New(color.Bold),
		id:       color.New(color.FgHiGreen),
		ruleName: color.New(color.Bold, color.FgHiBlue),
		metadata: color.New(color.FgYellow),
	}
	if !enabled {
		s.heading.DisableColor()
		s.id.DisableColor()
		s.ruleName.DisableColor()
		s.metadata.DisableColor()
	}
	return s
}
