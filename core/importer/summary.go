package importer

import (
	"fmt"
	"strings"

	"github.com/trezcool/registrar/core"
)

// capped keeps the first max lines and counts the rest.
type capped struct {
	max   int
	Lines []string `json:"lines"`
	More  int      `json:"more"`
}

func (c *capped) add(line string) {
	if len(c.Lines) < c.max {
		c.Lines = append(c.Lines, line)
		return
	}
	c.More++
}

func (c capped) write(b *strings.Builder) {
	for _, l := range c.Lines {
		b.WriteString("\n  ")
		b.WriteString(l)
	}
	if c.More > 0 {
		fmt.Fprintf(b, "\n  ...and %d more", c.More)
	}
}

// Result summarizes an import run. Imported + Duplicate + Skipped always equals Total.
type Result struct {
	core.Tally
	Total      int      `json:"total"`
	Created    []string `json:"created"` // ids of the imported students
	Errors     capped   `json:"errors"`
	Duplicates capped   `json:"duplicates"`
	Cancelled  bool     `json:"cancelled"`
}

func newResult(total, maxErrors, maxDuplicates int) Result {
	return Result{
		Total:      total,
		Created:    []string{},
		Errors:     capped{max: maxErrors, Lines: []string{}},
		Duplicates: capped{max: maxDuplicates, Lines: []string{}},
	}
}

// Kind is the notice kind matching the outcome.
func (res Result) Kind() string {
	switch {
	case res.Cancelled || (res.Imported == 0 && res.Total > 0):
		return core.NoticeWarning
	case res.Skipped > 0 || res.Duplicate > 0:
		return core.NoticeInfo
	default:
		return core.NoticeSuccess
	}
}

// Summary renders the result for people, eg:
//
//	Imported 2 of 3 rows (0 duplicates, 1 skipped).
//	Errors:
//	  Row 2: missing required fields: LRN
func (res Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Imported %d of %d rows (%d duplicates, %d skipped).", res.Imported, res.Total, res.Duplicate, res.Skipped)
	if len(res.Errors.Lines) > 0 {
		b.WriteString("\nErrors:")
		res.Errors.write(&b)
	}
	if len(res.Duplicates.Lines) > 0 {
		b.WriteString("\nDuplicates:")
		res.Duplicates.write(&b)
	}
	return b.String()
}
