package training

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
)

// TerminalProgress prints step outcomes with pterm prefixes.
type TerminalProgress struct {
	Out io.Writer
}

func (p TerminalProgress) StepSucceeded(step Step) {
	_, _ = fmt.Fprint(p.Out, pterm.Success.Sprintln(step.Done))
}

func (p TerminalProgress) StepFailed(step Step, err error) {
	_, _ = fmt.Fprint(p.Out, pterm.Warning.Sprintfln("Could not train %s: %v", step.Name, err))
}

// Summary renders the report as a table followed by a one-line verdict.
func Summary(report Report) (string, error) {
	data := pterm.TableData{{"Step", "Result"}}
	for _, name := range report.Succeeded {
		data = append(data, []string{name, "ok"})
	}
	for _, failure := range report.Failed {
		data = append(data, []string{failure.Step, failure.Err.Error()})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render training summary: %w", err)
	}

	total := strconv.Itoa(len(report.Succeeded) + len(report.Failed))
	verdict := pterm.Success.Sprintfln("Training complete: %d of %s steps succeeded", len(report.Succeeded), total)
	if len(report.Failed) > 0 {
		verdict = pterm.Warning.Sprintfln("Training finished with %d failed step(s) out of %s", len(report.Failed), total)
	}
	return table + "\n" + verdict, nil
}
