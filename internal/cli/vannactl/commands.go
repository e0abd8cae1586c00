package vannactl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const maxCellWidth = 60

type askResponse struct {
	SQL     string           `json:"sql"`
	Results []map[string]any `json:"results"`
	Message string           `json:"message"`
}

type trainingExample struct {
	ID       string `json:"id"`
	Kind     string `json:"training_data_type"`
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Content  string `json:"content"`
}

func (a *app) askCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question in plain language and print the generated SQL and rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"query": strings.Join(args, " ")}
			if a.rawJSON {
				return a.printRaw(cmd, http.MethodPost, "/vanna/ask", payload)
			}
			var resp askResponse
			if err := a.client.doJSON(cmd.Context(), http.MethodPost, "/vanna/ask", payload, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if resp.SQL == "" {
				_, _ = fmt.Fprint(out, pterm.Warning.Sprintln(resp.Message))
				return nil
			}
			_, _ = fmt.Fprintln(out, pterm.DefaultBox.WithTitle("SQL").WithPadding(1).Sprint(resp.SQL))
			if len(resp.Results) > 0 {
				if err := renderRecords(out, resp.Results); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprint(out, pterm.Success.Sprintfln("%s (%d row(s))", resp.Message, len(resp.Results)))
			return nil
		},
	}
}

func (a *app) trainCommand() *cobra.Command {
	var question, sql, ddl, documentation string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Add a question/SQL pair, DDL or documentation to the training data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := map[string]string{
				"question":      question,
				"sql":           sql,
				"ddl":           ddl,
				"documentation": documentation,
			}
			var resp struct {
				ID string `json:"id"`
			}
			if err := a.client.doJSON(cmd.Context(), http.MethodPost, "/vanna/train", payload, &resp); err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Trained %s", resp.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&question, "question", "", "Question answered by --sql")
	cmd.Flags().StringVar(&sql, "sql", "", "SQL query (the question is generated when omitted)")
	cmd.Flags().StringVar(&ddl, "ddl", "", "DDL or schema description")
	cmd.Flags().StringVar(&documentation, "documentation", "", "Business documentation")
	return cmd
}

func (a *app) trainingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Inspect and prune training data",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List training examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.rawJSON {
				return a.printRaw(cmd, http.MethodGet, "/vanna/training-data", nil)
			}
			var resp struct {
				TrainingData []trainingExample `json:"training_data"`
			}
			if err := a.client.doJSON(cmd.Context(), http.MethodGet, "/vanna/training-data", nil, &resp); err != nil {
				return err
			}
			data := pterm.TableData{{"ID", "Type", "Question", "Content"}}
			for _, example := range resp.TrainingData {
				content := example.Content
				if example.SQL != "" {
					content = example.SQL
				}
				data = append(data, []string{example.ID, example.Kind, truncate(example.Question), truncate(content)})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return fmt.Errorf("render training data: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), table)
			_, _ = fmt.Fprint(cmd.OutOrStdout(), pterm.Info.Sprintfln("%d training example(s)", len(resp.TrainingData)))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a training example by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.client.do(cmd.Context(), http.MethodDelete, "/vanna/training-data/"+url.PathEscape(args[0]), nil); err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Removed %s", args[0]))
			return nil
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func (a *app) backupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the local training store to the backup bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.backupService(cmd.Context())
			if err != nil {
				return err
			}
			info, err := svc.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Uploaded %d example(s) to %s (%d bytes)", info.Examples, info.Key, info.Size))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.backupService(cmd.Context())
			if err != nil {
				return err
			}
			snapshots, err := svc.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			if a.rawJSON {
				return writeJSON(cmd.OutOrStdout(), snapshots)
			}
			data := pterm.TableData{{"Key", "Taken at", "Examples", "Bytes"}}
			for _, snapshot := range snapshots {
				examples := "-"
				if snapshot.Examples > 0 {
					examples = strconv.Itoa(snapshot.Examples)
				}
				data = append(data, []string{
					snapshot.Key,
					snapshot.TakenAt.Format("2006-01-02 15:04:05.000Z07:00"),
					examples,
					strconv.FormatInt(snapshot.Size, 10),
				})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return fmt.Errorf("render snapshots: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.backupService(cmd.Context())
			if err != nil {
				return err
			}
			deleted, err := svc.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, key := range deleted {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Deleted %d snapshot(s)", len(deleted)))
			return nil
		},
	}
	prune.Flags().IntVar(&keep, "keep", 5, "Number of snapshots to keep")

	cmd.AddCommand(list, prune)
	return cmd
}

func (a *app) restoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [snapshot-key]",
		Short: "Restore training data into the local store (latest snapshot by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.backupService(cmd.Context())
			if err != nil {
				return err
			}
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			restored, err := svc.Restore(cmd.Context(), key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Restored %d example(s)", restored))
			return nil
		},
	}
}

func (a *app) printRaw(cmd *cobra.Command, method, path string, payload any) error {
	raw, err := a.client.do(cmd.Context(), method, path, payload)
	if err != nil {
		return err
	}
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), pretty)
		return nil
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

// renderRecords prints result rows as a table with columns in name order.
func renderRecords(out io.Writer, records []map[string]any) error {
	columnSet := map[string]struct{}{}
	for _, record := range records {
		for column := range record {
			columnSet[column] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for column := range columnSet {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	data := pterm.TableData{columns}
	for _, record := range records {
		row := make([]string, len(columns))
		for i, column := range columns {
			if value, ok := record[column]; ok && value != nil {
				row[i] = truncate(fmt.Sprint(value))
			}
		}
		data = append(data, row)
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render results: %w", err)
	}
	_, _ = fmt.Fprintln(out, table)
	return nil
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func truncate(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if len(value) <= maxCellWidth {
		return value
	}
	return value[:maxCellWidth-3] + "..."
}
