package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/MCT-Salman/invocca/pkg/client"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// columns renders one resource kind as table rows.
type columns[T any] struct {
	headers []string
	row     func(T) []string
}

func printResources[T any](w io.Writer, format string, items []types.Resource[T], cols columns[T]) error {
	switch format {
	case outputJSON:
		return writeJSON(w, items)
	case outputYAML:
		return writeYAML(w, items)
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, append([]string{item.Metadata.ID}, cols.row(item.Spec)...))
	}
	return writeTable(w, append([]string{"ID"}, cols.headers...), rows)
}

func printResource[T any](w io.Writer, format string, item *types.Resource[T], cols columns[T]) error {
	switch format {
	case outputJSON:
		return writeJSON(w, item)
	case outputYAML:
		return writeYAML(w, item)
	}
	values := append([]string{item.Metadata.ID}, cols.row(item.Spec)...)
	headers := append([]string{"ID"}, cols.headers...)
	rows := make([][]string, 0, len(headers)+2)
	for i, h := range headers {
		rows = append(rows, []string{h, values[i]})
	}
	rows = append(rows,
		[]string{"ETag", item.Metadata.ETag},
		[]string{"Updated", item.Metadata.UpdatedAt.UTC().Format(timeLayout)})
	return writeTable(w, []string{"Field", "Value"}, rows)
}

func printDashboard(w io.Writer, format string, res *types.Resource[types.Dashboard]) error {
	switch format {
	case outputJSON:
		return writeJSON(w, res.Spec)
	case outputYAML:
		return writeYAML(w, res.Spec)
	}
	d := res.Spec
	rows := [][]string{
		{"Halls", fmt.Sprintf("%d (%d active)", d.Halls, d.ActiveHalls)},
		{"Invitations", fmt.Sprintf("%d (%d guests)", d.Invitations, d.Guests)},
		{"Open reports", fmt.Sprint(d.OpenReports)},
		{"Ratings", fmt.Sprintf("%d (avg %.1f)", d.Ratings, d.AverageRating)},
	}
	statuses := make([]string, 0, len(d.Events))
	for status := range d.Events {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		rows = append(rows, []string{"Events " + status, fmt.Sprint(d.Events[status])})
	}
	return writeTable(w, []string{"Metric", "Value"}, rows)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML goes through JSON so field names match the API's.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// describe turns API errors into CLI messages listing field errors.
func describe(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	var b strings.Builder
	msg := apiErr.ServerMessage()
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	fmt.Fprintf(&b, "%s (HTTP %d)", msg, apiErr.StatusCode)
	for _, fe := range apiErr.FieldErrors() {
		fmt.Fprintf(&b, "\n  %s: %s", fe.Field, fe.Message)
	}
	return errors.New(b.String())
}
