package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MCT-Salman/invocca/pkg/client"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const timeLayout = "2006-01-02 15:04"

type resourceDef[T any] struct {
	name  string
	alias string
	res   func(*client.Client) *client.Resources[T]
	cols  columns[T]
	extra []*cobra.Command
}

func resourceCommands(a *app) []*cobra.Command {
	return []*cobra.Command{
		newResourceCmd(a, resourceDef[types.Hall]{
			name: types.ResourceHalls, alias: "hall", res: (*client.Client).Halls,
			cols: columns[types.Hall]{
				headers: []string{"Name", "Location", "Capacity", "Price/h", "Manager", "Active"},
				row: func(h types.Hall) []string {
					return []string{h.Name, h.Location, strconv.Itoa(h.Capacity), ftoa(h.PricePerHour),
						h.ManagerID, strconv.FormatBool(h.Active)}
				},
			},
		}),
		newResourceCmd(a, resourceDef[types.Service]{
			name: types.ResourceServices, alias: "service", res: (*client.Client).Services,
			cols: columns[types.Service]{
				headers: []string{"Hall", "Name", "Price"},
				row: func(s types.Service) []string {
					return []string{s.HallID, s.Name, ftoa(s.Price)}
				},
			},
		}),
		newResourceCmd(a, resourceDef[types.Event]{
			name: types.ResourceEvents, alias: "event", res: (*client.Client).Events,
			cols: columns[types.Event]{
				headers: []string{"Hall", "Name", "Starts", "Ends", "Guests", "Status"},
				row: func(e types.Event) []string {
					return []string{e.HallID, e.Name, e.StartsAt.UTC().Format(timeLayout),
						e.EndsAt.UTC().Format(timeLayout), strconv.Itoa(e.GuestCapacity), e.Status}
				},
			},
		}),
		newResourceCmd(a, resourceDef[types.Invitation]{
			name: types.ResourceInvitations, alias: "invitation", res: (*client.Client).Invitations,
			cols: columns[types.Invitation]{
				headers: []string{"Event", "Guest", "People", "Code"},
				row: func(i types.Invitation) []string {
					return []string{i.EventID, i.GuestName, strconv.Itoa(i.NumOfPeople), i.Code}
				},
			},
			extra: []*cobra.Command{newExportCmd(a)},
		}),
		newResourceCmd(a, resourceDef[types.Template]{
			name: types.ResourceTemplates, alias: "template", res: (*client.Client).Templates,
			cols: columns[types.Template]{
				headers: []string{"Name", "Background", "Text", "Active"},
				row: func(t types.Template) []string {
					return []string{t.Name, t.Background, t.TextColor, strconv.FormatBool(t.Active)}
				},
			},
		}),
		newResourceCmd(a, resourceDef[types.Report]{
			name: types.ResourceReports, alias: "report", res: (*client.Client).Reports,
			cols: columns[types.Report]{
				headers: []string{"Hall", "Event", "Title", "Status"},
				row: func(r types.Report) []string {
					return []string{r.HallID, r.EventID, r.Title, r.Status}
				},
			},
		}),
		newResourceCmd(a, resourceDef[types.Rating]{
			name: types.ResourceRatings, alias: "rating", res: (*client.Client).Ratings,
			cols: columns[types.Rating]{
				headers: []string{"Hall", "Client", "Score", "Comment"},
				row: func(r types.Rating) []string {
					return []string{r.HallID, r.ClientID, strconv.Itoa(r.Score), r.Comment}
				},
			},
		}),
	}
}

func newResourceCmd[T any](a *app, def resourceDef[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:     def.name,
		Aliases: []string{def.alias},
		Short:   "Manage " + def.name,
	}

	resources := func() (*client.Resources[T], error) {
		c, err := a.client()
		if err != nil {
			return nil, err
		}
		return def.res(c), nil
	}

	var (
		limit, offset int
		filters       map[string]string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + def.name,
		Long: `List records. Without --limit every page is fetched.

Example:
  invoccactl ` + def.name + ` list --filter hallID=<id> -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := resources()
			if err != nil {
				return err
			}
			if limit <= 0 {
				items, err := r.ListAll(cmd.Context(), filters)
				if err != nil {
					return describe(err)
				}
				return printResources(cmd.OutOrStdout(), a.output(), items, def.cols)
			}
			page, err := r.List(cmd.Context(), client.ListOptions{Limit: limit, Offset: offset, Filters: filters})
			if err != nil {
				return describe(err)
			}
			if err := printResources(cmd.OutOrStdout(), a.output(), page.Items, def.cols); err != nil {
				return err
			}
			if a.output() == outputTable {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d-%d of %d\n", offset+min(1, len(page.Items)), offset+len(page.Items), page.TotalCount)
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "page size (0 fetches everything)")
	list.Flags().IntVar(&offset, "offset", 0, "records to skip")
	list.Flags().StringToStringVar(&filters, "filter", nil, "field=value filter, repeatable")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resources()
			if err != nil {
				return err
			}
			item, err := r.Get(cmd.Context(), args[0])
			if err != nil {
				return describe(err)
			}
			return printResource(cmd.OutOrStdout(), a.output(), item, def.cols)
		},
	}

	var createFile string
	create := &cobra.Command{
		Use:   "create -f <file>",
		Short: "Create a record from a JSON or YAML file (- for stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := readSpec[T](cmd.InOrStdin(), createFile)
			if err != nil {
				return err
			}
			r, err := resources()
			if err != nil {
				return err
			}
			item, err := r.Create(cmd.Context(), spec)
			if err != nil {
				return describe(err)
			}
			return printResource(cmd.OutOrStdout(), a.output(), item, def.cols)
		},
	}
	create.Flags().StringVarP(&createFile, "file", "f", "", "spec file")

	var updateFile, updateMatch string
	update := &cobra.Command{
		Use:   "update <id> -f <file>",
		Short: "Replace a record from a JSON or YAML file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec[T](cmd.InOrStdin(), updateFile)
			if err != nil {
				return err
			}
			r, err := resources()
			if err != nil {
				return err
			}
			item, err := r.Update(cmd.Context(), args[0], spec, client.IfMatch(updateMatch))
			if err != nil {
				return describe(err)
			}
			return printResource(cmd.OutOrStdout(), a.output(), item, def.cols)
		},
	}
	update.Flags().StringVarP(&updateFile, "file", "f", "", "spec file")
	update.Flags().StringVar(&updateMatch, "if-match", "", "only update when the record still has this ETag")

	var sets []string
	var patchMatch string
	patch := &cobra.Command{
		Use:   "patch <id> --set field=value...",
		Short: "Change individual fields",
		Long: `Patch applies a JSON merge patch built from --set flags. Values are
parsed as JSON when possible, so --set guestCapacity=120 sends a number and
--set managerID=null clears a field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseSets(sets)
			if err != nil {
				return err
			}
			r, err := resources()
			if err != nil {
				return err
			}
			item, err := r.Patch(cmd.Context(), args[0], doc, client.IfMatch(patchMatch))
			if err != nil {
				return describe(err)
			}
			return printResource(cmd.OutOrStdout(), a.output(), item, def.cols)
		},
	}
	patch.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable")
	patch.Flags().StringVar(&patchMatch, "if-match", "", "only update when the record still has this ETag")

	var deleteMatch string
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resources()
			if err != nil {
				return err
			}
			if err := r.Delete(cmd.Context(), args[0], client.IfMatch(deleteMatch)); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", def.alias, args[0])
			return nil
		},
	}
	del.Flags().StringVar(&deleteMatch, "if-match", "", "only delete when the record still has this ETag")

	cmd.AddCommand(list, get, create, update, patch, del)
	cmd.AddCommand(def.extra...)
	return cmd
}

// readSpec decodes a JSON or YAML spec. A full resource envelope is
// accepted too; only its spec is used.
func readSpec[T any](stdin io.Reader, path string) (T, error) {
	var spec T
	if path == "" {
		return spec, errors.New("--file is required")
	}
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return spec, fmt.Errorf("reading spec: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return spec, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m, ok := doc.(map[string]any); ok {
		if inner, ok := m["spec"]; ok {
			doc = inner
		}
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return spec, fmt.Errorf("parsing %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return spec, fmt.Errorf("parsing %s: %w", path, err)
	}
	return spec, nil
}

func parseSets(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, errors.New("at least one --set is required")
	}
	doc := make(map[string]any, len(sets))
	for _, s := range sets {
		field, value, ok := strings.Cut(s, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --set %q: want field=value", s)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		doc[field] = v
	}
	return doc, nil
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
