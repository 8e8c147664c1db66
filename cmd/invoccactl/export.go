package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MCT-Salman/invocca/pkg/export"
)

func newExportCmd(a *app) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Render an invitation card as PNG or PDF",
		Long: `Export renders the invitation card with its template colors.
The file defaults to invitation-<guest>.<format> in the current directory;
--out - writes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			inv, err := c.Invitations().Get(ctx, args[0])
			if err != nil {
				return describe(err)
			}
			event, err := c.Events().Get(ctx, inv.Spec.EventID)
			if err != nil {
				return describe(err)
			}
			card := export.Card{
				EventName:   event.Spec.Name,
				GuestName:   inv.Spec.GuestName,
				NumOfPeople: inv.Spec.NumOfPeople,
				Code:        inv.Spec.Code,
			}
			if inv.Spec.TemplateID != "" {
				tpl, err := c.Templates().Get(ctx, inv.Spec.TemplateID)
				if err != nil {
					return describe(err)
				}
				card.Background, card.TextColor = tpl.Spec.Background, tpl.Spec.TextColor
			}

			if out == "-" {
				return export.Encode(cmd.OutOrStdout(), card, f)
			}
			path := out
			if path == "" {
				path = export.Filename(inv.Spec.GuestName, f)
			}
			if err := writeFile(path, func(w io.Writer) error { return export.Encode(w, card, f) }); err != nil {
				return err
			}
			a.logger.Debug().Str("path", path).Str("invitation", args[0]).Msg("exported invitation card")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatPNG), "png or pdf")
	cmd.Flags().StringVar(&out, "out", "", "output file")
	return cmd
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
