package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/loaders"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/processors"
	"github.com/topoviz/topoviz/pkg/render"
)

// catalogs are the registries "topoviz list" can print.
var catalogs = []string{"loaders", "processors", "actions", "colormaps", "styles", "presets"}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "list <" + strings.Join(catalogs, "|") + ">",
		Short:     "List built-in loaders, processors and rendering options",
		ValidArgs: catalogs,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Example: `  # Show every processor and where it applies
  topoviz list processors

  # Colormap names as JSON
  topoviz list colormaps --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			headers, rows := catalog(args[0], loaders.NewBuiltin(current.cfg.LoaderOptions()))
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, catalogJSON(headers, rows))
			}
			printTable(out, headers, rows)
			return nil
		},
	}
	return cmd
}

func catalog(name string, lr *loaders.Registry) ([]string, [][]string) {
	var rows [][]string
	switch name {
	case "loaders":
		for _, n := range lr.Names() {
			d, _ := lr.Get(n)
			rows = append(rows, []string{d.Name, strings.Join(d.Aliases, ", "), d.PathParam, d.Description})
		}
		return []string{"name", "aliases", "path param", "description"}, rows
	case "processors":
		pr := processors.Builtin()
		for _, n := range pr.Names() {
			d, _ := pr.Get(n)
			rows = append(rows, []string{d.Name, d.Applicability.String(), string(d.Kind), d.Description})
		}
		return []string{"name", "applies to", "kind", "description"}, rows
	case "actions":
		return []string{"name"}, single(engine.ActionTypes())
	case "colormaps":
		return []string{"name"}, single(render.ColormapNames())
	case "styles":
		return []string{"name"}, single(render.StyleNames())
	default:
		return []string{"name"}, single(mapobject.PresetNames())
	}
}

func single(names []string) [][]string {
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	return rows
}

// catalogJSON keys every row by header; single-column catalogs become a
// plain list of names.
func catalogJSON(headers []string, rows [][]string) any {
	if len(headers) == 1 {
		names := make([]string, len(rows))
		for i, r := range rows {
			names[i] = r[0]
		}
		return names
	}
	out := make([]map[string]string, len(rows))
	for i, r := range rows {
		m := make(map[string]string, len(headers))
		for j, h := range headers {
			m[strings.ReplaceAll(h, " ", "_")] = r[j]
		}
		out[i] = m
	}
	return out
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	re := lipgloss.NewRenderer(w)
	headerStyle := re.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := re.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}
