package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/fibre/internal/template"
)

func newCompileCommand() *cobra.Command {
	format := newOutputFormat("text", "text", "json", "yaml")

	cmd := &cobra.Command{
		Use:   "compile <file|component>",
		Short: "Show the instruction list a component template compiles to",
		Long: `Compile a component template and print the resulting instructions: the
static HTML with mount markers, and one entry per directive with its node
path, expression source and dependencies.

Components under the configured scan paths are available to the template.

Examples:
  fibre compile components/user-card.html
  fibre compile user-card --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}

			f, err := env.target(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			desc := template.Describe(f.Template())
			if format.String() == "text" {
				writeDescription(cmd.OutOrStdout(), desc, "")
				return nil
			}
			return encode(cmd.OutOrStdout(), format.String(), desc)
		},
	}

	addFormatFlag(cmd.Flags(), format)
	return cmd
}

// writeDescription prints a description as an indented outline.
func writeDescription(w io.Writer, d *template.Description, indent string) {
	if d == nil {
		return
	}
	fmt.Fprintf(w, "%shtml: %s\n", indent, d.HTML)
	for _, dir := range d.Directives {
		line := fmt.Sprintf("%s- %s @%s", indent, dir.Kind, dir.Path)
		if dir.Name != "" {
			line += " " + dir.Name
		}
		if dir.Source != "" {
			line += fmt.Sprintf(" = %s", dir.Source)
		}
		if len(dir.Deps) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(dir.Deps, ", "))
		}
		fmt.Fprintln(w, line)

		nested := indent + "    "
		if dir.Guard != "" {
			fmt.Fprintf(w, "%sguard: %s\n", nested, dir.Guard)
		}
		for _, p := range dir.Props {
			fmt.Fprintf(w, "%sprop %s = %s\n", nested, p.Name, p.Source)
		}
		for _, b := range dir.Branches {
			cond := b.Condition
			if cond == "" {
				cond = "else"
			}
			fmt.Fprintf(w, "%scase %s:\n", nested, cond)
			writeDescription(w, b.Template, nested+"  ")
		}
		if dir.Template != nil {
			writeDescription(w, dir.Template, nested)
		}
		for _, name := range sortedSlotNames(dir.Slots) {
			fmt.Fprintf(w, "%sslot %q:\n", nested, name)
			writeDescription(w, dir.Slots[name], nested+"  ")
		}
	}
}

func sortedSlotNames(slots map[string]*template.Description) []string {
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
