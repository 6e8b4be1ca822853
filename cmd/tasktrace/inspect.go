package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sarchlab/tasktrace/archive"
)

var (
	headingColor = color.New(color.FgYellow, color.Bold)
	nameColor    = color.New(color.FgGreen)
	countColor   = color.New(color.FgBlue, color.Bold)
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive dir>",
	Short: "Summarise a SQLite trace archive.",
	Long: `Summarise a SQLite trace archive. The summary lists the archive ` +
		`properties, the locations with their event counts and the number ` +
		`of regions per role.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, _ := cmd.Flags().GetBool("events")

		return inspect(cmd.Context(), cmd.OutOrStdout(), args[0], events)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Bool("events", false,
		"Also print the event stream of every location.")
}

type archiveSummary struct {
	r       *archive.Reader
	strs    map[archive.StringRef]string
	attrs   map[archive.AttributeRef]archive.AttributeDef
	regions map[archive.RegionRef]archive.RegionDef
}

func inspect(ctx context.Context, w io.Writer, dir string, events bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := archive.OpenReader(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	sum, err := loadSummary(ctx, r)
	if err != nil {
		return err
	}

	if err := sum.printProperties(ctx, w); err != nil {
		return err
	}

	locs, err := r.Locations(ctx)
	if err != nil {
		return err
	}

	headingColor.Fprintln(w, "Locations")

	for _, l := range locs {
		fmt.Fprintf(w, "  %4d  %-20s %s events\n",
			l.Ref, nameColor.Sprint(sum.str(l.Name)),
			countColor.Sprint(l.Events))
	}

	sum.printRoles(w)

	if !events {
		return nil
	}

	for _, l := range locs {
		evts, err := r.Events(ctx, l.Ref)
		if err != nil {
			return err
		}

		headingColor.Fprintf(w, "Events of %s\n", sum.str(l.Name))

		for _, e := range evts {
			fmt.Fprintf(w, "  %12d  %-12s %-24s %s\n",
				e.Time, e.Kind, sum.regionName(e), sum.describe(e.Attributes))
		}
	}

	return nil
}

func loadSummary(ctx context.Context, r *archive.Reader) (*archiveSummary, error) {
	strs, err := r.Strings(ctx)
	if err != nil {
		return nil, err
	}

	attrDefs, err := r.Attributes(ctx)
	if err != nil {
		return nil, err
	}

	regionDefs, err := r.Regions(ctx)
	if err != nil {
		return nil, err
	}

	sum := &archiveSummary{
		r:       r,
		strs:    strs,
		attrs:   make(map[archive.AttributeRef]archive.AttributeDef),
		regions: make(map[archive.RegionRef]archive.RegionDef),
	}

	for _, a := range attrDefs {
		sum.attrs[a.Ref] = a
	}

	for _, d := range regionDefs {
		sum.regions[d.Ref] = d
	}

	return sum, nil
}

func (s *archiveSummary) printProperties(ctx context.Context, w io.Writer) error {
	props, err := s.r.Properties(ctx)
	if err != nil {
		return err
	}

	headingColor.Fprintln(w, "Properties")

	for _, k := range sortedKeys(props) {
		fmt.Fprintf(w, "  %s = %s\n", k, props[k])
	}

	return nil
}

func (s *archiveSummary) printRoles(w io.Writer) {
	roles := make(map[string]int)
	for _, d := range s.regions {
		roles[d.Role.String()]++
	}

	headingColor.Fprintln(w, "Regions")

	for _, k := range sortedKeys(roles) {
		fmt.Fprintf(w, "  %-18s %s\n", k, countColor.Sprint(roles[k]))
	}
}

func (s *archiveSummary) str(ref archive.StringRef) string {
	if v, ok := s.strs[ref]; ok {
		return v
	}

	return fmt.Sprintf("<string %d>", ref)
}

func (s *archiveSummary) regionName(e archive.Event) string {
	switch e.Kind {
	case archive.EventThreadBegin, archive.EventThreadEnd:
		return ""
	}

	d, ok := s.regions[e.Region]
	if !ok {
		return fmt.Sprintf("<region %d>", e.Region)
	}

	return s.str(d.Name)
}

func (s *archiveSummary) describe(attrs archive.AttributeList) string {
	parts := make([]string, 0, len(attrs))

	for _, a := range attrs {
		name := fmt.Sprintf("attr%d", a.Ref)
		if d, ok := s.attrs[a.Ref]; ok {
			name = s.str(d.Name)
		}

		value := fmt.Sprint(a.Value)
		switch a.Type {
		case archive.TypeString:
			value = s.str(archive.StringRef(a.Value))
		case archive.TypeInt32:
			value = fmt.Sprint(a.Int32())
		}

		parts = append(parts, name+"="+value)
	}

	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
