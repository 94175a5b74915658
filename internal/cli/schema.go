package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"newsrelay/internal/config"
	"newsrelay/internal/notion"

	"github.com/spf13/cobra"
)

// NewSchemaCommand 创建 schema 子命令：列出数据库属性及发现的字段映射。
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show Notion database properties and the detected field mapping",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", format)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.Context(), rootOpts, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	return cmd
}

type schemaOutput struct {
	Properties map[string]string  `json:"properties"`
	Mapping    notion.PropertyMap `json:"mapping"`
}

func runSchema(ctx context.Context, opts *RootOptions, format string, w io.Writer) error {
	rt, err := setup(opts, (*config.Config).ValidateSchema)
	if err != nil {
		return err
	}
	db, pm, err := rt.properties(ctx)
	if err != nil {
		return err
	}
	return writeSchema(w, db, pm, format)
}

func writeSchema(w io.Writer, db *notion.Database, pm notion.PropertyMap, format string) error {
	props := make(map[string]string, len(db.Properties))
	names := make([]string, 0, len(db.Properties))
	for name, p := range db.Properties {
		props[name] = p.Type
		names = append(names, name)
	}
	sort.Strings(names)

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(schemaOutput{Properties: props, Mapping: pm})
	}
	fmt.Fprintln(w, "=== properties ===")
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%s\n", n, props[n])
	}
	fmt.Fprintln(w, "=== mapping ===")
	for _, kv := range [][2]string{
		{"title", pm.Title}, {"url", pm.URL}, {"summary", pm.Summary},
		{"status", pm.Status}, {"posted", pm.Posted}, {"post_id", pm.PostID}, {"posted_at", pm.PostedAt},
	} {
		v := kv[1]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(w, "%s\t%s\n", kv[0], v)
	}
	if len(pm.StatusOptions) > 0 {
		fmt.Fprintf(w, "status options\t%s\n", strings.Join(pm.StatusOptions, ", "))
	}
	return nil
}
