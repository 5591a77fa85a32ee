package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/utility-bills/internal/model"
	"github.com/sells-group/utility-bills/internal/schema"
)

// categoryStrategy is one row of the schema listing.
type categoryStrategy struct {
	Category string   `json:"categoria" yaml:"categoria"`
	Strategy string   `json:"estrategia" yaml:"estrategia"`
	Columns  []string `json:"colunas,omitempty" yaml:"colunas,omitempty"`
}

type schemaListing struct {
	Tables     []model.DetailTable `json:"tabelas" yaml:"tabelas"`
	Categories []categoryStrategy  `json:"categorias" yaml:"categorias"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the detail storage strategy of every category",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
			return err
		}
		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, err := schema.LoadRegistry(ctx, st)
		if err != nil {
			return err
		}
		cats, err := st.Categories(ctx)
		if err != nil {
			return err
		}

		listing := buildSchemaListing(reg, cats)
		if format == formatTable {
			formatSchema(os.Stdout, listing)
			return nil
		}
		return writeStructured(os.Stdout, format, listing)
	},
}

func buildSchemaListing(reg *schema.Registry, cats []model.Category) schemaListing {
	out := schemaListing{Tables: reg.Tables()}
	for _, c := range cats {
		s := reg.Strategy(c.Name)
		out.Categories = append(out.Categories, categoryStrategy{
			Category: c.Name,
			Strategy: s.String(),
			Columns:  s.Columns(),
		})
	}
	return out
}

func formatSchema(w io.Writer, l schemaListing) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORIA\tESTRATEGIA\tCOLUNAS")
	for _, c := range l.Categories {
		cols := strings.Join(c.Columns, ", ")
		if cols == "" {
			cols = "chave/valor"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Category, c.Strategy, cols)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d tabela(s) de detalhes tipadas\n", len(l.Tables))
	for _, t := range l.Tables {
		fmt.Fprintf(w, "  %s: %s\n", t.Name, strings.Join(t.Columns, ", "))
	}
}

func init() {
	schemaCmd.Flags().StringP("format", "o", formatTable, "output format (table, json, yaml)")
	rootCmd.AddCommand(schemaCmd)
}
