package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/utility-bills/internal/analytics"
	"github.com/sells-group/utility-bills/internal/model"
	"github.com/sells-group/utility-bills/internal/store"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Show consumption and contract recommendations per installation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		moduleName, _ := cmd.Flags().GetString("module")
		installation, _ := cmd.Flags().GetString("installation")
		month, _ := cmd.Flags().GetString("month")

		modules := model.Modules()
		if !all {
			m, ok := model.ModuleByName(moduleName)
			if !ok {
				return eris.Errorf("unknown module %q (want one of %v)", moduleName, model.ModuleNames())
			}
			modules = []model.Module{m}
		}

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		histories, err := fetchHistories(ctx, st, modules)
		if err != nil {
			return err
		}

		filter := analytics.Filter{Installation: installation, Month: month}
		reports := make([]analytics.RecommendationReport, len(modules))
		for i, m := range modules {
			reports[i] = analytics.BuildRecommendations(m.Name, histories[i], filter, thresholds())
		}

		if format != formatTable {
			if all {
				return writeStructured(os.Stdout, format, reports)
			}
			return writeStructured(os.Stdout, format, reports[0])
		}
		for _, r := range reports {
			formatRecommendations(os.Stdout, r)
		}
		return nil
	},
}

// fetchHistories loads every module's bills concurrently, preserving order.
func fetchHistories(ctx context.Context, st store.Store, modules []model.Module) ([][]model.Bill, error) {
	out := make([][]model.Bill, len(modules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, m := range modules {
		g.Go(func() error {
			bills, err := st.ListBills(gctx, m)
			if err != nil {
				return eris.Wrapf(err, "recommend: %s", m.Name)
			}
			out[i] = bills
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func formatRecommendations(w io.Writer, r analytics.RecommendationReport) {
	fmt.Fprintf(w, "== %s (instalação: %s, mês: %s)\n", r.Module, r.Filter.Installation, r.Filter.Month)
	if r.Empty() {
		fmt.Fprintln(w, "Tudo certo! Nenhum ponto de atenção crítico foi identificado.")
		return
	}
	for _, inst := range r.Installations {
		fmt.Fprintf(w, "Instalação: %s\n", inst.Installation)
		for _, rec := range inst.Recommendations {
			fmt.Fprintf(w, "  [%s] %s: %s\n", rec.Severity, rec.Type, rec.Message)
		}
	}
}

func init() {
	recommendCmd.Flags().String("module", model.ModuleEnergy, "module to analyze")
	recommendCmd.Flags().Bool("all", false, "analyze every module")
	recommendCmd.Flags().String("installation", analytics.AllInstallations, "installation filter")
	recommendCmd.Flags().String("month", analytics.AllMonths, "due month filter (YYYY-MM)")
	recommendCmd.Flags().StringP("format", "o", formatTable, "output format (table, json, yaml)")
	rootCmd.AddCommand(recommendCmd)
}
