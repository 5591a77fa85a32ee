package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/utility-bills/internal/analytics"
	"github.com/sells-group/utility-bills/internal/model"
)

var reportCmd = &cobra.Command{
	Use:   "report <module>",
	Short: "Show a module's bill history with month-over-month variance",
	Long:  fmt.Sprintf("Lists a module's bills annotated with variance against the previous bill of the same installation. Modules: %v.", model.ModuleNames()),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, formatTable, formatJSON, formatYAML, formatCSV); err != nil {
			return err
		}
		m, ok := model.ModuleByName(args[0])
		if !ok {
			return eris.Errorf("unknown module %q (want one of %v)", args[0], model.ModuleNames())
		}
		statusFlag, _ := cmd.Flags().GetString("status")
		status, err := analytics.ParseStatus(statusFlag)
		if err != nil {
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

		bills, err := st.ListBills(ctx, m)
		if err != nil {
			return eris.Wrap(err, "report")
		}
		report := analytics.BuildReport(m.Name, bills, status)

		switch format {
		case formatCSV:
			return analytics.WriteCSV(os.Stdout, report.Bills)
		case formatTable:
			formatReport(os.Stdout, report)
			return nil
		default:
			return writeStructured(os.Stdout, format, report)
		}
	},
}

func formatReport(w io.Writer, r analytics.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tINSTALACAO\tVENCIMENTO\tVALOR\tVARIACAO\tSTATUS")
	for _, b := range r.Bills {
		due := "-"
		if b.DueDate != nil {
			due = b.DueDate.Format("02/01/2006")
		}
		inst := b.Installation
		if inst == "" {
			inst = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\tR$ %s\t%s\t%s\n",
			b.ID, inst, due, analytics.FormatBRL(b.Amount), b.Variance, b.EffectiveStatus())
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d contas | pendente R$ %s | pago R$ %s\n",
		r.Summary.Count, analytics.FormatBRL(r.Summary.TotalPending), analytics.FormatBRL(r.Summary.TotalPaid))
	for _, mt := range r.Summary.Months {
		fmt.Fprintf(w, "  %s  %3d  R$ %s\n", mt.Month, mt.Count, analytics.FormatBRL(mt.Total))
	}
}

func init() {
	reportCmd.Flags().String("status", analytics.StatusAll, "status filter (todas, pendentes, pagas)")
	reportCmd.Flags().StringP("format", "o", formatTable, "output format (table, json, yaml, csv)")
	rootCmd.AddCommand(reportCmd)
}
