package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// Reconciler runs ledger reconciliation against the configured store.
type Reconciler interface {
	Reconcile(ctx context.Context, companyID, productID int64) (inventory.Reconciliation, error)
	ReconcileAll(ctx context.Context, companyID int64) (int, []inventory.Reconciliation, error)
}

// ReconcileCLI checks stock against the transaction ledger from the shell.
type ReconcileCLI struct {
	service Reconciler
}

// NewReconcileCLI wires the command helpers.
func NewReconcileCLI(service Reconciler) (*ReconcileCLI, error) {
	if service == nil {
		return nil, errors.New("reconcile cli: service required")
	}
	return &ReconcileCLI{service: service}, nil
}

// ReconcileOptions defines available flags for the reconcile command.
type ReconcileOptions struct {
	CompanyID  int64
	ProductID  int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary describes the JSON output of the reconcile command.
type ReconcileSummary struct {
	OK         bool                       `json:"ok"`
	Checked    int                        `json:"checked"`
	Mismatches []inventory.Reconciliation `json:"mismatches"`
}

// RunCommand executes the reconcile workflow and returns the process exit code:
// 0 when balanced, 2 when mismatches were found, 1 on errors.
func (c *ReconcileCLI) RunCommand(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.ProductID > 0 && opts.CompanyID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "reconcile: --company is required with --product")
		return 1
	}

	summary := ReconcileSummary{Mismatches: []inventory.Reconciliation{}}
	if opts.ProductID > 0 {
		rec, err := c.service.Reconcile(ctx, opts.CompanyID, opts.ProductID)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
			return 1
		}
		summary.Checked = 1
		if !rec.Balanced {
			summary.Mismatches = append(summary.Mismatches, rec)
		}
	} else {
		checked, mismatches, err := c.service.ReconcileAll(ctx, opts.CompanyID)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
			return 1
		}
		summary.Checked = checked
		summary.Mismatches = append(summary.Mismatches, mismatches...)
	}
	summary.OK = len(summary.Mismatches) == 0

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode: %v\n", err)
			return 1
		}
	} else {
		writeTable(opts.Stdout, summary)
	}
	if !summary.OK {
		return 2
	}
	return 0
}

func writeTable(w io.Writer, summary ReconcileSummary) {
	_, _ = fmt.Fprintf(w, "checked %d products, %d mismatched\n", summary.Checked, len(summary.Mismatches))
	if summary.OK {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "COMPANY\tPRODUCT\tSTOCK\tLEDGER")
	for _, m := range summary.Mismatches {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", m.CompanyID, m.ProductID, m.StockQuantity, m.LedgerQuantity)
	}
	_ = tw.Flush()
}
