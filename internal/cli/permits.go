package cli

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/permitclaim/internal/format"
	"github.com/pendergraft/permitclaim/pkg/client"
)

func createListCmd() *cobra.Command {
	var opts client.ListOptions
	var claimed string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored rewards",
		Long: `List rewards stored on the server, newest first.

EXAMPLES:
  permitclaim list
  permitclaim list --beneficiary 0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d --claimed=false
  permitclaim list --network 100 --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if claimed != "" {
				v, err := strconv.ParseBool(claimed)
				if err != nil {
					return fmt.Errorf("--claimed must be true or false")
				}
				opts.Claimed = &v
			}
			if project := loadProjectConfigSilent(); project != nil {
				if opts.Beneficiary == "" {
					opts.Beneficiary = project.Beneficiary
				}
				if opts.NetworkID == 0 {
					opts.NetworkID = project.NetworkID
				}
			}
			return runList(cmd.Context(), newClient(), opts, all)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "filter by permit owner")
	cmd.Flags().StringVar(&opts.Beneficiary, "beneficiary", "", "filter by beneficiary")
	cmd.Flags().Int64Var(&opts.NetworkID, "network", 0, "filter by network id")
	cmd.Flags().StringVar(&claimed, "claimed", "", "filter by recorded claim (true or false)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size")
	cmd.Flags().BoolVar(&all, "all", false, "follow pagination until the last page")

	return cmd
}

func createGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <nonce>",
		Short: "Show a stored reward and its funding wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), newClient(), args[0])
		},
	}
}

func createImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <claim-url|claim-data>",
		Short: "Store the rewards of a claim link on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), newClient(), args[0])
		},
	}
}

func createCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <nonce>",
		Short: "Check whether the server wallet can claim a reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			return runSession(args[0], func(nonce string) (*client.SessionResult, error) {
				return c.Check(cmd.Context(), nonce)
			})
		},
	}
}

func createClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <nonce>",
		Short: "Claim a reward with the server wallet and wait for the receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			return runSession(args[0], func(nonce string) (*client.SessionResult, error) {
				return c.Claim(cmd.Context(), nonce)
			})
		},
	}
}

func createInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <nonce>",
		Short: "Burn a reward's nonce with the server wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			return runSession(args[0], func(nonce string) (*client.SessionResult, error) {
				return c.Invalidate(cmd.Context(), nonce)
			})
		},
	}
}

func runList(ctx context.Context, c *client.Client, opts client.ListOptions, all bool) error {
	var permits []client.Permit
	for {
		resp, err := c.ListPermits(ctx, opts)
		if err != nil {
			return fmt.Errorf("listing permits: %w", err)
		}
		permits = append(permits, resp.Data...)
		if !all || !resp.Pagination.HasMore || resp.Pagination.NextCursor == "" {
			break
		}
		opts.Cursor = resp.Pagination.NextCursor
	}

	if jsonOutput {
		return printJSON(permits)
	}
	if len(permits) == 0 {
		fmt.Println("No rewards found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NONCE\tNETWORK\tKIND\tBENEFICIARY\tAMOUNT\tCLAIMED")
	for _, p := range permits {
		claimed := "no"
		if p.TxHash != "" {
			claimed = format.Shorten(p.TxHash)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", p.Nonce, p.NetworkID, p.Kind, format.Shorten(p.Beneficiary), p.Amount, claimed)
	}
	return w.Flush()
}

func runGet(ctx context.Context, c *client.Client, nonce string) error {
	p, err := c.GetPermit(ctx, nonce)
	if err != nil {
		return fmt.Errorf("getting permit: %w", err)
	}

	var treasury *client.Treasury
	if p.Kind == "erc20-permit" {
		if treasury, err = c.GetTreasury(ctx, nonce); err != nil {
			return fmt.Errorf("reading treasury: %w", err)
		}
	}

	if jsonOutput {
		return printJSON(map[string]any{"permit": p, "treasury": treasury})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Nonce:\t%s\n", p.Nonce)
	fmt.Fprintf(w, "Kind:\t%s\n", p.Kind)
	fmt.Fprintf(w, "Network:\t%d\n", p.NetworkID)
	fmt.Fprintf(w, "Owner:\t%s\n", p.Owner)
	fmt.Fprintf(w, "Beneficiary:\t%s\n", p.Beneficiary)
	fmt.Fprintf(w, "Token:\t%s\n", p.Token)
	fmt.Fprintf(w, "Amount:\t%s\n", displayAmount(p.Amount, treasury))
	if deadline, ok := new(big.Int).SetString(p.Deadline, 10); ok {
		if s, ok := format.FormatDeadline(deadline); ok {
			fmt.Fprintf(w, "Expiry:\t%s\n", s)
		}
	}
	if treasury != nil {
		fmt.Fprintf(w, "Balance:\t%s\n", displayAmount(treasury.Balance, treasury))
		fmt.Fprintf(w, "Allowance:\t%s\n", displayAmount(treasury.Allowance, treasury))
	}
	if m := p.NFTMetadata; m != nil {
		fmt.Fprintf(w, "Repository:\t%s/%s\n", m.Organization, m.Repository)
		fmt.Fprintf(w, "Issue:\t%s\n", m.IssueID)
		fmt.Fprintf(w, "Contribution:\t%s\n", m.ContributionType)
	}
	if p.TxHash != "" {
		fmt.Fprintf(w, "Claim tx:\t%s\n", p.TxHash)
	}
	if p.ClaimURL != "" {
		fmt.Fprintf(w, "Claim page:\t%s\n", p.ClaimURL)
	}
	return w.Flush()
}

// displayAmount formats a raw amount with the token's decimals when known.
func displayAmount(raw string, t *client.Treasury) string {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	if v.Sign() < 0 {
		return "N/A"
	}
	if t == nil || !t.Known {
		return raw
	}
	return format.FormatUnits(v, t.Decimals) + " " + t.Symbol
}

func runImport(ctx context.Context, c *client.Client, arg string) error {
	result, err := c.Import(ctx, claimParam(arg))
	if err != nil {
		return fmt.Errorf("importing claim: %w", err)
	}
	if jsonOutput {
		return printJSON(result)
	}
	for _, p := range result.Permits {
		line := fmt.Sprintf("  nonce %s  %s -> %s", p.Nonce, format.Shorten(p.Owner), format.Shorten(p.Beneficiary))
		if p.ClaimURL != "" {
			line += "  " + p.ClaimURL
		}
		fmt.Println(line)
	}
	fmt.Printf("Imported %d, skipped %d already stored\n", result.Imported, result.Skipped)
	return nil
}

func runSession(nonce string, call func(string) (*client.SessionResult, error)) error {
	result, err := call(nonce)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}

	for _, t := range result.Toasts {
		fmt.Printf("[%s] %s\n", t.Level, t.Message)
	}
	if result.Eligibility != "" {
		fmt.Printf("Eligibility: %s\n", result.Eligibility)
	}
	fmt.Printf("State: %s\n", result.State)
	if result.TxHash != "" {
		fmt.Printf("Transaction: %s\n", result.TxHash)
	}
	if result.Reason != "" {
		fmt.Printf("Reason: %s\n", result.Reason)
	}
	return nil
}

// claimParam extracts the claim parameter from a claim link; bare data is
// returned unchanged.
func claimParam(arg string) string {
	arg = strings.TrimSpace(arg)
	_, query, ok := strings.Cut(arg, "?")
	if !ok {
		return arg
	}
	for _, part := range strings.Split(query, "&") {
		if v, ok := strings.CutPrefix(part, "claim="); ok {
			if unescaped, err := url.QueryUnescape(v); err == nil {
				return unescaped
			}
			return v
		}
	}
	return arg
}
