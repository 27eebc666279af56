package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/permitclaim/internal/config"
	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/format"
	"github.com/pendergraft/permitclaim/internal/permits/domain"
)

func newPermitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permits",
		Short: "Manage stored permits",
	}

	cmd.AddCommand(newPermitsImportCmd())
	cmd.AddCommand(newPermitsListCmd())

	return cmd
}

func newPermitsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <claim-url|claim-data>",
		Short: "Store the rewards of a claim link",
		Long: `Store every reward of a claim link. Rewards whose nonce is already stored are skipped.

EXAMPLES:
  permitclaim-server permits import "https://pay.example.com/?claim=W3sidHlwZSI6..."
  permitclaim-server permits import W3sidHlwZSI6...
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPermitsImport(cmd.Context(), args[0])
		},
	}
}

func newPermitsListCmd() *cobra.Command {
	var filter domain.ListFilter
	var claimed string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored permits",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch claimed {
			case "":
			case "true", "false":
				v := claimed == "true"
				filter.Claimed = &v
			default:
				return fmt.Errorf("--claimed must be true or false")
			}
			return runPermitsList(cmd.Context(), filter, limit)
		},
	}

	cmd.Flags().StringVar(&filter.Owner, "owner", "", "filter by permit owner")
	cmd.Flags().StringVar(&filter.Beneficiary, "beneficiary", "", "filter by beneficiary")
	cmd.Flags().Int64Var(&filter.NetworkID, "network", 0, "filter by network id")
	cmd.Flags().StringVar(&claimed, "claimed", "", "filter by recorded claim (true or false)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of permits")

	return cmd
}

type walletFlags struct {
	yes    bool
	askKey bool
}

func (f *walletFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "sign without asking for confirmation")
	cmd.Flags().BoolVar(&f.askKey, "ask-key", false, "read the wallet private key from the terminal")
}

func newCheckCmd() *cobra.Command {
	var flags walletFlags
	cmd := &cobra.Command{
		Use:   "check <nonce>",
		Short: "Check whether a stored permit can be claimed by the configured wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), args[0], flags, sessionCheck)
		},
	}
	flags.register(cmd)
	return cmd
}

func newClaimCmd() *cobra.Command {
	var flags walletFlags
	cmd := &cobra.Command{
		Use:   "claim <nonce>",
		Short: "Claim a stored permit with the configured wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), args[0], flags, sessionClaim)
		},
	}
	flags.register(cmd)
	return cmd
}

func newInvalidateCmd() *cobra.Command {
	var flags walletFlags
	cmd := &cobra.Command{
		Use:   "invalidate <nonce>",
		Short: "Burn a stored permit's nonce with the owner's wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), args[0], flags, sessionInvalidate)
		},
	}
	flags.register(cmd)
	return cmd
}

func runPermitsImport(ctx context.Context, arg string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := quietLogger()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := domain.NewService(domain.Dependencies{Permits: store, Logger: logger})
	result, err := svc.Import(ctx, claimParam(arg))
	if err != nil {
		return err
	}

	for _, p := range result.Permits {
		fmt.Printf("  nonce %s  %s  %s -> %s\n", p.NonceKey(), p.Kind, format.Shorten(p.Owner.Hex()), format.Shorten(p.Beneficiary.Hex()))
	}
	fmt.Printf("Imported %d, skipped %d already stored\n", result.Imported, result.Skipped)
	if cfg.Server.PublicURL != "" && len(result.Permits) > 0 {
		fmt.Printf("Claim page: %s/permits/%s\n", strings.TrimRight(cfg.Server.PublicURL, "/"), result.Permits[0].NonceKey())
	}
	return nil
}

func runPermitsList(ctx context.Context, filter domain.ListFilter, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := quietLogger()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := domain.NewService(domain.Dependencies{Permits: store, Logger: logger})
	result, err := svc.List(ctx, filter, domain.PaginationParams{Limit: limit})
	if err != nil {
		return err
	}

	if len(result.Permits) == 0 {
		fmt.Println("No permits found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NONCE\tNETWORK\tKIND\tBENEFICIARY\tAMOUNT\tCLAIM TX")
	for _, p := range result.Permits {
		tx := p.TxHash
		if tx == "" {
			tx = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", p.NonceKey(), p.NetworkID, p.Kind, format.Shorten(p.Beneficiary.Hex()), p.Amount, tx)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if result.HasMore {
		fmt.Println("(more permits available, raise --limit)")
	}
	return nil
}

type sessionAction int

const (
	sessionCheck sessionAction = iota
	sessionClaim
	sessionInvalidate
)

func runSession(ctx context.Context, nonceArg string, flags walletFlags, action sessionAction) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flags.askKey {
		if cfg.Wallet.PrivateKey, err = promptPrivateKey(); err != nil {
			return err
		}
		cfg.Wallet.ClefURL = ""
	}

	var confirm evm.ConfirmFunc
	if !flags.yes {
		confirm = terminalConfirm
	}

	rt, err := newRuntime(ctx, cfg, quietLogger(), confirm)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.permits.Get(ctx, nonceArg)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no stored permit with nonce %s, import its claim link first", nonceArg)
		}
		return err
	}

	sess := rt.permits.Open(ctx, *p, domain.WithToastHook(printToast))

	switch action {
	case sessionCheck:
		eligibility := rt.permits.Check(ctx, sess)
		fmt.Printf("Eligibility: %s\n", eligibility)
		return nil

	case sessionClaim:
		result, err := rt.permits.Claim(ctx, sess)
		if result != nil {
			fmt.Printf("State: %s\n", result.State)
			if result.TxHash != "" {
				fmt.Printf("Transaction: %s/tx/%s\n", evm.ExplorerURL(p.NetworkID, cfg.Chain.ExplorerOverrides()), result.TxHash)
			}
		}
		return err

	case sessionInvalidate:
		result, err := rt.permits.Invalidate(ctx, sess)
		if err != nil {
			return err
		}
		if result.Sent {
			fmt.Printf("Transaction: %s/tx/%s\n", evm.ExplorerURL(p.NetworkID, cfg.Chain.ExplorerOverrides()), result.TxHash)
		}
		return nil
	}
	return nil
}

func printToast(t domain.Toast) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", t.Level, t.Message)
}

// claimParam accepts either a claim link or the bare claim data.
func claimParam(arg string) string {
	arg = strings.TrimSpace(arg)
	u, err := url.Parse(arg)
	if err != nil || u.Scheme == "" {
		return arg
	}
	if claim := u.Query().Get("claim"); claim != "" {
		return claim
	}
	return arg
}
