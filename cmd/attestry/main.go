package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/attestry/attestry/internal/auth"
	"github.com/attestry/attestry/internal/record"
	"github.com/attestry/attestry/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	ledgerURL string
	bearer    string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "attestry",
	Short: "Attestry attestation ledger CLI",
	Long: `attestry is the command-line interface for an Attestry ledger.

It submits attestation records, inspects blocks and records, verifies
chain integrity, and reads derived actor profiles.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.attestry")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = "http://localhost:8080"
		}
		if bearer == "" {
			bearer = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.attestry/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerURL, "ledger", "", "ledger URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&bearer, "token", "", "bearer token for append calls")

	appendCmd.Flags().String("kind", "", "record kind: observation | endorsement | signature")
	appendCmd.Flags().String("actor", "", "acting identity")
	appendCmd.Flags().String("subject", "", "subject identity (optional for signatures)")
	appendCmd.Flags().String("statement", "", "observation statement")
	appendCmd.Flags().Float64("strength", 0, "endorsement strength (0.0-1.0)")
	appendCmd.Flags().String("doc", "", "signature document reference")
	appendCmd.Flags().String("outcome", string(record.OutcomeUnverified), "signature outcome: verified | failed | unverified")
	_ = appendCmd.MarkFlagRequired("kind")
	_ = appendCmd.MarkFlagRequired("actor")

	recordsCmd.Flags().String("actor", "", "filter by actor")
	recordsCmd.Flags().String("kind", "", "filter by kind")
	recordsCmd.Flags().Int("limit", 20, "maximum records to fetch")

	profileCmd.Flags().Int64("as-of-height", -1, "compute at this chain height (default: current)")

	verifyCmd.Flags().Uint64("from", 0, "start of height range")
	verifyCmd.Flags().Uint64("to", 0, "end of height range")

	tokenCmd.Flags().String("secret", "", "token signing secret (must match the server)")
	tokenCmd.Flags().String("subject", "", "submitter identity to issue for")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("secret")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(headCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if bearer != "" {
		opts = append(opts, client.WithToken(bearer))
	}
	return client.New(ledgerURL, opts...)
}

var headCmd = &cobra.Command{
	Use:   "head",
	Short: "Show the chain head and height",
	RunE: func(cmd *cobra.Command, args []string) error {
		ov, err := newClient().Overview(cmd.Context())
		if err != nil {
			return err
		}
		if ov.Blocks == 0 {
			fmt.Println("chain is empty")
			return nil
		}
		fmt.Printf("height:  %d\nblocks:  %d\nhead:    %s\n", ov.Height, ov.Blocks, ov.Head)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute and check the chain's hashes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		var res *client.VerifyResult
		var err error
		if cmd.Flags().Changed("from") || cmd.Flags().Changed("to") {
			from, _ := cmd.Flags().GetUint64("from")
			to, _ := cmd.Flags().GetUint64("to")
			res, err = c.VerifyRange(cmd.Context(), from, to)
		} else {
			res, err = c.Verify(cmd.Context())
		}
		if err != nil {
			return err
		}

		if res.Valid {
			fmt.Println("chain OK")
			return nil
		}
		if res.FirstInvalidHeight != nil {
			fmt.Printf("chain INVALID at height %d: %s\n", *res.FirstInvalidHeight, res.Reason)
		} else {
			fmt.Printf("chain INVALID: %s\n", res.Reason)
		}
		os.Exit(1)
		return nil
	},
}

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Submit one attestation record",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		actor, _ := cmd.Flags().GetString("actor")
		subject, _ := cmd.Flags().GetString("subject")

		var payload any
		switch record.Kind(kind) {
		case record.KindObservation:
			statement, _ := cmd.Flags().GetString("statement")
			payload = record.ObservationPayload{Statement: statement}
		case record.KindEndorsement:
			strength, _ := cmd.Flags().GetFloat64("strength")
			payload = record.EndorsementPayload{Strength: strength}
		case record.KindSignature:
			doc, _ := cmd.Flags().GetString("doc")
			outcome, _ := cmd.Flags().GetString("outcome")
			payload = record.SignaturePayload{
				DocumentRef: doc,
				Outcome:     record.SignatureOutcome(outcome),
			}
		default:
			return fmt.Errorf("unknown kind %q", kind)
		}

		block, err := newClient().Append(cmd.Context(), client.AppendRequest{
			Kind:    kind,
			Actor:   actor,
			Subject: subject,
			Payload: payload,
		})
		if err != nil {
			return err
		}
		fmt.Printf("appended block %d\nhash: %s\n", block.Height, block.BlockHash)
		return nil
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List records, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := newClient().Records(cmd.Context(), client.RecordFilter{
			Actor: actor,
			Kind:  kind,
			Limit: limit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tACTOR\tSUBJECT\tCREATED")
		for _, r := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.Kind, r.Actor, r.Subject, r.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <height>",
	Short: "Show one chain block as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var height uint64
		if _, err := fmt.Sscanf(args[0], "%d", &height); err != nil {
			return fmt.Errorf("height must be a non-negative integer")
		}

		block, err := newClient().Block(cmd.Context(), height)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(block, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <actor>",
	Short: "Show an actor's derived profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, _ := cmd.Flags().GetInt64("as-of-height")

		p, err := newClient().Profile(cmd.Context(), args[0], asOf)
		if err != nil {
			return err
		}

		fmt.Printf("actor:        %s\n", p.Actor)
		fmt.Printf("as of height: %d\n", p.AsOfHeight)
		fmt.Printf("weight:       %d (%s)\n", p.Weight, p.Rank)
		fmt.Printf("endorsers:    %d\n", p.Endorsers)
		fmt.Printf("activity:     heights %d-%d\n", p.FirstHeight, p.LastHeight)
		for kind, n := range p.Counts {
			fmt.Printf("  %-12s %d\n", kind+":", n)
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a submitter bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		issuer := auth.NewIssuer([]byte(secret), ledgerURL, ttl)
		token, err := issuer.Issue(subject)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("attestry", version)
	},
}
