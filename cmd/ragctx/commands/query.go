package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragctx-go/internal/assembler"
	"github.com/54b3r/ragctx-go/internal/budget"
	"github.com/54b3r/ragctx-go/internal/logging"
)

// queryOutput is the --json rendering of an assembled context.
type queryOutput struct {
	Text     string `json:"text"`
	Length   int    `json:"length"`
	TooLong  bool   `json:"tooLong"`
	Degraded bool   `json:"degraded"`
	Matches  int    `json:"matches"`
	Used     int    `json:"used"`
	// PromptTokens estimates the system message built from Text.
	PromptTokens int `json:"promptTokens"`
}

// NewQueryCmd constructs the `ragctx query` command, which assembles
// context for a single question and prints it to stdout.
func NewQueryCmd() *cobra.Command {
	var topic string
	var tokenBudget int
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Assemble retrieval context for a question",
		Long: `Embed the question, fetch the nearest chunks from the vector store and
print their cleaned text concatenated in match order.

The context is never truncated. When its length exceeds --budget a warning is
printed to stderr (or tooLong is set in --json output).

Examples:
  ragctx query "how many days of leave do I get?"
  ragctx query --topic leave --budget 500 "carry over rules"
  ragctx query --json "expense policy" | jq .text`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			defer initTracing(ctx, log)()

			if !cmd.Flags().Changed("budget") {
				tokenBudget = getEnvInt("ASSEMBLER_TOKEN_BUDGET", tokenBudget)
			}

			s, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer s.Close()

			asm, err := buildAssembler(s, topK, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			res, err := asm.Assemble(ctx, assembler.Request{
				Query:       strings.Join(args, " "),
				Topic:       topic,
				TokenBudget: tokenBudget,
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			log.Info("context assembled",
				slog.Int("matches", res.Matches),
				slog.Int("used", res.Used),
				slog.Int("length", res.Length),
			)

			out := cmd.OutOrStdout()
			if asJSON {
				o := queryOutput{
					Text:     res.Text,
					Length:   res.Length,
					TooLong:  res.TooLong,
					Degraded: res.Degraded,
					Matches:  res.Matches,
					Used:     res.Used,
				}
				if msg := res.Message(); msg != nil {
					o.PromptTokens = budget.EstimateMessages([]*schema.Message{msg})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(o)
			}

			if res.Degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: vector store unavailable, no context retrieved")
			}
			if res.TooLong {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: context length %d exceeds budget %d\n", res.Length, tokenBudget)
			}
			fmt.Fprintln(out, res.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic hint prepended to the question before embedding")
	cmd.Flags().IntVarP(&tokenBudget, "budget", "b", 1000, "Maximum context length before tooLong is reported")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of matches to fetch (default 5)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}
