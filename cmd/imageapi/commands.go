package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thrive-mt/imageapi/pkg/image"
)

var (
	category         string
	explicitFallback string
	probeTimeout     time.Duration
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <path> [context]",
	Short: "Resolve an image reference",
	Long: `Prints the URL the service would hand out for an image reference.

With a file or leveldb cache backend configured, repeated runs reuse the
stored resolution exactly like the server does.

Example:
  imageapi resolve https://x/y.jpg cancer-support-card`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runResolve,
}

var errorCmd = &cobra.Command{
	Use:   "error <failed-url> [context]",
	Short: "Show what a client should load after a failed image",
	Long: `Runs the error handler for a failed image load. The failure record
lives in memory, so a one-shot run always shows the first reaction
(one retry, or the fallback for cancer-support images).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runError,
}

var fallbackCmd = &cobra.Command{
	Use:   "fallback [context]",
	Short: "Print the fallback image for a context, or the whole table",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFallback,
}

var checkCmd = &cobra.Command{
	Use:   "check [url]",
	Short: "Probe an image URL, or every configured fallback",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	for _, cmd := range []*cobra.Command{resolveCmd, errorCmd, fallbackCmd} {
		cmd.Flags().StringVar(&category, "category", "", "Explicit image category (overrides context keywords)")
	}
	resolveCmd.Flags().StringVar(&explicitFallback, "fallback", "", "Explicit fallback URL")
	errorCmd.Flags().StringVar(&explicitFallback, "fallback", "", "Explicit fallback URL")
	checkCmd.Flags().DurationVar(&probeTimeout, "timeout", 30*time.Second, "Overall probe timeout")
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func parseCategoryFlag() (image.Category, error) {
	cat, ok := image.ParseCategory(category)
	if !ok {
		return image.CategoryUnknown, fmt.Errorf("unknown category %q", category)
	}
	return cat, nil
}

// withResolver runs fn against a resolver over the configured store
func withResolver(fn func(r *image.Resolver) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	store := openStore(cfg)
	defer store.Close()

	r, err := newResolver(cfg, store)
	if err != nil {
		return err
	}
	return fn(r)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cat, err := parseCategoryFlag()
	if err != nil {
		return err
	}
	return withResolver(func(r *image.Resolver) error {
		res := r.Resolve(cmd.Context(), image.ImageRequest{
			RawPath:          args[0],
			ContextTag:       optionalArg(args, 1),
			Category:         cat,
			ExplicitFallback: explicitFallback,
		})
		return printResult(cmd.OutOrStdout(), outputFmt, resolveView(res))
	})
}

func runError(cmd *cobra.Command, args []string) error {
	cat, err := parseCategoryFlag()
	if err != nil {
		return err
	}
	return withResolver(func(r *image.Resolver) error {
		res := r.HandleError(cmd.Context(), image.ImageError{
			FailedURL:        args[0],
			ContextTag:       optionalArg(args, 1),
			Category:         cat,
			ExplicitFallback: explicitFallback,
		})
		return printResult(cmd.OutOrStdout(), outputFmt, errorView{URL: res.URL, Outcome: string(res.Outcome)})
	})
}

func runFallback(cmd *cobra.Command, args []string) error {
	cat, err := parseCategoryFlag()
	if err != nil {
		return err
	}
	return withResolver(func(r *image.Resolver) error {
		if len(args) == 0 && cat == image.CategoryUnknown {
			return printResult(cmd.OutOrStdout(), outputFmt, tableView(r.Fallbacks()))
		}
		u := r.FallbackFor(optionalArg(args, 0))
		if cat != image.CategoryUnknown {
			u = r.FallbackForCategory(cat)
		}
		return printResult(cmd.OutOrStdout(), outputFmt, fallbackView{URL: u})
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	checker := newChecker(cfg, nil)
	if len(args) == 1 {
		meta, err := checker.CheckImageExists(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), outputFmt, meta)
	}

	table, err := fallbackTable(cfg)
	if err != nil {
		return err
	}
	checks := checker.VerifyFallbacks(ctx, table)
	if err := printResult(cmd.OutOrStdout(), outputFmt, checks); err != nil {
		return err
	}
	if n := countMissing(checks); n > 0 {
		return fmt.Errorf("%d fallback image(s) unavailable", n)
	}
	return nil
}

func countMissing(checks []image.FallbackCheck) int {
	n := 0
	for _, c := range checks {
		if !c.Exists {
			n++
		}
	}
	return n
}
