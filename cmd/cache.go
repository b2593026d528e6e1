package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/activesave/internal/keys"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and edit cached namespaces",
	Long: `Inspect and edit cached namespaces. A KEY is scope[::subscope], as
printed by "activesave cache list".`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached namespace keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		ctx := cmd.Context()
		names, err := rt.cache.Keys(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, key := range names {
			line := fmt.Sprintf("%s\t%d fields", key, len(rt.cache.Get(ctx, key)))
			if rt.updatedAt != nil {
				if at, ok, err := rt.updatedAt(ctx, key); err == nil && ok {
					line += "\t" + at.Local().Format(time.RFC3339)
				}
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get KEY [FIELD]",
	Short: "Print a cached namespace, or one field of it, as JSON",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		scope, subscope := keys.Split(args[0])
		var v any
		if len(args) == 2 {
			v = rt.session.RetrieveField(cmd.Context(), scope, subscope, args[1])
		} else {
			values := rt.session.Retrieve(cmd.Context(), scope, subscope)
			if values == nil {
				return fmt.Errorf("namespace %q is not cached", args[0])
			}
			v = values
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

var cacheSetCmd = &cobra.Command{
	Use:   "set KEY FIELD VALUE",
	Short: "Store one field in a cached namespace",
	Long: `Store one field in a cached namespace. VALUE is decoded as JSON when it
parses (true, 42, null, "text"), and stored as a plain string otherwise.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		scope, subscope := keys.Split(args[0])
		return rt.session.Set(cmd.Context(), scope, subscope, args[1], parseValue(args[2]))
	},
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm KEY [FIELD]",
	Short: "Remove a cached namespace, or one field of it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		scope, subscope := keys.Split(args[0])
		field := ""
		if len(args) == 2 {
			field = args[1]
		}
		return rt.session.Remove(cmd.Context(), scope, subscope, field)
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd, cacheGetCmd, cacheSetCmd, cacheRmCmd)
	rootCmd.AddCommand(cacheCmd)
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
