package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"CourseStore/internal/config"
	"CourseStore/internal/course"
)

var searchPrefix bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Load course data and print titles matching query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		store := course.NewStore()
		if err := loadData(cmd.Context(), cfg, store, zap.NewNop()); err != nil {
			return err
		}

		mode := course.MatchSubstring
		if searchPrefix {
			mode = course.MatchPrefix
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, rec := range store.SearchMode(strings.Join(args, " "), mode) {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchPrefix, "prefix", false, "match token prefixes instead of substrings")
}
