package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/poddiscover/internal/podindex"
	"github.com/TobiSchelling/poddiscover/internal/recommend"
	"github.com/TobiSchelling/poddiscover/internal/transcript"
)

var recommendJSON bool

var recommendCmd = &cobra.Command{
	Use:   "recommend [request...]",
	Short: "Recommend episodes, optionally steered by a free-text request",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		request := strings.TrimSpace(strings.Join(args, " "))
		res, err := a.recommender.Recommend(cmd.Context(), request)
		if errors.Is(err, recommend.ErrNoProvider) {
			return fmt.Errorf("%w: set %s or configure another provider", err, cfg.LLM.APIKeyEnv)
		}
		if err != nil {
			return err
		}

		if recommendJSON {
			return printJSON(res)
		}
		printRecommendations(res)
		return nil
	},
}

func init() {
	recommendCmd.Flags().BoolVar(&recommendJSON, "json", false, "Print the raw result as JSON")
}

func printRecommendations(res *recommend.Result) {
	if len(res.QueriesUsed) > 0 {
		fmt.Printf("Searched for: %s\n", strings.Join(res.QueriesUsed, ", "))
	}
	if res.Cached {
		fmt.Println("(cached result)")
	}
	if len(res.Episodes) == 0 {
		fmt.Println("\nNo episodes matched. Try a different request or run 'poddiscover refresh'.")
		return
	}

	for i, ep := range res.Episodes {
		fmt.Printf("\n%2d. %s\n", i+1, ep.Title)
		fmt.Printf("    %s | %s | score %.0f%% (AI %d/10)\n",
			ep.FeedTitle, formatDuration(ep.DurationSeconds), ep.CompositeScore*100, ep.MatchScore)
		if ep.MatchReason != "" {
			fmt.Printf("    %s\n", ep.MatchReason)
		}
		if ep.URL != "" {
			fmt.Printf("    %s\n", ep.URL)
		}
	}

	if u := res.Usage; u.InputTokens+u.OutputTokens > 0 {
		fmt.Printf("\nTokens: %d in, %d out\n", u.InputTokens, u.OutputTokens)
	}
}

// --- search command ---

var (
	searchMax    int
	searchPerson bool
	searchFeed   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the podcast directory for episodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := newDirectory()
		query := strings.Join(args, " ")

		var (
			eps []podindex.Episode
			err error
		)
		switch {
		case searchFeed:
			feedID, perr := strconv.ParseInt(query, 10, 64)
			if perr != nil {
				return fmt.Errorf("invalid feed ID: %s", query)
			}
			eps, err = dir.EpisodesByFeed(cmd.Context(), feedID, searchMax)
		case searchPerson:
			eps, err = dir.SearchByPerson(cmd.Context(), query, searchMax)
		default:
			eps, err = dir.SearchByTerm(cmd.Context(), query, searchMax)
		}
		if err != nil {
			return err
		}

		if len(eps) == 0 {
			fmt.Println("No episodes found.")
			return nil
		}
		for _, ep := range eps {
			fmt.Printf("[%d] %s\n", ep.ID, ep.Title)
			fmt.Printf("      %s (feed %d) | %s\n", ep.FeedTitle, ep.FeedID, formatDuration(ep.DurationSeconds))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchMax, "max", "n", 10, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchPerson, "person", false, "Search by host or guest name")
	searchCmd.Flags().BoolVar(&searchFeed, "feed", false, "List recent episodes of a feed ID")
}

// --- transcript command ---

var transcriptCmd = &cobra.Command{
	Use:   "transcript <episode-id>",
	Short: "Print an episode's transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid episode ID: %s", args[0])
		}

		ep, err := newDirectory().EpisodeByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		if ep == nil {
			return fmt.Errorf("episode %d not found", id)
		}

		t, err := transcript.NewFetcher(cfg.PodcastIndex.Timeout, transcript.DefaultMaxChars).Fetch(cmd.Context(), ep.TranscriptURL)
		if errors.Is(err, transcript.ErrNoTranscript) {
			fmt.Printf("%s has no transcript.\n", ep.Title)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n\n%s\n", ep.Title, t.Format, t.Text)
		if t.Truncated {
			fmt.Println("\n[transcript truncated]")
		}
		return nil
	},
}

func formatDuration(sec *int) string {
	if sec == nil || *sec <= 0 {
		return "unknown length"
	}
	return fmt.Sprintf("%d min", (*sec+30)/60)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
