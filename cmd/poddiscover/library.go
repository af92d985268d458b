package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/TobiSchelling/poddiscover/internal/database"
)

// --- profile command ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your taste profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		profile, err := db.GetTasteProfile()
		if err != nil {
			return err
		}
		printProfile(profile)
		return nil
	},
}

var (
	profileDepth   string
	profileFormats []string
	profileTopics  []string
	profileMin     int
	profileMax     int
	profileNotes   string
)

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update profile fields; flags not given are left unchanged",
	Example: `  poddiscover profile set --depth deep-dive --min 20 --max 60
  poddiscover profile set --topic science=0.9 --topic history=0.4
  poddiscover profile set --notes "Love long-form **interviews**"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := profileUpdateFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := validator.New(validator.WithRequiredStructEnabled()).Struct(update); err != nil {
			return fmt.Errorf("invalid profile: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		profile, err := db.UpdateTasteProfile(update)
		if err != nil {
			return err
		}
		fmt.Println("Profile updated.")
		printProfile(profile)
		return nil
	},
}

func init() {
	bindProfileFlags(profileSetCmd.Flags())
	profileCmd.AddCommand(profileSetCmd)
}

func bindProfileFlags(f *pflag.FlagSet) {
	f.StringVar(&profileDepth, "depth", "", "Preferred depth: casual, moderate or deep-dive")
	f.StringSliceVar(&profileFormats, "format", nil, "Preferred formats, e.g. interview,narrative")
	f.StringArrayVar(&profileTopics, "topic", nil, "Topic interest as name=weight (0-1); repeatable")
	f.IntVar(&profileMin, "min", 0, "Preferred minimum episode length in minutes")
	f.IntVar(&profileMax, "max", 0, "Preferred maximum episode length in minutes")
	f.StringVar(&profileNotes, "notes", "", "Free-form notes for the recommender (markdown)")
}

func profileUpdateFromFlags(cmd *cobra.Command) (database.ProfileUpdate, error) {
	var u database.ProfileUpdate
	flags := cmd.Flags()
	if flags.Changed("depth") {
		u.PreferredDepth = &profileDepth
	}
	if flags.Changed("format") {
		u.FormatPreferences = &profileFormats
	}
	if flags.Changed("topic") {
		topics := make(map[string]float64, len(profileTopics))
		for _, t := range profileTopics {
			name, raw, ok := strings.Cut(t, "=")
			if !ok {
				return u, fmt.Errorf("topic %q: expected name=weight", t)
			}
			w, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return u, fmt.Errorf("topic %q: %w", t, err)
			}
			topics[strings.TrimSpace(name)] = w
		}
		u.TopicInterests = &topics
	}
	if flags.Changed("min") {
		u.PreferredDurationMin = &profileMin
	}
	if flags.Changed("max") {
		u.PreferredDurationMax = &profileMax
	}
	if flags.Changed("notes") {
		u.Notes = &profileNotes
	}
	return u, nil
}

func printProfile(p database.TasteProfile) {
	fmt.Printf("Depth: %s\n", p.PreferredDepth)
	if len(p.FormatPreferences) > 0 {
		fmt.Printf("Formats: %s\n", strings.Join(p.FormatPreferences, ", "))
	}
	if len(p.TopicInterests) > 0 {
		names := make([]string, 0, len(p.TopicInterests))
		for name := range p.TopicInterests {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return p.TopicInterests[names[i]] > p.TopicInterests[names[j]]
		})
		fmt.Println("Topics:")
		for _, name := range names {
			fmt.Printf("  %-20s %.2f\n", name, p.TopicInterests[name])
		}
	}
	switch {
	case p.PreferredDurationMin != nil && p.PreferredDurationMax != nil:
		fmt.Printf("Length: %d-%d min\n", *p.PreferredDurationMin, *p.PreferredDurationMax)
	case p.PreferredDurationMin != nil:
		fmt.Printf("Length: at least %d min\n", *p.PreferredDurationMin)
	case p.PreferredDurationMax != nil:
		fmt.Printf("Length: at most %d min\n", *p.PreferredDurationMax)
	}
	if p.Notes != "" {
		fmt.Printf("Notes: %s\n", p.Notes)
	}
}

// --- favorites command ---

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage favorite podcasts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		favs, err := db.GetFavoriteFeeds()
		if err != nil {
			return err
		}
		if len(favs) == 0 {
			fmt.Println("No favorite podcasts. Add one with: poddiscover favorites add <feed-id> <title>")
			return nil
		}
		fmt.Println("Favorite podcasts:")
		for _, f := range favs {
			fmt.Printf("  [%d] %s\n", f.FeedID, f.FeedTitle)
		}
		return nil
	},
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <feed-id> <title>",
	Short: "Add a favorite podcast",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedID, err := parseID(args[0], "feed")
		if err != nil {
			return err
		}
		title := strings.Join(args[1:], " ")

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.AddFavoriteFeed(feedID, title); err != nil {
			return err
		}
		fmt.Printf("Added favorite [%d]: %s\n", feedID, title)
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <feed-id>",
	Short: "Remove a favorite podcast",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedID, err := parseID(args[0], "feed")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := db.IsFavoriteFeed(feedID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("feed %d is not a favorite", feedID)
		}
		if err := db.RemoveFavoriteFeed(feedID); err != nil {
			return err
		}
		fmt.Printf("Removed favorite [%d]\n", feedID)
		return nil
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
}

// --- history and feedback commands ---

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently rated episodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.GetConsumptionHistory(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No listening history. Rate an episode with: poddiscover feedback <id> <title> <rating>")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("  %s  %s %s\n", e.Timestamp, stars(e.Rating), e.Title)
			if e.Notes != nil && *e.Notes != "" {
				fmt.Printf("      %s\n", *e.Notes)
			}
		}
		return nil
	},
}

var feedbackNotes string

var feedbackCmd = &cobra.Command{
	Use:   "feedback <item-id> <title> <rating>",
	Short: "Rate an episode from 1 to 5",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[2])
		if err != nil || rating < 1 || rating > 5 {
			return fmt.Errorf("rating must be an integer from 1 to 5, got %q", args[2])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entry := database.ConsumptionEntry{ItemID: args[0], Title: args[1], Rating: rating}
		if feedbackNotes != "" {
			entry.Notes = &feedbackNotes
		}
		id, err := db.LogConsumption(entry)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded [%d]: %s %s\n", id, stars(rating), args[1])
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	feedbackCmd.Flags().StringVar(&feedbackNotes, "notes", "", "What you liked or disliked")
}

func stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return strings.Repeat("*", rating) + strings.Repeat(".", 5-rating)
}

// --- queue command ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage My List, episodes saved for later",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.GetMyList()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("My List is empty. Add an episode with: poddiscover queue add <episode-id>")
			return nil
		}
		for _, q := range items {
			feed := ""
			if q.FeedTitle != nil {
				feed = " (" + *q.FeedTitle + ")"
			}
			fmt.Printf("  [%d] %s%s\n", q.EpisodeID, q.EpisodeTitle, feed)
		}
		return nil
	},
}

var queueTitle string

var queueAddCmd = &cobra.Command{
	Use:   "add <episode-id>",
	Short: "Save an episode to My List",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		episodeID, err := parseID(args[0], "episode")
		if err != nil {
			return err
		}

		entry := database.QueueEntry{EpisodeID: episodeID, EpisodeTitle: queueTitle}
		ep, err := newDirectory().EpisodeByID(cmd.Context(), episodeID)
		switch {
		case err != nil && queueTitle == "":
			return fmt.Errorf("looking up episode (pass --title to add it anyway): %w", err)
		case err == nil && ep == nil && queueTitle == "":
			return fmt.Errorf("episode %d not found", episodeID)
		case ep != nil:
			if entry.EpisodeTitle == "" {
				entry.EpisodeTitle = ep.Title
			}
			entry.FeedID = nonZero(ep.FeedID)
			entry.FeedTitle = nonEmpty(ep.FeedTitle)
			entry.Image = nonEmpty(ep.Image)
			entry.URL = nonEmpty(ep.URL)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.AddToMyList(entry); err != nil {
			return err
		}
		fmt.Printf("Saved [%d]: %s\n", episodeID, entry.EpisodeTitle)
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <episode-id>",
	Short: "Remove an episode from My List",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		episodeID, err := parseID(args[0], "episode")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.RemoveFromMyList(episodeID); err != nil {
			return err
		}
		fmt.Printf("Removed [%d]\n", episodeID)
		return nil
	},
}

func init() {
	queueAddCmd.Flags().StringVar(&queueTitle, "title", "", "Episode title (skips the directory lookup requirement)")
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueRemoveCmd)
}

func parseID(raw, kind string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, raw)
	}
	return id, nil
}

func nonZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
