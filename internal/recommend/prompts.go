package recommend

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/TobiSchelling/poddiscover/internal/database"
	"github.com/TobiSchelling/poddiscover/internal/podindex"
)

const searchPrompt = `You are a podcast recommendation engine. Given a user's taste profile, favorite podcasts, and listening history, generate search queries to find podcast episodes they'd love.

<taste_profile>
%s
</taste_profile>

<favorite_podcasts>
%s
</favorite_podcasts>

<recent_history>
%s
</recent_history>

%s

Generate 3-5 search queries that would find great podcast episodes for this user. Use their favorite podcasts as strong signals of what they enjoy: find similar content and adjacent topics. IMPORTANT: Keep queries SHORT, 2-3 words max. The search engine works best with concise terms. Each query should target a different angle or topic they'd enjoy. Return ONLY a JSON array of query strings, nothing else.

Example: ["quantum computing", "true crime", "startup founders", "space exploration", "Roman history"]`

const rankPrompt = `You are a podcast recommendation engine. Rank and explain these episodes for the user based on their taste profile and favorite podcasts.

<taste_profile>
%s
</taste_profile>

<favorite_podcasts>
%s
</favorite_podcasts>

<recent_history>
%s
</recent_history>

<candidate_episodes>
%s
</candidate_episodes>

For each episode worth recommending, return a JSON object with:
- "id": the episode id (number)
- "score": 1-10 match score
- "reason": 1-2 sentence explanation of why this matches their taste

Return a JSON array sorted by score descending. Only include episodes scoring 5+. If the user has no profile or history yet, score based on general quality/variety and say so in the reason.
Return ONLY the JSON array, no other text.`

const (
	noFavorites = "No favorite podcasts yet."
	noHistory   = "No listening history yet."
	noRequest   = "No specific request. Suggest based on their profile and favorite podcasts."
)

// listenerContext is the text the prompts and the fingerprint are built from.
type listenerContext struct {
	taste     database.TasteProfile
	profile   string
	favorites string
	history   string
}

func buildSearchPrompt(lc listenerContext, request string) string {
	requestLine := noRequest
	if request != "" {
		requestLine = `The user says: "` + request + `"`
	}
	return fmt.Sprintf(searchPrompt, lc.profile, lc.favorites, lc.history, requestLine)
}

func buildRankPrompt(lc listenerContext, candidates string) string {
	return fmt.Sprintf(rankPrompt, lc.profile, lc.favorites, lc.history, candidates)
}

func profileSummary(p database.TasteProfile) (string, error) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func favoritesSummary(favs []database.FavoriteFeed) string {
	if len(favs) == 0 {
		return noFavorites
	}
	lines := make([]string, len(favs))
	for i, f := range favs {
		lines[i] = "- " + f.FeedTitle
	}
	return strings.Join(lines, "\n")
}

func historySummary(entries []database.ConsumptionEntry) string {
	if len(entries) == 0 {
		return noHistory
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		line := fmt.Sprintf("- %s (rated %d/5)", e.Title, e.Rating)
		if e.Notes != nil && *e.Notes != "" {
			line += " - " + *e.Notes
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

type candidateSummary struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	FeedTitle       string `json:"feed_title"`
	DurationSeconds *int   `json:"duration_seconds"`
}

func candidatesSummary(eps []podindex.Episode, descLimit int) (string, error) {
	out := make([]candidateSummary, len(eps))
	for i, ep := range eps {
		out[i] = candidateSummary{
			ID:              ep.ID,
			Title:           ep.Title,
			Description:     truncateRunes(ep.Description, descLimit),
			FeedTitle:       ep.FeedTitle,
			DurationSeconds: ep.DurationSeconds,
		}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
