package database

// Depth preferences accepted by TasteProfile.PreferredDepth.
const (
	DepthCasual   = "casual"
	DepthModerate = "moderate"
	DepthDeepDive = "deep-dive"
)

// DefaultItemType is recorded for feedback when the caller names none.
const DefaultItemType = "podcast_episode"

// TasteProfile holds the listener's preferences. There is exactly one per store.
type TasteProfile struct {
	PreferredDepth       string             `json:"preferred_depth"`
	FormatPreferences    []string           `json:"format_preferences"`
	TopicInterests       map[string]float64 `json:"topic_interests"`
	PreferredDurationMin *int               `json:"preferred_duration_min"`
	PreferredDurationMax *int               `json:"preferred_duration_max"`
	Notes                string             `json:"notes"`
}

// DefaultTasteProfile returns the profile of a listener who has told us nothing.
func DefaultTasteProfile() TasteProfile {
	return TasteProfile{
		PreferredDepth:    DepthModerate,
		FormatPreferences: []string{},
		TopicInterests:    map[string]float64{},
	}
}

// ProfileUpdate is a partial TasteProfile. Nil fields are left unchanged.
type ProfileUpdate struct {
	PreferredDepth       *string             `json:"preferred_depth" validate:"omitempty,oneof=casual moderate deep-dive"`
	FormatPreferences    *[]string           `json:"format_preferences" validate:"omitempty,dive,required"`
	TopicInterests       *map[string]float64 `json:"topic_interests" validate:"omitempty,dive,keys,required,endkeys,gte=0,lte=1"`
	PreferredDurationMin *int                `json:"preferred_duration_min" validate:"omitempty,gte=0"`
	PreferredDurationMax *int                `json:"preferred_duration_max" validate:"omitempty,gte=0"`
	Notes                *string             `json:"notes"`
}

// Merge applies the non-nil fields of u on top of p.
func (p TasteProfile) Merge(u ProfileUpdate) TasteProfile {
	if u.PreferredDepth != nil {
		p.PreferredDepth = *u.PreferredDepth
	}
	if u.FormatPreferences != nil {
		p.FormatPreferences = append([]string{}, (*u.FormatPreferences)...)
	}
	if u.TopicInterests != nil {
		topics := make(map[string]float64, len(*u.TopicInterests))
		for k, v := range *u.TopicInterests {
			topics[k] = v
		}
		p.TopicInterests = topics
	}
	if u.PreferredDurationMin != nil {
		v := *u.PreferredDurationMin
		p.PreferredDurationMin = &v
	}
	if u.PreferredDurationMax != nil {
		v := *u.PreferredDurationMax
		p.PreferredDurationMax = &v
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	return p
}

// ConsumptionEntry is one rated listen in the history log.
type ConsumptionEntry struct {
	ID        int64   `json:"id"`
	ItemType  string  `json:"item_type"`
	ItemID    string  `json:"item_id"`
	Title     string  `json:"title"`
	Rating    int     `json:"rating"`
	Notes     *string `json:"notes"`
	Timestamp string  `json:"timestamp"`
}

// FavoriteFeed is a podcast the listener marked as a favorite.
type FavoriteFeed struct {
	FeedID    int64  `json:"feed_id"`
	FeedTitle string `json:"feed_title"`
	AddedAt   string `json:"added_at"`
}

// QueueEntry is an episode saved to My List.
type QueueEntry struct {
	ID           int64   `json:"id"`
	EpisodeID    int64   `json:"episode_id"`
	EpisodeTitle string  `json:"episode_title"`
	FeedID       *int64  `json:"feed_id"`
	FeedTitle    *string `json:"feed_title"`
	Image        *string `json:"image"`
	URL          *string `json:"url"`
	AddedAt      string  `json:"added_at"`
}

// CachedRecommendation is a stored recommend result.
type CachedRecommendation struct {
	ProfileHash string
	UserRequest string
	Payload     []byte
	CreatedAt   string
}

// TrendingCacheEntry is the raw contents of a trending cache slot.
type TrendingCacheEntry struct {
	Key      string
	Data     []byte
	CachedAt string // SQLite datetime text, UTC
}

// MentionCount is a podcast name and how often the community mentioned it.
type MentionCount struct {
	Name       string   `json:"name"`
	Count      int      `json:"count"`
	Subreddits []string `json:"subreddits"`
	UpdatedAt  string   `json:"updated_at"`
}
