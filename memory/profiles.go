package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

const (
	KeyProfile     = "profile"
	KeyPreferences = "preferences"
	KeySummary     = "summary"

	defaultSearchLimit = 5
)

type UserProfile struct {
	UserID      string `json:"userId"`
	CompanyName string `json:"companyName,omitempty"`
	CompanyURL  string `json:"companyUrl,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Role        string `json:"role,omitempty"`
}

type Preferences struct {
	FocusAreas          []string `json:"focusAreas,omitempty"`
	ExcludedCompetitors []string `json:"excludedCompetitors,omitempty"`
	Industry            string   `json:"industry,omitempty"`
}

type Analysis struct {
	Competitor     string   `json:"competitor"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	MarketPosition string   `json:"marketPosition"`
	ThreatLevel    string   `json:"threatLevel"`
	LLMGenerated   bool     `json:"llmGenerated"`
}

type CompetitorProfile struct {
	Name         string    `json:"name"`
	Website      string    `json:"website,omitempty"`
	Description  string    `json:"description,omitempty"`
	Market       string    `json:"market,omitempty"`
	Products     []string  `json:"products,omitempty"`
	PricingModel string    `json:"pricingModel,omitempty"`
	KeyFeatures  []string  `json:"keyFeatures,omitempty"`
	TeamSize     string    `json:"teamSize,omitempty"`
	Funding      string    `json:"funding,omitempty"`
	Analysis     *Analysis `json:"analysis,omitempty"`
	FetchedAt    time.Time `json:"fetchedAt"`
	LLMGenerated bool      `json:"llmGenerated"`
}

type SessionSummary struct {
	SessionID          string    `json:"sessionId"`
	Query              string    `json:"query"`
	CompanyName        string    `json:"companyName"`
	Phase              string    `json:"phase"`
	KeyFindings        []string  `json:"keyFindings"`
	CompetitorCount    int       `json:"competitorCount"`
	Decisions          []string  `json:"decisions"`
	FeatureGapsCount   int       `json:"featureGapsCount"`
	OpportunitiesCount int       `json:"opportunitiesCount"`
	CompletedAt        time.Time `json:"completedAt"`
}

// LoadPreferences returns zero preferences when the user has none stored.
func LoadPreferences(ctx context.Context, s Store, userID string) (Preferences, error) {
	var prefs Preferences
	if strings.TrimSpace(userID) == "" {
		return prefs, nil
	}
	_, err := GetJSON(ctx, s, NS(CategoryUsers, userID), KeyPreferences, &prefs)
	if errors.Is(err, ErrNotFound) {
		return Preferences{}, nil
	}
	return prefs, err
}

func SavePreferences(ctx context.Context, s Store, userID string, prefs Preferences) error {
	return PutJSON(ctx, s, NS(CategoryUsers, userID), KeyPreferences, prefs)
}

// LoadUserProfile returns ErrNotFound when the user has no profile.
func LoadUserProfile(ctx context.Context, s Store, userID string) (UserProfile, error) {
	var p UserProfile
	if strings.TrimSpace(userID) == "" {
		return p, ErrNotFound
	}
	_, err := GetJSON(ctx, s, NS(CategoryUsers, userID), KeyProfile, &p)
	return p, err
}

func SaveUserProfile(ctx context.Context, s Store, p UserProfile) error {
	return PutJSON(ctx, s, NS(CategoryUsers, p.UserID), KeyProfile, p)
}

func LoadCompetitor(ctx context.Context, s Store, name string) (CompetitorProfile, error) {
	var p CompetitorProfile
	_, err := GetJSON(ctx, s, NS(CategoryCompetitors, NormalizeID(name)), KeyProfile, &p)
	return p, err
}

func SaveCompetitor(ctx context.Context, s Store, p CompetitorProfile) error {
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now().UTC()
	}
	return PutJSON(ctx, s, NS(CategoryCompetitors, NormalizeID(p.Name)), KeyProfile, p)
}

func SaveSessionSummary(ctx context.Context, s Store, sum SessionSummary) error {
	if sum.CompletedAt.IsZero() {
		sum.CompletedAt = time.Now().UTC()
	}
	return PutJSON(ctx, s, NS(CategorySessions, sum.SessionID), KeySummary, sum)
}

func LoadSessionSummary(ctx context.Context, s Store, sessionID string) (SessionSummary, error) {
	var sum SessionSummary
	_, err := GetJSON(ctx, s, NS(CategorySessions, sessionID), KeySummary, &sum)
	return sum, err
}

// SearchCompetitors does a case-insensitive substring match of query over
// cached competitor name, website and market. limit <= 0 means 5.
func SearchCompetitors(ctx context.Context, s Store, query string, limit int) ([]CompetitorProfile, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	recs, err := s.List(ctx, CategoryCompetitors)
	if err != nil {
		return nil, err
	}

	out := make([]CompetitorProfile, 0, limit)
	for _, rec := range recs {
		if rec.Key != KeyProfile {
			continue
		}
		var p CompetitorProfile
		if err := json.Unmarshal(rec.Value, &p); err != nil {
			continue
		}
		hay := strings.ToLower(p.Name + "\n" + p.Website + "\n" + p.Market)
		if !strings.Contains(hay, needle) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
