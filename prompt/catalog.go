package prompt

const (
	SummarizeChunk    = "researcher.summarize_chunk"
	ExtractProfile    = "researcher.extract_profile"
	RankCompetitors   = "researcher.rank_competitors"
	AnalyzeCompetitor = "strategist.analyze"
	GenerateStrategy  = "strategist.generate"
)

const researcherSystem = `You are a competitive intelligence research agent. You analyze raw data
from web searches and scraped pages to extract structured competitor
intelligence.

Always respond with valid JSON, no markdown fences, no extra text.`

const strategistSystem = `You are a competitive strategy analyst. You synthesize research findings
into actionable strategic recommendations.

Always respond with valid JSON, no markdown fences, no extra text.`

var builtins = []Spec{
	{
		Name:        SummarizeChunk,
		Description: "Summarize one window of scraped page text",
		System:      researcherSystem,
		Template: `Summarize the following content chunk from {{url}} focusing on competitive
intelligence: products, features, pricing, market position, strengths
and weaknesses.

Content chunk ({{chunk_index}}/{{total_chunks}}):
{{chunk_content}}

Provide a concise summary (3-5 sentences) as JSON:
{"summary": "...", "key_points": ["..."]}`,
		Tags: []string{"research"},
	},
	{
		Name:        ExtractProfile,
		Description: "Extract a company profile from scraped content",
		System:      researcherSystem,
		Template: `Given the following scraped content from {{url}}, extract a company profile.
Focus areas: {{focus_areas}}

Content:
{{content}}

Extract as JSON:
{
  "name": "company name",
  "website": "url",
  "description": "1-2 sentence summary",
  "products": ["product1"],
  "pricing_model": "freemium/subscription/etc or unknown",
  "target_market": "who they serve",
  "key_features": ["feature1"],
  "team_size": "approximate or unknown",
  "funding": "known funding info or unknown"
}`,
		Tags: []string{"research"},
	},
	{
		Name:        RankCompetitors,
		Description: "Rank competitors found through search",
		System:      researcherSystem,
		Template: `Given the following search results about competitors of {{company_name}},
identify and rank the top competitors. Ignore these names: {{excluded}}.

Search results:
{{search_results}}

Return the top 5 competitors as JSON:
{
  "competitors": [
    {"name": "competitor name", "url": "website url", "relevance": "why this is a competitor", "priority": 1}
  ]
}`,
		Tags: []string{"research"},
	},
	{
		Name:        AnalyzeCompetitor,
		Description: "Assess one competitor against the target company",
		System:      strategistSystem,
		Template: `Analyze the following research data and produce a competitive analysis.

Target company:
{{company_profile}}

Competitor:
{{competitor_profile}}

Assess strengths, weaknesses, market position and threat level (high, medium or low).

Respond with JSON:
{
  "competitor": "name",
  "strengths": ["..."],
  "weaknesses": ["..."],
  "market_position": "...",
  "threat_level": "high|medium|low"
}`,
		Tags: []string{"strategy"},
	},
	{
		Name:        GenerateStrategy,
		Description: "Turn competitor analyses into a strategy draft",
		System:      strategistSystem,
		Template: `Based on the following competitive analysis, generate strategic
recommendations for {{company_name}}.

Company profile:
{{company_profile}}

Competitive analysis:
{{competitive_analysis}}

Reviewer guidance:
{{directives}}

Generate strategic insights as JSON:
{
  "feature_gaps": ["features competitors have that {{company_name}} lacks"],
  "opportunities": ["market gaps and growth opportunities"],
  "positioning_suggestions": ["how to differentiate"],
  "fundraising_intel": ["competitive fundraising intelligence"],
  "summary": "2-3 paragraph executive summary"
}`,
		Tags: []string{"strategy"},
	},
}
