package catalog

import "github.com/hooplens/courtsource/internal/filter"

// Canonical dataset ids.
const (
	DatasetSchedule   = "schedule"
	DatasetShots      = "shots"
	DatasetPlayerGame = "player_game"
	DatasetTeamGame   = "team_game"
)

var datasetKeys = map[string][]string{
	DatasetSchedule:   {"GAME_ID"},
	DatasetShots:      {"GAME_ID", "EVENT_ID"},
	DatasetPlayerGame: {"GAME_ID", "PLAYER_ID"},
	DatasetTeamGame:   {"GAME_ID", "TEAM_ID"},
}

var datasetFilters = map[string][]string{
	DatasetSchedule: {
		filter.FieldSeason, filter.FieldSeasonType, filter.FieldDateFrom, filter.FieldDateTo,
		filter.FieldTeamID, filter.FieldOpponentID, filter.FieldHomeAway, filter.FieldGameIDs,
	},
	DatasetShots: {
		filter.FieldSeason, filter.FieldSeasonType, filter.FieldDateFrom, filter.FieldDateTo,
		filter.FieldTeamID, filter.FieldPlayerID, filter.FieldOpponentID, filter.FieldGameIDs,
		filter.FieldPeriods,
	},
	DatasetPlayerGame: {
		filter.FieldSeason, filter.FieldSeasonType, filter.FieldDateFrom, filter.FieldDateTo,
		filter.FieldTeamID, filter.FieldPlayerID, filter.FieldOpponentID, filter.FieldGameIDs,
		filter.FieldHomeAway, filter.FieldPerMode, filter.FieldLastNGames, filter.FieldMinMinutes,
		filter.FieldPrePro,
	},
	DatasetTeamGame: {
		filter.FieldSeason, filter.FieldSeasonType, filter.FieldDateFrom, filter.FieldDateTo,
		filter.FieldTeamID, filter.FieldOpponentID, filter.FieldHomeAway, filter.FieldPerMode,
		filter.FieldLastNGames, filter.FieldGameIDs,
	},
}

func filterSet(dataset string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range datasetFilters[dataset] {
		out[f] = true
	}
	return out
}

type seedEntry struct {
	dataset    string
	capability Capability
	chain      []MethodSpec
}

// seedLeagues is the built-in registry. Each league's chain ordering encodes
// operational experience: which upstream answers first, and where the
// browser escape hatch sits for bot-blocked sources.
var seedLeagues = map[string][]seedEntry{
	"NBA": {
		{DatasetSchedule, CapabilityFull, []MethodSpec{
			{Name: "nba_stats_schedule", Kind: KindJSON, SourceID: "nba_stats", Vocab: filter.VocabStatsAPI, URL: "https://stats.nba.com/stats/leaguegamefinder"},
			{Name: "nba_data_schedule", Kind: KindJSON, SourceID: "nba_data", Vocab: filter.VocabDateWindow, URL: "https://data.nba.net/prod/v2/schedule.json"},
		}},
		{DatasetShots, CapabilityFull, []MethodSpec{
			{Name: "nba_stats_shotchart", Kind: KindJSON, SourceID: "nba_stats", Vocab: filter.VocabStatsAPI, URL: "https://stats.nba.com/stats/shotchartdetail"},
			{Name: "nba_stats_shotchart_browser", Kind: KindBrowser, SourceID: "nba_stats_browser", Vocab: filter.VocabStatsAPI, URL: "https://stats.nba.com/stats/shotchartdetail"},
		}},
		{DatasetPlayerGame, CapabilityFull, []MethodSpec{
			{Name: "nba_stats_playergamelogs", Kind: KindJSON, SourceID: "nba_stats", Vocab: filter.VocabStatsAPI, URL: "https://stats.nba.com/stats/playergamelogs"},
			{Name: "nba_stats_playergamelogs_browser", Kind: KindBrowser, SourceID: "nba_stats_browser", Vocab: filter.VocabStatsAPI, URL: "https://stats.nba.com/stats/playergamelogs"},
		}},
		{DatasetTeamGame, CapabilityFull, []MethodSpec{
			{Name: "nba_stats_teamgamelogs", Kind: KindJSON, SourceID: "nba_stats", Vocab: filter.VocabStatsAPI, URL: "https://stats.nba.com/stats/teamgamelogs"},
		}},
	},
	"WNBA": {
		{DatasetSchedule, CapabilityFull, []MethodSpec{
			{Name: "wnba_stats_schedule", Kind: KindJSON, SourceID: "nba_stats", Vocab: filter.VocabStatsAPI, URL: "https://stats.wnba.com/stats/leaguegamefinder"},
		}},
		{DatasetShots, CapabilityLimited, []MethodSpec{
			{Name: "wnba_stats_shotchart", Kind: KindJSON, SourceID: "nba_stats", Vocab: filter.VocabStatsAPI, URL: "https://stats.wnba.com/stats/shotchartdetail"},
		}},
		{DatasetPlayerGame, CapabilityFull, []MethodSpec{
			{Name: "wnba_stats_playergamelogs", Kind: KindJSON, SourceID: "nba_stats", Vocab: filter.VocabStatsAPI, URL: "https://stats.wnba.com/stats/playergamelogs"},
		}},
	},
	"EUROLEAGUE": {
		{DatasetSchedule, CapabilityFull, []MethodSpec{
			{Name: "el_api_schedule", Kind: KindJSON, SourceID: "euroleague_api", Vocab: filter.VocabSeasonPage, URL: "https://api-live.euroleague.net/v2/competitions/E/seasons/{season}/games"},
			{Name: "el_html_schedule", Kind: KindHTML, SourceID: "euroleague_web", Vocab: filter.VocabSeasonPage, URL: "https://www.euroleaguebasketball.net/euroleague/game-center"},
		}},
		{DatasetShots, CapabilityFull, []MethodSpec{
			{Name: "el_api_points", Kind: KindJSON, SourceID: "euroleague_api", Vocab: filter.VocabGameList, URL: "https://live.euroleague.net/api/Points"},
			{Name: "el_api_points_browser", Kind: KindBrowser, SourceID: "euroleague_browser", Vocab: filter.VocabGameList, URL: "https://live.euroleague.net/api/Points"},
		}},
		{DatasetPlayerGame, CapabilityFull, []MethodSpec{
			{Name: "el_api_boxscore", Kind: KindJSON, SourceID: "euroleague_api", Vocab: filter.VocabGameList, URL: "https://live.euroleague.net/api/Boxscore"},
			{Name: "el_rbridge_boxscore", Kind: KindBridge, SourceID: "rbridge", Vocab: filter.VocabSeasonPage, URL: ""},
		}},
	},
	"EUROCUP": {
		{DatasetSchedule, CapabilityFull, []MethodSpec{
			{Name: "ec_api_schedule", Kind: KindJSON, SourceID: "euroleague_api", Vocab: filter.VocabSeasonPage, URL: "https://api-live.euroleague.net/v2/competitions/U/seasons/{season}/games"},
		}},
		{DatasetShots, CapabilityLimited, []MethodSpec{
			{Name: "ec_api_points", Kind: KindJSON, SourceID: "euroleague_api", Vocab: filter.VocabGameList, URL: "https://live.euroleague.net/api/Points"},
		}},
	},
	"ACB": {
		{DatasetSchedule, CapabilityLimited, []MethodSpec{
			{Name: "acb_html_schedule", Kind: KindHTML, SourceID: "acb_web", Vocab: filter.VocabSeasonPage, URL: "https://www.acb.com/calendario"},
			{Name: "acb_html_schedule_browser", Kind: KindBrowser, SourceID: "acb_browser", Vocab: filter.VocabSeasonPage, URL: "https://www.acb.com/calendario"},
		}},
		{DatasetPlayerGame, CapabilityLimited, []MethodSpec{
			{Name: "acb_html_boxscore", Kind: KindHTML, SourceID: "acb_web", Vocab: filter.VocabGameList, URL: "https://www.acb.com/partido/estadisticas"},
			{Name: "acb_embedded_boxscore", Kind: KindEmbedded, SourceID: "acb_web", Vocab: filter.VocabGameList, URL: "https://www.acb.com/partido/estadisticas"},
			{Name: "acb_html_boxscore_browser", Kind: KindBrowser, SourceID: "acb_browser", Vocab: filter.VocabGameList, URL: "https://www.acb.com/partido/estadisticas"},
		}},
	},
	"LKL": {
		{DatasetSchedule, CapabilityLimited, []MethodSpec{
			{Name: "lkl_html_schedule", Kind: KindHTML, SourceID: "lkl_web", Vocab: filter.VocabSeasonPage, URL: "https://lkl.lt/tvarkarastis"},
			{Name: "lkl_html_schedule_browser", Kind: KindBrowser, SourceID: "lkl_browser", Vocab: filter.VocabSeasonPage, URL: "https://lkl.lt/tvarkarastis"},
		}},
		{DatasetShots, CapabilityLimited, []MethodSpec{
			{Name: "lkl_html_shots", Kind: KindHTML, SourceID: "lkl_web", Vocab: filter.VocabSeasonPage, URL: "https://lkl.lt/statistika/metimai"},
			{Name: "lkl_html_shots_alt", Kind: KindHTML, SourceID: "lkl_web", Vocab: filter.VocabGameList, URL: "https://lkl.lt/rungtynes/{game}/metimai"},
			{Name: "lkl_json_shots", Kind: KindJSON, SourceID: "lkl_api", Vocab: filter.VocabGameList, URL: "https://lkl.lt/api/shots"},
			{Name: "lkl_embedded_shots", Kind: KindEmbedded, SourceID: "lkl_web", Vocab: filter.VocabGameList, URL: "https://lkl.lt/rungtynes/{game}"},
			{Name: "lkl_browser_shots", Kind: KindBrowser, SourceID: "lkl_browser", Vocab: filter.VocabGameList, URL: "https://lkl.lt/rungtynes/{game}/metimai"},
		}},
		{DatasetPlayerGame, CapabilityScaffold, []MethodSpec{
			{Name: "lkl_html_boxscore", Kind: KindHTML, SourceID: "lkl_web", Vocab: filter.VocabGameList, URL: "https://lkl.lt/rungtynes/{game}/statistika"},
		}},
	},
	"BSL": {
		{DatasetSchedule, CapabilityScaffold, []MethodSpec{
			{Name: "bsl_html_schedule", Kind: KindHTML, SourceID: "bsl_web", Vocab: filter.VocabSeasonPage, URL: "https://bsl.org.tr/fiksturler"},
		}},
	},
	"NBL": {
		{DatasetSchedule, CapabilityLimited, []MethodSpec{
			{Name: "nbl_json_schedule", Kind: KindJSON, SourceID: "nbl_api", Vocab: filter.VocabDateWindow, URL: "https://api.nbl.com.au/fixtures"},
		}},
		{DatasetPlayerGame, CapabilityLimited, []MethodSpec{
			{Name: "nbl_json_playergame", Kind: KindJSON, SourceID: "nbl_api", Vocab: filter.VocabDateWindow, URL: "https://api.nbl.com.au/player-stats"},
		}},
	},
}

// Seed registers the built-in catalog. Definitions loaded from YAML afterwards
// override these entries.
func Seed(r *Registry) {
	for league, entries := range seedLeagues {
		for _, e := range entries {
			r.MustRegister(&Descriptor{
				League:     league,
				Dataset:    e.dataset,
				KeyColumns: datasetKeys[e.dataset],
				Supported:  filterSet(e.dataset),
				Capability: e.capability,
				Chain:      e.chain,
			})
		}
	}
}
