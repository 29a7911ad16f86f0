package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AliasResolution(t *testing.T) {
	spec, err := Validate(map[string]any{
		"SeasonType": "Playoffs",
		"team":       "LAL",
		"start-date": "2024-01-01",
	}, "NBA")

	require.NoError(t, err)
	assert.Equal(t, "Playoffs", spec.SeasonType)
	assert.Equal(t, "LAL", spec.TeamID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), spec.DateFrom)
}

func TestValidate_ConflictingAliasesDisagree(t *testing.T) {
	_, err := Validate(map[string]any{
		"team_id": "LAL",
		"team":    "BOS",
	}, "NBA")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, FieldTeamID, ve.Field)
	assert.Contains(t, ve.Msg, "conflicting aliases")
}

func TestValidate_ConflictingAliasesAgree(t *testing.T) {
	spec, err := Validate(map[string]any{
		"team_id": "LAL",
		"team":    "LAL",
	}, "NBA")

	require.NoError(t, err)
	assert.Equal(t, "LAL", spec.TeamID)
}

func TestValidate_UnknownFilter(t *testing.T) {
	_, err := Validate(map[string]any{"shoe_size": 11}, "NBA")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "shoe_size", ve.Field)
}

func TestValidate_SeasonPatternPerLeague(t *testing.T) {
	cases := []struct {
		league string
		season string
		ok     bool
	}{
		{"NBA", "2023-24", true},
		{"NBA", "2023", false},
		{"WNBA", "2024", true},
		{"WNBA", "2023-24", false},
		{"NBL", "2024", true},
		{"LKL", "2023-24", true},
		{"UNKNOWN_LEAGUE", "2023-24", true}, // cross-year default
	}
	for _, tc := range cases {
		_, err := Validate(map[string]any{"season": tc.season}, tc.league)
		if tc.ok {
			assert.NoError(t, err, "%s/%s", tc.league, tc.season)
		} else {
			assert.Error(t, err, "%s/%s", tc.league, tc.season)
		}
	}
}

func TestValidate_InvertedDateRange(t *testing.T) {
	_, err := Validate(map[string]any{
		"date_from": "2024-03-01",
		"date_to":   "2024-01-01",
	}, "NBA")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, FieldDateFrom, ve.Field)
}

func TestValidate_ListCoercion(t *testing.T) {
	spec, err := Validate(map[string]any{
		"game_ids": "G3, G1,G2",
		"periods":  []any{1, 4.0},
	}, "NBA")

	require.NoError(t, err)
	assert.Equal(t, []string{"G3", "G1", "G2"}, spec.GameIDs)
	assert.Equal(t, []int{1, 4}, spec.Periods)
}

func TestValidate_BadValues(t *testing.T) {
	cases := []map[string]any{
		{"last_n_games": "five"},
		{"last_n_games": -3},
		{"min_minutes": -1.0},
		{"home_away": "neutral"},
		{"periods": []any{0}},
		{"season_type": "Friendly"},
		{"per_mode": "PerHalf"},
		{"date_from": "01/02/2024"},
	}
	for _, raw := range cases {
		_, err := Validate(raw, "NBA")
		assert.Error(t, err, "%v", raw)
	}
}

func TestValidate_LeagueRequired(t *testing.T) {
	_, err := Validate(nil, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
