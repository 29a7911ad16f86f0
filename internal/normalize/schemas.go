package normalize

// Built-in schemas for the canonical datasets. Rename entries accumulate as
// new upstreams are wired in; a field missing here simply stays out of the
// canonical table.

var scheduleSchema = Schema{
	Dataset: "schedule",
	Columns: []string{
		"GAME_ID", "GAME_DATE", "SEASON_TYPE", "TEAM_ID", "OPPONENT_ID",
		"HOME_AWAY", "VENUE", "STATUS",
	},
	Keys: []string{"GAME_ID"},
	Rename: map[string]string{
		"gameId":      "GAME_ID",
		"gamecode":    "GAME_ID",
		"game_code":   "GAME_ID",
		"date":        "GAME_DATE",
		"gameDateEst": "GAME_DATE",
		"homeAway":    "HOME_AWAY",
		"arena":       "VENUE",
	},
	Types: map[string]Type{
		"GAME_ID":   TypeString,
		"GAME_DATE": TypeDate,
		"TEAM_ID":   TypeString,
	},
}

var shotsSchema = Schema{
	Dataset: "shots",
	Columns: []string{
		"GAME_ID", "EVENT_ID", "PLAYER_ID", "TEAM_ID", "PERIOD",
		"LOC_X", "LOC_Y", "SHOT_MADE", "SHOT_VALUE", "SHOT_DISTANCE",
	},
	Keys: []string{"GAME_ID", "EVENT_ID"},
	Rename: map[string]string{
		"gameId":          "GAME_ID",
		"gamecode":        "GAME_ID",
		"GAME_EVENT_ID":   "EVENT_ID",
		"num_anot":        "EVENT_ID",
		"playerId":        "PLAYER_ID",
		"ID_PLAYER":       "PLAYER_ID",
		"teamId":          "TEAM_ID",
		"quarter":         "PERIOD",
		"COORD_X":         "LOC_X",
		"COORD_Y":         "LOC_Y",
		"x":               "LOC_X",
		"y":               "LOC_Y",
		"SHOT_MADE_FLAG":  "SHOT_MADE",
		"made":            "SHOT_MADE",
		"points":          "SHOT_VALUE",
		"SHOT_TYPE_VALUE": "SHOT_VALUE",
	},
	Types: map[string]Type{
		"GAME_ID":       TypeString,
		"EVENT_ID":      TypeString,
		"PLAYER_ID":     TypeString,
		"TEAM_ID":       TypeString,
		"PERIOD":        TypeInt,
		"LOC_X":         TypeFloat,
		"LOC_Y":         TypeFloat,
		"SHOT_MADE":     TypeBool,
		"SHOT_VALUE":    TypeInt,
		"SHOT_DISTANCE": TypeFloat,
	},
}

var playerGameSchema = Schema{
	Dataset: "player_game",
	Columns: []string{
		"GAME_ID", "PLAYER_ID", "PLAYER_NAME", "TEAM_ID", "GAME_DATE",
		"MIN", "PTS", "FGM", "FGA", "FG_PCT", "FG3M", "FG3A", "FG3_PCT",
		"FTM", "FTA", "FT_PCT", "REB", "AST", "STL", "BLK", "TOV",
		"PRE_PROFESSIONAL",
	},
	Keys: []string{"GAME_ID", "PLAYER_ID"},
	Rename: map[string]string{
		"gameId":       "GAME_ID",
		"gamecode":     "GAME_ID",
		"playerId":     "PLAYER_ID",
		"player":       "PLAYER_NAME",
		"nombre":       "PLAYER_NAME",
		"zaidejas":     "PLAYER_NAME",
		"teamId":       "TEAM_ID",
		"minutes":      "MIN",
		"points":       "PTS",
		"fieldGoals2":  "FGM",
		"totRebounds":  "REB",
		"assistances":  "AST",
		"steals":       "STL",
		"blocksFavour": "BLK",
		"turnovers":    "TOV",
	},
	Types: map[string]Type{
		"GAME_ID":     TypeString,
		"PLAYER_ID":   TypeString,
		"PLAYER_NAME": TypeString,
		"TEAM_ID":     TypeString,
		"GAME_DATE":   TypeDate,
		"MIN":         TypeFloat,
		"PTS":         TypeFloat,
		"FGM":         TypeFloat,
		"FGA":         TypeFloat,
		"FG3M":        TypeFloat,
		"FG3A":        TypeFloat,
		"FTM":         TypeFloat,
		"FTA":         TypeFloat,
		"REB":         TypeFloat,
		"AST":         TypeFloat,
		"STL":         TypeFloat,
		"BLK":         TypeFloat,
		"TOV":         TypeFloat,
	},
	Derived: []Derived{
		{Column: "FG_PCT", Numerator: "FGM", Denominator: "FGA"},
		{Column: "FG3_PCT", Numerator: "FG3M", Denominator: "FG3A"},
		{Column: "FT_PCT", Numerator: "FTM", Denominator: "FTA"},
	},
}

var teamGameSchema = Schema{
	Dataset: "team_game",
	Columns: []string{
		"GAME_ID", "TEAM_ID", "OPPONENT_ID", "GAME_DATE", "HOME_AWAY",
		"PTS", "FGM", "FGA", "FG_PCT", "REB", "AST", "TOV", "WIN",
	},
	Keys: []string{"GAME_ID", "TEAM_ID"},
	Rename: map[string]string{
		"gameId":   "GAME_ID",
		"teamId":   "TEAM_ID",
		"points":   "PTS",
		"homeAway": "HOME_AWAY",
	},
	Types: map[string]Type{
		"GAME_ID":     TypeString,
		"TEAM_ID":     TypeString,
		"OPPONENT_ID": TypeString,
		"GAME_DATE":   TypeDate,
		"PTS":         TypeFloat,
		"FGM":         TypeFloat,
		"FGA":         TypeFloat,
		"REB":         TypeFloat,
		"AST":         TypeFloat,
		"TOV":         TypeFloat,
		"WIN":         TypeBool,
	},
	Derived: []Derived{
		{Column: "FG_PCT", Numerator: "FGM", Denominator: "FGA"},
	},
}

var builtinSchemas = map[string]Schema{
	"schedule":    scheduleSchema,
	"shots":       shotsSchema,
	"player_game": playerGameSchema,
	"team_game":   teamGameSchema,
}

// SchemaFor returns the canonical schema for a dataset id.
func SchemaFor(dataset string) (Schema, bool) {
	s, ok := builtinSchemas[dataset]
	return s, ok
}
