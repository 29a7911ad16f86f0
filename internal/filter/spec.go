// Package filter validates generic dataset filters, resolves naming aliases,
// and compiles them into per-source parameters plus a post-fetch mask.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// ValidationError reports a malformed or conflicting filter. It is surfaced
// before any network activity.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid filters: " + e.Msg
	}
	return fmt.Sprintf("invalid filter %q: %s", e.Field, e.Msg)
}

// Spec is an immutable, validated filter set for one request.
type Spec struct {
	League     string
	Season     string
	SeasonType string
	DateFrom   time.Time
	DateTo     time.Time
	TeamID     string
	PlayerID   string
	OpponentID string
	PerMode    string
	LastNGames int
	MinMinutes float64
	GameIDs    []string
	HomeAway   string // "", "home", "away"
	Periods    []int

	// IncludePrePro keeps pre-professional (junior/development) appearances.
	IncludePrePro bool
}

// Logical field names. Raw filter keys are folded and matched against the
// alias table below; two aliases of the same field must agree in value.
const (
	FieldSeason     = "season"
	FieldSeasonType = "season_type"
	FieldDateFrom   = "date_from"
	FieldDateTo     = "date_to"
	FieldTeamID     = "team_id"
	FieldPlayerID   = "player_id"
	FieldOpponentID = "opponent_id"
	FieldPerMode    = "per_mode"
	FieldLastNGames = "last_n_games"
	FieldMinMinutes = "min_minutes"
	FieldGameIDs    = "game_ids"
	FieldHomeAway   = "home_away"
	FieldPeriods    = "periods"
	FieldPrePro     = "include_pre_professional"
)

// aliasTable maps folded raw keys to logical fields. Folding strips
// underscores, hyphens and case, so SeasonType, season-type and SEASON_TYPE
// all land on the same entry.
var aliasTable = map[string]string{
	"season":                 FieldSeason,
	"seasonyear":             FieldSeason,
	"seasontype":             FieldSeasonType,
	"seasonstage":            FieldSeasonType,
	"datefrom":               FieldDateFrom,
	"startdate":              FieldDateFrom,
	"dateto":                 FieldDateTo,
	"enddate":                FieldDateTo,
	"teamid":                 FieldTeamID,
	"team":                   FieldTeamID,
	"playerid":               FieldPlayerID,
	"player":                 FieldPlayerID,
	"opponentid":             FieldOpponentID,
	"opponent":               FieldOpponentID,
	"opponentteamid":         FieldOpponentID,
	"permode":                FieldPerMode,
	"lastngames":             FieldLastNGames,
	"lastn":                  FieldLastNGames,
	"minminutes":             FieldMinMinutes,
	"minutesmin":             FieldMinMinutes,
	"gameids":                FieldGameIDs,
	"gameid":                 FieldGameIDs,
	"games":                  FieldGameIDs,
	"homeaway":               FieldHomeAway,
	"location":               FieldHomeAway,
	"periods":                FieldPeriods,
	"period":                 FieldPeriods,
	"includepreprofessional": FieldPrePro,
	"includeprepro":          FieldPrePro,
	"prepro":                 FieldPrePro,
}

var keyFolder = cases.Fold()

// foldKey normalizes a raw filter key for alias lookup.
func foldKey(k string) string {
	k = keyFolder.String(k)
	k = strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
	return k
}

// seasonPatterns holds the expected season string shape per league. Leagues
// absent from the map use the cross-year default.
var (
	seasonCrossYear  = regexp.MustCompile(`^\d{4}-\d{2}$`)
	seasonSingleYear = regexp.MustCompile(`^\d{4}$`)

	seasonPatterns = map[string]*regexp.Regexp{
		"NBA":        seasonCrossYear,
		"WNBA":       seasonSingleYear,
		"NBL":        seasonSingleYear,
		"EUROLEAGUE": seasonCrossYear,
		"EUROCUP":    seasonCrossYear,
		"ACB":        seasonCrossYear,
		"LKL":        seasonCrossYear,
		"BSL":        seasonCrossYear,
	}
)

var validSeasonTypes = map[string]bool{
	"Regular Season": true,
	"Playoffs":       true,
	"Preseason":      true,
	"All Star":       true,
}

var validPerModes = map[string]bool{
	"Totals":    true,
	"PerGame":   true,
	"Per36":     true,
	"Per40":     true,
	"Per100":    true,
	"MinutesPer": true,
}

const dateLayout = "2006-01-02"

// Validate resolves aliases in raw filters and builds a Spec for the league.
// It fails with *ValidationError on unknown keys, malformed values,
// conflicting aliases, a season that does not match the league's pattern, or
// an inverted date range.
func Validate(raw map[string]any, league string) (*Spec, error) {
	if league == "" {
		return nil, &ValidationError{Msg: "league is required"}
	}

	// Resolve aliases first so conflicts fail deterministically regardless of
	// map iteration order.
	resolved := make(map[string]any, len(raw))
	chosenKey := make(map[string]string, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field, ok := aliasTable[foldKey(k)]
		if !ok {
			return nil, &ValidationError{Field: k, Msg: "unknown filter"}
		}
		v := raw[k]
		if prev, dup := resolved[field]; dup {
			if !valuesEqual(prev, v) {
				return nil, &ValidationError{
					Field: field,
					Msg: fmt.Sprintf("conflicting aliases %q and %q disagree (%v vs %v)",
						chosenKey[field], k, prev, v),
				}
			}
			continue
		}
		resolved[field] = v
		chosenKey[field] = k
	}

	spec := &Spec{League: league}
	var err error

	for field, v := range resolved {
		switch field {
		case FieldSeason:
			spec.Season, err = asString(field, v)
		case FieldSeasonType:
			spec.SeasonType, err = asString(field, v)
		case FieldDateFrom:
			spec.DateFrom, err = asDate(field, v)
		case FieldDateTo:
			spec.DateTo, err = asDate(field, v)
		case FieldTeamID:
			spec.TeamID, err = asString(field, v)
		case FieldPlayerID:
			spec.PlayerID, err = asString(field, v)
		case FieldOpponentID:
			spec.OpponentID, err = asString(field, v)
		case FieldPerMode:
			spec.PerMode, err = asString(field, v)
		case FieldLastNGames:
			spec.LastNGames, err = asInt(field, v)
		case FieldMinMinutes:
			spec.MinMinutes, err = asFloat(field, v)
		case FieldGameIDs:
			spec.GameIDs, err = asStringList(field, v)
		case FieldHomeAway:
			spec.HomeAway, err = asString(field, v)
		case FieldPeriods:
			spec.Periods, err = asIntList(field, v)
		case FieldPrePro:
			spec.IncludePrePro, err = asBool(field, v)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := spec.check(); err != nil {
		return nil, err
	}
	return spec, nil
}

// check enforces cross-field invariants after alias resolution.
func (s *Spec) check() error {
	if s.Season != "" {
		pat, ok := seasonPatterns[s.League]
		if !ok {
			pat = seasonCrossYear
		}
		if !pat.MatchString(s.Season) {
			return &ValidationError{
				Field: FieldSeason,
				Msg:   fmt.Sprintf("%q does not match the %s season pattern", s.Season, s.League),
			}
		}
	}
	if s.SeasonType != "" && !validSeasonTypes[s.SeasonType] {
		return &ValidationError{Field: FieldSeasonType, Msg: fmt.Sprintf("unknown value %q", s.SeasonType)}
	}
	if s.PerMode != "" && !validPerModes[s.PerMode] {
		return &ValidationError{Field: FieldPerMode, Msg: fmt.Sprintf("unknown value %q", s.PerMode)}
	}
	if !s.DateFrom.IsZero() && !s.DateTo.IsZero() && s.DateFrom.After(s.DateTo) {
		return &ValidationError{
			Field: FieldDateFrom,
			Msg: fmt.Sprintf("date range start %s is after end %s",
				s.DateFrom.Format(dateLayout), s.DateTo.Format(dateLayout)),
		}
	}
	if s.LastNGames < 0 {
		return &ValidationError{Field: FieldLastNGames, Msg: "must be non-negative"}
	}
	if s.MinMinutes < 0 {
		return &ValidationError{Field: FieldMinMinutes, Msg: "must be non-negative"}
	}
	switch s.HomeAway {
	case "", "home", "away":
	default:
		return &ValidationError{Field: FieldHomeAway, Msg: `must be "home" or "away"`}
	}
	for _, p := range s.Periods {
		if p < 1 {
			return &ValidationError{Field: FieldPeriods, Msg: "period numbers start at 1"}
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	as, aerr := coerceString(a)
	bs, berr := coerceString(b)
	if aerr != nil || berr != nil {
		return false
	}
	return as == bs
}

func coerceString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

func asString(field string, v any) (string, error) {
	s, err := coerceString(v)
	if err != nil {
		return "", &ValidationError{Field: field, Msg: err.Error()}
	}
	return s, nil
}

func asDate(field string, v any) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	s, err := asString(field, v)
	if err != nil {
		return time.Time{}, err
	}
	t, perr := time.Parse(dateLayout, s)
	if perr != nil {
		return time.Time{}, &ValidationError{Field: field, Msg: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return t, nil
}

func asInt(field string, v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, &ValidationError{Field: field, Msg: "expected an integer"}
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, &ValidationError{Field: field, Msg: fmt.Sprintf("expected an integer, got %q", x)}
		}
		return n, nil
	default:
		return 0, &ValidationError{Field: field, Msg: fmt.Sprintf("unsupported type %T", v)}
	}
}

func asFloat(field string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, &ValidationError{Field: field, Msg: fmt.Sprintf("expected a number, got %q", x)}
		}
		return f, nil
	default:
		return 0, &ValidationError{Field: field, Msg: fmt.Sprintf("unsupported type %T", v)}
	}
}

func asBool(field string, v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, &ValidationError{Field: field, Msg: fmt.Sprintf("expected a boolean, got %q", x)}
		}
		return b, nil
	default:
		return false, &ValidationError{Field: field, Msg: fmt.Sprintf("unsupported type %T", v)}
	}
}

func asStringList(field string, v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...), nil
	case string:
		if x == "" {
			return nil, nil
		}
		parts := strings.Split(x, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, err := asString(field, e)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &ValidationError{Field: field, Msg: fmt.Sprintf("unsupported type %T", v)}
	}
}

func asIntList(field string, v any) ([]int, error) {
	switch x := v.(type) {
	case []int:
		return append([]int(nil), x...), nil
	case int:
		return []int{x}, nil
	case float64:
		n, err := asInt(field, x)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	case string:
		if x == "" {
			return nil, nil
		}
		parts := strings.Split(x, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := asInt(field, p)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case []any:
		out := make([]int, 0, len(x))
		for _, e := range x {
			n, err := asInt(field, e)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, &ValidationError{Field: field, Msg: fmt.Sprintf("unsupported type %T", v)}
	}
}
