package filter

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/table"
)

// Source parameter vocabularies. Each fetch method declares which vocabulary
// its upstream speaks; sources that cannot filter server-side use VocabNone
// and rely entirely on the post-fetch mask.
const (
	VocabStatsAPI   = "statsapi"   // NBA-stats style query params
	VocabDateWindow = "datewindow" // from/to window only
	VocabGameList   = "gamelist"   // explicit game id list
	VocabSeasonPage = "seasonpage" // season-level page, season code only
	VocabNone       = "none"       // no server-side filtering
)

// Canonical column names the post-fetch mask understands.
const (
	colGameID   = "GAME_ID"
	colGameDate = "GAME_DATE"
	colTeamID   = "TEAM_ID"
	colPlayerID = "PLAYER_ID"
	colOpponent = "OPPONENT_ID"
	colHomeAway = "HOME_AWAY"
	colPeriod   = "PERIOD"
	colMinutes  = "MIN"
	colPrePro   = "PRE_PROFESSIONAL"
)

// Compiled is the output of Compile: a deterministic canonical parameter set
// (the cache-signature input), per-vocabulary source parameters, and the
// post-fetch mask that guarantees filter correctness regardless of what the
// upstream honored.
type Compiled struct {
	League  string
	Dataset string

	spec      *Spec
	canonical map[string]string
}

// Compile turns a validated spec into compiled request state for one
// (league, dataset) pair. The supported set lists filters the dataset
// honors; supplying any other filter fails.
func Compile(spec *Spec, dataset string, supported map[string]bool) (*Compiled, error) {
	if spec == nil {
		return nil, eris.New("filter: nil spec")
	}
	canonical := canonicalParams(spec)
	for field := range canonical {
		if field == FieldSeason {
			continue // every dataset is season-addressable
		}
		if !supported[field] {
			return nil, &ValidationError{Field: field, Msg: "not supported by dataset " + dataset}
		}
	}
	return &Compiled{
		League:    spec.League,
		Dataset:   dataset,
		spec:      spec,
		canonical: canonical,
	}, nil
}

// canonicalParams renders the spec as a flat string map with only the fields
// that are set. Rendering is type-stable so identical specs always produce
// identical maps.
func canonicalParams(s *Spec) map[string]string {
	p := make(map[string]string)
	if s.Season != "" {
		p[FieldSeason] = s.Season
	}
	if s.SeasonType != "" {
		p[FieldSeasonType] = s.SeasonType
	}
	if !s.DateFrom.IsZero() {
		p[FieldDateFrom] = s.DateFrom.Format(dateLayout)
	}
	if !s.DateTo.IsZero() {
		p[FieldDateTo] = s.DateTo.Format(dateLayout)
	}
	if s.TeamID != "" {
		p[FieldTeamID] = s.TeamID
	}
	if s.PlayerID != "" {
		p[FieldPlayerID] = s.PlayerID
	}
	if s.OpponentID != "" {
		p[FieldOpponentID] = s.OpponentID
	}
	if s.PerMode != "" {
		p[FieldPerMode] = s.PerMode
	}
	if s.LastNGames > 0 {
		p[FieldLastNGames] = strconv.Itoa(s.LastNGames)
	}
	if s.MinMinutes > 0 {
		p[FieldMinMinutes] = strconv.FormatFloat(s.MinMinutes, 'g', -1, 64)
	}
	if len(s.GameIDs) > 0 {
		ids := append([]string(nil), s.GameIDs...)
		sort.Strings(ids)
		p[FieldGameIDs] = strings.Join(ids, ",")
	}
	if s.HomeAway != "" {
		p[FieldHomeAway] = s.HomeAway
	}
	if len(s.Periods) > 0 {
		ps := append([]int(nil), s.Periods...)
		sort.Ints(ps)
		parts := make([]string, len(ps))
		for i, n := range ps {
			parts[i] = strconv.Itoa(n)
		}
		p[FieldPeriods] = strings.Join(parts, ",")
	}
	if s.IncludePrePro {
		p[FieldPrePro] = "true"
	}
	return p
}

// Canonical returns the sorted canonical parameter set used for cache
// signatures. The returned map must not be mutated.
func (c *Compiled) Canonical() map[string]string { return c.canonical }

// Spec returns the validated spec this compilation was built from.
func (c *Compiled) Spec() *Spec { return c.spec }

// ParamsFor translates the canonical parameters into one source vocabulary.
// Fields the vocabulary cannot express are dropped here and enforced by the
// mask instead.
func (c *Compiled) ParamsFor(vocab string) map[string]string {
	s := c.spec
	out := make(map[string]string)
	switch vocab {
	case VocabStatsAPI:
		put(out, "Season", s.Season)
		put(out, "SeasonType", s.SeasonType)
		put(out, "PerMode", s.PerMode)
		put(out, "TeamID", s.TeamID)
		put(out, "PlayerID", s.PlayerID)
		put(out, "OpponentTeamID", s.OpponentID)
		if !s.DateFrom.IsZero() {
			out["DateFrom"] = s.DateFrom.Format(dateLayout)
		}
		if !s.DateTo.IsZero() {
			out["DateTo"] = s.DateTo.Format(dateLayout)
		}
		if s.LastNGames > 0 {
			out["LastNGames"] = strconv.Itoa(s.LastNGames)
		}
		switch s.HomeAway {
		case "home":
			out["Location"] = "Home"
		case "away":
			out["Location"] = "Road"
		}
	case VocabDateWindow:
		from, to := s.DateFrom, s.DateTo
		if from.IsZero() && s.Season != "" {
			from, to = seasonWindow(s.League, s.Season)
		}
		if !from.IsZero() {
			out["from"] = from.Format(dateLayout)
		}
		if !to.IsZero() {
			out["to"] = to.Format(dateLayout)
		}
	case VocabGameList:
		if len(s.GameIDs) > 0 {
			ids := append([]string(nil), s.GameIDs...)
			sort.Strings(ids)
			out["games"] = strings.Join(ids, ",")
		}
	case VocabSeasonPage:
		put(out, "season", s.Season)
	case VocabNone:
		// nothing expressible server-side
	}
	return out
}

func put(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

// seasonWindow widens a season code into a generous calendar window for
// sources that only accept date ranges. Cross-year seasons run Aug 1 through
// Jul 31; single-year seasons cover the calendar year.
func seasonWindow(league, season string) (time.Time, time.Time) {
	if seasonSingleYear.MatchString(season) {
		year, err := strconv.Atoi(season)
		if err != nil {
			return time.Time{}, time.Time{}
		}
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	year, err := strconv.Atoi(season[:4])
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return time.Date(year, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year+1, 7, 31, 0, 0, 0, 0, time.UTC)
}

// Mask applies the full filter set to a normalized table. Sources that could
// not filter server-side (or silently ignored parameters) are corrected here;
// filters whose column is absent from the table do not apply.
func (c *Compiled) Mask(t *table.Table) *table.Table {
	s := c.spec
	out := &table.Table{Columns: t.Columns}
	for _, r := range t.Rows {
		if c.keepRow(t, r) {
			out.Rows = append(out.Rows, r)
		}
	}
	if s.LastNGames > 0 && out.HasColumn(colGameDate) {
		out = lastNGames(out, s.LastNGames)
	}
	return out
}

func (c *Compiled) keepRow(t *table.Table, r table.Row) bool {
	s := c.spec
	if s.TeamID != "" && t.HasColumn(colTeamID) && table.CellString(r[colTeamID]) != s.TeamID {
		return false
	}
	if s.PlayerID != "" && t.HasColumn(colPlayerID) && table.CellString(r[colPlayerID]) != s.PlayerID {
		return false
	}
	if s.OpponentID != "" && t.HasColumn(colOpponent) && table.CellString(r[colOpponent]) != s.OpponentID {
		return false
	}
	if s.HomeAway != "" && t.HasColumn(colHomeAway) {
		if !strings.EqualFold(table.CellString(r[colHomeAway]), s.HomeAway) {
			return false
		}
	}
	if len(s.GameIDs) > 0 && t.HasColumn(colGameID) {
		id := table.CellString(r[colGameID])
		found := false
		for _, g := range s.GameIDs {
			if g == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(s.Periods) > 0 && t.HasColumn(colPeriod) {
		p, ok := cellInt(r[colPeriod])
		if !ok {
			return false
		}
		found := false
		for _, want := range s.Periods {
			if want == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.MinMinutes > 0 && t.HasColumn(colMinutes) {
		m, ok := cellFloat(r[colMinutes])
		if !ok || m < s.MinMinutes {
			return false
		}
	}
	if !s.DateFrom.IsZero() || !s.DateTo.IsZero() {
		if t.HasColumn(colGameDate) {
			d, ok := cellDate(r[colGameDate])
			if !ok {
				return false
			}
			if !s.DateFrom.IsZero() && d.Before(s.DateFrom) {
				return false
			}
			if !s.DateTo.IsZero() && d.After(s.DateTo) {
				return false
			}
		}
	}
	if !s.IncludePrePro && t.HasColumn(colPrePro) {
		if b, ok := r[colPrePro].(bool); ok && b {
			return false
		}
	}
	return true
}

// lastNGames keeps each entity's N most recent games, grouped by player when
// the table has one, otherwise by team.
func lastNGames(t *table.Table, n int) *table.Table {
	groupCol := colTeamID
	if t.HasColumn(colPlayerID) {
		groupCol = colPlayerID
	}

	type idxDate struct {
		idx  int
		date time.Time
	}
	groups := make(map[string][]idxDate)
	for i, r := range t.Rows {
		d, _ := cellDate(r[colGameDate])
		key := table.CellString(r[groupCol])
		groups[key] = append(groups[key], idxDate{idx: i, date: d})
	}

	keep := make(map[int]bool, len(t.Rows))
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].date.After(g[j].date) })
		for i, e := range g {
			if i >= n {
				break
			}
			keep[e.idx] = true
		}
	}

	out := &table.Table{Columns: t.Columns}
	for i, r := range t.Rows {
		if keep[i] {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

func cellInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	default:
		return 0, false
	}
}

func cellFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func cellDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range []string{dateLayout, time.RFC3339} {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
