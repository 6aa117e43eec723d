package services

import (
	"sort"
	"strings"
	"time"

	"github.com/ensemble/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// leadershipKinds are the application columns the global filter matches.
var leadershipKinds = []string{"svp", "vp", "director", "app_owner", "app_manager", "unit_cio"}

type GlobalScorecardRequest struct {
	Year             int    `form:"year" json:"year" binding:"required"`
	LeadershipFilter string `form:"leadership_filter" json:"leadership_filter"`
	LeadershipType   string `form:"leadership_type" json:"leadership_type" binding:"omitempty,oneof=svp vp director app_owner app_manager unit_cio"`
}

// LeadershipOptions lists distinct leadership names for filter dropdowns.
type LeadershipOptions struct {
	SVP        []string `json:"svp"`
	VP         []string `json:"vp"`
	Director   []string `json:"director"`
	AppOwner   []string `json:"app_owner"`
	AppManager []string `json:"app_manager"`
	UnitCIO    []string `json:"unit_cio"`
}

type PublishTimestamp struct {
	TeamID      uint      `json:"team_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	PublishedAt time.Time `json:"published_at"`
}

type ThresholdBreach struct {
	ScorecardEntryID uint            `json:"scorecard_entry_id"`
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	Kind             string          `json:"kind"` // availability, volume
	Value            decimal.Decimal `json:"value"`
	Threshold        decimal.Decimal `json:"threshold"`
}

type ScorecardStats struct {
	Applications         int                 `json:"applications"`
	Entries              int                 `json:"entries"`
	AvailabilityReported int                 `json:"availability_reported"`
	AvailabilityBreaches int                 `json:"availability_breaches"`
	AverageAvailability  decimal.NullDecimal `json:"average_availability"`
	VolumeReported       int                 `json:"volume_reported"`
	VolumeBreaches       int                 `json:"volume_breaches"`
	Breaches             []ThresholdBreach   `json:"breaches"`
}

// ScorecardData is the payload behind both the enterprise and team views.
type ScorecardData struct {
	Year              int                         `json:"year"`
	Teams             []models.Team               `json:"teams,omitempty"`
	Applications      []models.Application        `json:"applications"`
	Entries           []models.ScorecardEntry     `json:"entries"`
	Availability      []models.AvailabilityRecord `json:"availability"`
	Volume            []models.VolumeRecord       `json:"volume"`
	PublishTimestamps []PublishTimestamp          `json:"publish_timestamps,omitempty"`
	PublishStatuses   []models.PublishStatus      `json:"publish_statuses,omitempty"`
	LeadershipOptions *LeadershipOptions          `json:"leadership_options,omitempty"`
	Stats             ScorecardStats              `json:"stats"`
}

type ScorecardViewService struct {
	db *gorm.DB
}

func NewScorecardViewService(db *gorm.DB) *ScorecardViewService {
	return &ScorecardViewService{db: db}
}

type periodKey struct {
	teamID uint
	year   int
	month  int
}

// GetGlobalScorecardData returns published data across all active teams.
// A record is included only when its month is live and it was last
// modified no later than that month's publish stamp. Records for the prior
// year are returned so January can compare against December.
func (s *ScorecardViewService) GetGlobalScorecardData(req *GlobalScorecardRequest) (*ScorecardData, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if err := validatePeriod(req.Year, 1); err != nil {
		return nil, err
	}

	var teams []models.Team
	if err := s.db.Where("is_active = ?", true).Order("name ASC").Find(&teams).Error; err != nil {
		return nil, err
	}
	teamIDs := make([]uint, 0, len(teams))
	for _, t := range teams {
		teamIDs = append(teamIDs, t.ID)
	}

	data := &ScorecardData{
		Year:         req.Year,
		Teams:        teams,
		Applications: []models.Application{},
		Entries:      []models.ScorecardEntry{},
		Availability: []models.AvailabilityRecord{},
		Volume:       []models.VolumeRecord{},
	}
	if len(teamIDs) == 0 {
		data.LeadershipOptions = &LeadershipOptions{}
		return data, nil
	}

	var allApps []models.Application
	if err := s.db.Where("team_id IN ? AND is_active = ?", teamIDs, true).Order("name ASC").Find(&allApps).Error; err != nil {
		return nil, err
	}
	data.LeadershipOptions = buildLeadershipOptions(allApps)
	data.Applications = filterByLeadership(allApps, req.LeadershipFilter, req.LeadershipType)

	appTeam := make(map[uint]uint, len(data.Applications))
	appIDs := make([]uint, 0, len(data.Applications))
	for _, a := range data.Applications {
		appTeam[a.ID] = a.TeamID
		appIDs = append(appIDs, a.ID)
	}
	if len(appIDs) == 0 {
		return data, nil
	}

	if err := s.db.Where("application_id IN ?", appIDs).Order("id ASC").Find(&data.Entries).Error; err != nil {
		return nil, err
	}
	entryTeam := make(map[uint]uint, len(data.Entries))
	entryIDs := make([]uint, 0, len(data.Entries))
	for _, e := range data.Entries {
		entryTeam[e.ID] = appTeam[e.ApplicationID]
		entryIDs = append(entryIDs, e.ID)
	}

	years := []int{req.Year - 1, req.Year}
	var statuses []models.PublishStatus
	if err := s.db.Where("team_id IN ? AND year IN ? AND is_published = ?", teamIDs, years, true).Find(&statuses).Error; err != nil {
		return nil, err
	}
	live := make(map[periodKey]time.Time)
	for i := range statuses {
		st := &statuses[i]
		if !st.IsLive() {
			continue
		}
		live[periodKey{st.TeamID, st.Year, st.Month}] = *st.PublishedAt
		data.PublishTimestamps = append(data.PublishTimestamps, PublishTimestamp{
			TeamID: st.TeamID, Year: st.Year, Month: st.Month, PublishedAt: *st.PublishedAt,
		})
	}
	sort.Slice(data.PublishTimestamps, func(i, j int) bool {
		a, b := data.PublishTimestamps[i], data.PublishTimestamps[j]
		if a.TeamID != b.TeamID {
			return a.TeamID < b.TeamID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	if len(entryIDs) > 0 {
		var availability []models.AvailabilityRecord
		if err := s.db.Where("scorecard_entry_id IN ? AND year IN ?", entryIDs, years).
			Order("year ASC, month ASC, id ASC").Find(&availability).Error; err != nil {
			return nil, err
		}
		var volume []models.VolumeRecord
		if err := s.db.Where("scorecard_entry_id IN ? AND year IN ?", entryIDs, years).
			Order("year ASC, month ASC, id ASC").Find(&volume).Error; err != nil {
			return nil, err
		}

		for _, r := range availability {
			if isLive(live, entryTeam[r.ScorecardEntryID], r.Year, r.Month, r.LastModified()) {
				data.Availability = append(data.Availability, r)
			}
		}
		for _, r := range volume {
			if isLive(live, entryTeam[r.ScorecardEntryID], r.Year, r.Month, r.LastModified()) {
				data.Volume = append(data.Volume, r)
			}
		}
	}

	data.Stats = computeStats(req.Year, data.Applications, data.Entries, data.Availability, data.Volume)
	return data, nil
}

func isLive(live map[periodKey]time.Time, teamID uint, year, month int, modified time.Time) bool {
	publishedAt, ok := live[periodKey{teamID, year, month}]
	return ok && !modified.After(publishedAt)
}

// GetTeamScorecardData returns a team's own data regardless of publish
// state, for members preparing a month.
func (s *ScorecardViewService) GetTeamScorecardData(caller *Caller, teamID uint, year int) (*ScorecardData, error) {
	if err := validatePeriod(year, 1); err != nil {
		return nil, err
	}
	team, err := loadTeam(s.db, teamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "scorecard data", TeamID: teamID}); err != nil {
		return nil, err
	}

	data := &ScorecardData{
		Year:         year,
		Teams:        []models.Team{*team},
		Applications: []models.Application{},
		Entries:      []models.ScorecardEntry{},
		Availability: []models.AvailabilityRecord{},
		Volume:       []models.VolumeRecord{},
	}
	if err := s.db.Where("team_id = ? AND is_active = ?", teamID, true).Order("name ASC").Find(&data.Applications).Error; err != nil {
		return nil, err
	}
	appIDs := make([]uint, 0, len(data.Applications))
	for _, a := range data.Applications {
		appIDs = append(appIDs, a.ID)
	}

	years := []int{year - 1, year}
	if len(appIDs) > 0 {
		if err := s.db.Where("application_id IN ?", appIDs).Order("id ASC").Find(&data.Entries).Error; err != nil {
			return nil, err
		}
	}
	if len(data.Entries) > 0 {
		entryIDs := make([]uint, 0, len(data.Entries))
		for _, e := range data.Entries {
			entryIDs = append(entryIDs, e.ID)
		}
		if err := s.db.Where("scorecard_entry_id IN ? AND year IN ?", entryIDs, years).
			Order("year ASC, month ASC, id ASC").Find(&data.Availability).Error; err != nil {
			return nil, err
		}
		if err := s.db.Where("scorecard_entry_id IN ? AND year IN ?", entryIDs, years).
			Order("year ASC, month ASC, id ASC").Find(&data.Volume).Error; err != nil {
			return nil, err
		}
	}
	if err := s.db.Where("team_id = ? AND year = ?", teamID, year).Order("month ASC").Find(&data.PublishStatuses).Error; err != nil {
		return nil, err
	}

	data.Stats = computeStats(year, data.Applications, data.Entries, data.Availability, data.Volume)
	return data, nil
}

func filterByLeadership(apps []models.Application, filter, kind string) []models.Application {
	needle := strings.ToLower(strings.TrimSpace(filter))
	if needle == "" {
		return apps
	}
	out := make([]models.Application, 0, len(apps))
	for _, a := range apps {
		values := leadershipValues(&a)
		if kind != "" {
			if strings.Contains(strings.ToLower(values[kind]), needle) {
				out = append(out, a)
			}
			continue
		}
		for _, col := range leadershipKinds {
			if strings.Contains(strings.ToLower(values[col]), needle) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

func leadershipValues(a *models.Application) map[string]string {
	return map[string]string{
		"svp":         a.SVP,
		"vp":          a.VP,
		"director":    a.Director,
		"app_owner":   a.AppOwner,
		"app_manager": a.AppManager,
		"unit_cio":    a.UnitCIO,
	}
}

func buildLeadershipOptions(apps []models.Application) *LeadershipOptions {
	sets := make(map[string]map[string]bool, len(leadershipKinds))
	for _, col := range leadershipKinds {
		sets[col] = make(map[string]bool)
	}
	for i := range apps {
		for col, v := range leadershipValues(&apps[i]) {
			if v = strings.TrimSpace(v); v != "" {
				sets[col][v] = true
			}
		}
	}
	sorted := func(col string) []string {
		out := make([]string, 0, len(sets[col]))
		for v := range sets[col] {
			out = append(out, v)
		}
		sort.Strings(out)
		return out
	}
	return &LeadershipOptions{
		SVP:        sorted("svp"),
		VP:         sorted("vp"),
		Director:   sorted("director"),
		AppOwner:   sorted("app_owner"),
		AppManager: sorted("app_manager"),
		UnitCIO:    sorted("unit_cio"),
	}
}

type volumeKey struct {
	entryID uint
	year    int
	month   int
}

// computeStats summarizes the requested year. An availability value below
// its entry threshold is a breach; a volume month-over-month change whose
// magnitude exceeds the entry threshold is a breach.
func computeStats(year int, apps []models.Application, entries []models.ScorecardEntry,
	availability []models.AvailabilityRecord, volume []models.VolumeRecord) ScorecardStats {

	stats := ScorecardStats{
		Applications: len(apps),
		Entries:      len(entries),
		Breaches:     []ThresholdBreach{},
	}
	byID := make(map[uint]*models.ScorecardEntry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}

	sum := decimal.Zero
	for _, r := range availability {
		if r.Year != year {
			continue
		}
		stats.AvailabilityReported++
		sum = sum.Add(r.Availability)
		entry := byID[r.ScorecardEntryID]
		if entry == nil || !entry.AvailabilityThreshold.Valid {
			continue
		}
		if r.Availability.LessThan(entry.AvailabilityThreshold.Decimal) {
			stats.AvailabilityBreaches++
			stats.Breaches = append(stats.Breaches, ThresholdBreach{
				ScorecardEntryID: r.ScorecardEntryID, Year: r.Year, Month: r.Month,
				Kind: "availability", Value: r.Availability, Threshold: entry.AvailabilityThreshold.Decimal,
			})
		}
	}
	if stats.AvailabilityReported > 0 {
		avg := sum.Div(decimal.NewFromInt(int64(stats.AvailabilityReported))).Round(3)
		stats.AverageAvailability = decimal.NewNullDecimal(avg)
	}

	volumes := make(map[volumeKey]int64, len(volume))
	for _, r := range volume {
		volumes[volumeKey{r.ScorecardEntryID, r.Year, r.Month}] = r.Volume
	}
	for _, r := range volume {
		if r.Year != year {
			continue
		}
		stats.VolumeReported++
		entry := byID[r.ScorecardEntryID]
		if entry == nil || !entry.VolumeChangeThreshold.Valid {
			continue
		}
		change, ok := volumeChange(volumes, r)
		if !ok {
			continue
		}
		if change.Abs().GreaterThan(entry.VolumeChangeThreshold.Decimal) {
			stats.VolumeBreaches++
			stats.Breaches = append(stats.Breaches, ThresholdBreach{
				ScorecardEntryID: r.ScorecardEntryID, Year: r.Year, Month: r.Month,
				Kind: "volume", Value: change, Threshold: entry.VolumeChangeThreshold.Decimal,
			})
		}
	}
	return stats
}

// volumeChange returns the percent change from the previous month. January
// compares with December of the prior year.
func volumeChange(volumes map[volumeKey]int64, r models.VolumeRecord) (decimal.Decimal, bool) {
	prevYear, prevMonth := r.Year, r.Month-1
	if prevMonth == 0 {
		prevYear, prevMonth = r.Year-1, 12
	}
	prev, ok := volumes[volumeKey{r.ScorecardEntryID, prevYear, prevMonth}]
	if !ok || prev == 0 {
		return decimal.Zero, false
	}
	delta := decimal.NewFromInt(r.Volume - prev)
	return delta.Div(decimal.NewFromInt(prev)).Mul(hundred).Round(3), true
}
