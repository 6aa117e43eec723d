package itsm

import (
	"math"
	"strconv"
	"strings"

	"github.com/ensemble/backend/internal/models"
)

// Match is the outcome of resolving a record to an application.
type Match struct {
	ApplicationID *uint
	Source        string
	CmdbCi        string
}

// RecordApplicationField is the payload key a source uses to tag a record
// with its application id. A tag naming a permitted application wins over
// every local mapping.
const RecordApplicationField = "u_application_id"

// Matcher resolves records using a team's workgroup and CMDB CI mappings.
// A workgroup decides only when it maps to exactly one application;
// otherwise the record's cmdb_ci is compared case-insensitively.
type Matcher struct {
	workgroups map[string]map[string][]uint // type -> lower(group) -> app ids
	cmdbCis    map[string]uint              // lower(ci) -> app id
	allowed    map[uint]bool
}

// NewMatcher builds a matcher. Mappings pointing at applications outside
// allowed are ignored; a nil allowed set accepts every application.
func NewMatcher(workgroups []models.AppWorkgroup, cmdbCis []models.AppCmdbCi, allowed map[uint]bool) *Matcher {
	m := &Matcher{
		workgroups: make(map[string]map[string][]uint),
		cmdbCis:    make(map[string]uint),
		allowed:    allowed,
	}

	for _, wg := range workgroups {
		key := normalize(wg.GroupName)
		if key == "" || !m.permitted(wg.ApplicationID) {
			continue
		}
		byGroup, ok := m.workgroups[wg.Type]
		if !ok {
			byGroup = make(map[string][]uint)
			m.workgroups[wg.Type] = byGroup
		}
		if !containsID(byGroup[key], wg.ApplicationID) {
			byGroup[key] = append(byGroup[key], wg.ApplicationID)
		}
	}
	for _, ci := range cmdbCis {
		key := normalize(ci.CmdbCiName)
		if key == "" || !m.permitted(ci.ApplicationID) {
			continue
		}
		// First mapping wins for duplicated CI names.
		if _, exists := m.cmdbCis[key]; !exists {
			m.cmdbCis[key] = ci.ApplicationID
		}
	}
	return m
}

// Resolve picks the application for a record, or reports MatchSourceNone.
func (m *Matcher) Resolve(rec Record) Match {
	if id, ok := taggedApplication(rec); ok && m.permitted(id) {
		return Match{ApplicationID: &id, Source: models.MatchSourceRecord}
	}

	group := normalize(rec.Field("assignment_group"))
	if apps := m.workgroups[rec.Type][group]; group != "" && len(apps) == 1 {
		id := apps[0]
		return Match{ApplicationID: &id, Source: models.MatchSourceWorkgroup}
	}

	ci := rec.Field("cmdb_ci")
	if id, ok := m.cmdbCis[normalize(ci)]; ok && ci != "" {
		return Match{ApplicationID: &id, Source: models.MatchSourceCmdbCi, CmdbCi: ci}
	}
	return Match{Source: models.MatchSourceNone}
}

func (m *Matcher) permitted(id uint) bool {
	return m.allowed == nil || m.allowed[id]
}

// taggedApplication reads the source's own application tag. JSON numbers
// arrive as float64, so both numeric and string forms are accepted.
func taggedApplication(rec Record) (uint, bool) {
	raw := rec.Field(RecordApplicationField)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 1 || f != math.Trunc(f) || f > math.MaxUint32 {
		return 0, false
	}
	return uint(f), true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
