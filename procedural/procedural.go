// Package procedural implements ProceduralMemory (spec §4.7): storage and
// retrieval of reusable multi-action browsing skills, built on top of
// vectorstore.Store for similarity search over embedded PageContexts.
//
// Grounded on the teacher's action vocabulary (browser/actions.go's
// wait/click/scroll/execute_js/scrape steps, reused verbatim as
// models.ActionStep) and on learning.Engine's versioning/decay shape,
// generalized here to whole action sequences instead of single selectors.
package procedural

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/sift/models"
	"github.com/use-agent/sift/vectorstore"
)

const (
	retrievalMinSimilarity = 0.7
	mergeSimilarityThreshold = 0.9
	rollbackSuccessRateFloor = 0.3
	antiPatternOccurrenceThreshold = 3
	recentWindowSize = 20
)

// Embedder turns a PageContext into a fixed-dimension vector. Any
// embedding backend can be plugged in; the tests and cmd/sift use
// HashEmbedder, a cheap deterministic bag-of-tokens hash, so the package
// has no hard dependency on an external embedding API.
type Embedder func(models.PageContext) []float32

// Memory is the ProceduralMemory store: skills, anti-patterns, and their
// vector index.
type Memory struct {
	mu          sync.RWMutex
	skills      map[string]*models.Skill
	antiPatterns map[string][]*models.AntiPattern // keyed by domain
	failureStreak map[string]int                  // keyed by domain+actionType

	index    *vectorstore.Store
	embed    Embedder
	minUsesBeforeRollback int
}

// New creates a Memory backed by a vectorstore.Store of the given
// dimensionality, using embed to vectorize page contexts.
func New(dimensions int, embed Embedder, minUsesBeforeRollback int) *Memory {
	if embed == nil {
		embed = HashEmbedder(dimensions)
	}
	return &Memory{
		skills:                make(map[string]*models.Skill),
		antiPatterns:          make(map[string][]*models.AntiPattern),
		failureStreak:         make(map[string]int),
		index:                 vectorstore.New(dimensions),
		embed:                 embed,
		minUsesBeforeRollback: minUsesBeforeRollback,
	}
}

// HashEmbedder is a deterministic, dependency-free Embedder: it hashes
// context tokens into a fixed-size vector of small signed floats. It is not
// semantically meaningful the way a trained embedding model is, but it is
// stable (same context -> same vector) and cheap, suitable as the default
// until a real embedding backend is wired.
func HashEmbedder(dimensions int) Embedder {
	return func(ctx models.PageContext) []float32 {
		v := make([]float32, dimensions)
		tokens := tokenize(ctx)
		for _, tok := range tokens {
			sum := sha256.Sum256([]byte(tok))
			idx := int(sum[0])<<8 | int(sum[1])
			idx %= dimensions
			sign := float32(1)
			if sum[2]%2 == 0 {
				sign = -1
			}
			v[idx] += sign
		}
		normalize(v)
		return v
	}
}

func tokenize(ctx models.PageContext) []string {
	var out []string
	out = append(out, "domain:"+ctx.Domain)
	out = append(out, "pagetype:"+ctx.PageType)
	out = append(out, "lang:"+ctx.Language)
	for _, s := range ctx.AvailableSelectors {
		out = append(out, "sel:"+s)
	}
	for _, h := range ctx.ContentTypeHints {
		out = append(out, "hint:"+h)
	}
	return out
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1)
	if sumSq > 0 {
		norm = float32(1.0 / sqrt(sumSq))
	}
	for i := range v {
		v[i] *= norm
	}
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// AddSkill registers a new skill at version 1.
func (m *Memory) AddSkill(s *models.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = skillID(s.Name, s.Preconditions)
	}
	s.CreatedAt = time.Now()
	s.CurrentVersion = 1
	s.VersionHistory = []models.SkillVersion{{
		Version:        1,
		CreatedAt:      s.CreatedAt,
		ActionSequence: s.ActionSequence,
		ChangeReason:   models.ChangeInitial,
	}}

	m.skills[s.ID] = s
	return m.reindex(s)
}

func (m *Memory) reindex(s *models.Skill) error {
	vec := s.Embedding
	if len(vec) == 0 {
		vec = m.embed(models.PageContext{
			Domain:             firstOrEmpty(s.Preconditions.DomainPatterns),
			PageType:           s.Preconditions.PageType,
			Language:           s.Preconditions.Language,
			AvailableSelectors: s.Preconditions.RequiredSelectors,
		})
		s.Embedding = vec
	}
	return m.index.Add(vectorstore.Record{
		ID:         s.ID,
		Vector:     vec,
		EntityType: vectorstore.EntitySkill,
		Text:       s.Name,
	})
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// FindApplicableSkills implements spec §4.7's retrieval algorithm: embed
// the context, search the vector index for cosine similarity >= 0.7, then
// filter to skills whose preconditions the context actually satisfies.
func (m *Memory) FindApplicableSkills(ctx models.PageContext, limit int) []models.SkillMatch {
	vec := m.embed(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches, err := m.index.Search(vec, vectorstore.SearchOptions{
		Limit:    limit * 3, // overfetch since precondition filtering follows
		MinScore: retrievalMinSimilarity,
		Filter:   vectorstore.Filter{EntityType: vectorstore.EntitySkill},
	})
	if err != nil {
		return nil
	}

	var out []models.SkillMatch
	for _, mt := range matches {
		skill, ok := m.skills[mt.ID]
		if !ok {
			continue
		}
		met := preconditionsMet(skill.Preconditions, ctx)
		if !met {
			continue
		}
		out = append(out, models.SkillMatch{Skill: skill, Similarity: mt.Score, PreconditionsMet: met})
		if len(out) >= limit && limit > 0 {
			break
		}
	}
	return out
}

// preconditionsMet checks the 6 precondition axes named in spec §4.7:
// urlPatterns, domainPatterns (with wildcard support), requiredSelectors,
// requiredText, pageType, language.
func preconditionsMet(p models.Preconditions, ctx models.PageContext) bool {
	if len(p.URLPatterns) > 0 && !anyMatchesURLPattern(p.URLPatterns, ctx.URL) {
		return false
	}
	if len(p.DomainPatterns) > 0 && !anyMatchesDomainPattern(p.DomainPatterns, ctx.Domain) {
		return false
	}
	if len(p.RequiredSelectors) > 0 && !allPresent(p.RequiredSelectors, ctx.AvailableSelectors) {
		return false
	}
	if len(p.RequiredText) > 0 && !allPresent(p.RequiredText, ctx.ContentTypeHints) {
		return false
	}
	if p.PageType != "" && p.PageType != ctx.PageType {
		return false
	}
	if p.Language != "" && p.Language != ctx.Language {
		return false
	}
	return true
}

func anyMatchesURLPattern(patterns []string, url string) bool {
	for _, p := range patterns {
		if wildcardMatch(p, url) {
			return true
		}
	}
	return false
}

func anyMatchesDomainPattern(patterns []string, domain string) bool {
	for _, p := range patterns {
		if strings.HasPrefix(p, "*.") {
			suffix := strings.TrimPrefix(p, "*")
			if strings.HasSuffix(domain, suffix) {
				return true
			}
			continue
		}
		if wildcardMatch(p, domain) {
			return true
		}
	}
	return false
}

func wildcardMatch(pattern, s string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}
	parts := strings.Split(pattern, "*")
	idx := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		found := strings.Index(s[idx:], part)
		if found == -1 {
			return false
		}
		if i == 0 && found != 0 {
			return false
		}
		idx += found + len(part)
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(s, last) {
		return false
	}
	return true
}

func allPresent(required, available []string) bool {
	set := make(map[string]struct{}, len(available))
	for _, a := range available {
		set[a] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

// RecordOutcome updates a skill's rolling metrics and triggers an
// automatic rollback if the rolling success rate falls below 0.3 after
// minUsesBeforeRollback uses.
func (m *Memory) RecordOutcome(skillID string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.skills[skillID]
	if !ok {
		return
	}
	s.LastUsed = time.Now()
	s.Metrics.UseCount++
	if success {
		s.Metrics.SuccessCount++
	}
	s.Metrics.RecentWindow = append(s.Metrics.RecentWindow, success)
	if len(s.Metrics.RecentWindow) > recentWindowSize {
		s.Metrics.RecentWindow = s.Metrics.RecentWindow[len(s.Metrics.RecentWindow)-recentWindowSize:]
	}

	if s.Metrics.UseCount >= m.minUsesBeforeRollback && s.Metrics.RollingSuccessRate() < rollbackSuccessRateFloor {
		m.rollbackLocked(s)
	}
}

// rollbackLocked reverts a skill to its previous version when the current
// one has proven unreliable. Must be called with m.mu held.
func (m *Memory) rollbackLocked(s *models.Skill) {
	if len(s.VersionHistory) < 2 {
		return
	}
	prev := s.VersionHistory[len(s.VersionHistory)-2]
	s.ActionSequence = prev.ActionSequence
	s.CurrentVersion = prev.Version
	s.Metrics = models.SkillMetrics{}
	s.VersionHistory = append(s.VersionHistory, models.SkillVersion{
		Version:           prev.Version,
		CreatedAt:         time.Now(),
		ActionSequence:    prev.ActionSequence,
		ChangeReason:      models.ChangeRollback,
		ChangeDescription: fmt.Sprintf("rolled back after rolling success rate fell below %.1f", rollbackSuccessRateFloor),
	})
}

// ExtractSkillFromTrajectory implements spec §4.7's trajectory->skill
// pipeline: a successful Trajectory either merges into an existing
// near-duplicate skill (cosine similarity >= 0.9) or is registered as a
// new skill.
func (m *Memory) ExtractSkillFromTrajectory(traj models.Trajectory, name, description string) (*models.Skill, error) {
	if !traj.Success {
		return nil, fmt.Errorf("procedural: cannot extract a skill from a failed trajectory")
	}

	vec := m.embed(traj.Context)

	m.mu.Lock()
	matches, _ := m.index.Search(vec, vectorstore.SearchOptions{
		Limit:    1,
		MinScore: mergeSimilarityThreshold,
		Filter:   vectorstore.Filter{EntityType: vectorstore.EntitySkill},
	})
	if len(matches) == 1 {
		existing := m.skills[matches[0].ID]
		m.mu.Unlock()
		if existing != nil {
			return m.mergeIntoSkill(existing, traj)
		}
	} else {
		m.mu.Unlock()
	}

	skill := &models.Skill{
		Name:        name,
		Description: description,
		Preconditions: models.Preconditions{
			DomainPatterns: []string{traj.Context.Domain},
			PageType:       traj.Context.PageType,
			Language:       traj.Context.Language,
		},
		ActionSequence: traj.Actions,
		Embedding:      vec,
	}
	if err := m.AddSkill(skill); err != nil {
		return nil, err
	}
	return skill, nil
}

func (m *Memory) mergeIntoSkill(existing *models.Skill, traj models.Trajectory) (*models.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing.CurrentVersion++
	existing.ActionSequence = traj.Actions
	existing.VersionHistory = append(existing.VersionHistory, models.SkillVersion{
		Version:        existing.CurrentVersion,
		CreatedAt:      time.Now(),
		ActionSequence: traj.Actions,
		ChangeReason:   models.ChangeMerge,
	})
	return existing, nil
}

// RecordFailedAction accumulates repeated failures toward an anti-pattern:
// after 3 occurrences of the same (domain, action type) failing under
// matching preconditions, an AntiPattern is synthesized.
func (m *Memory) RecordFailedAction(domain string, pre models.Preconditions, action models.ActionStep, consequence string) *models.AntiPattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain + "|" + action.Type + "|" + action.Selector
	m.failureStreak[key]++

	if m.failureStreak[key] < antiPatternOccurrenceThreshold {
		return nil
	}

	ap := &models.AntiPattern{
		ID:              patternHashID(key),
		Preconditions:   pre,
		Action:          action,
		OccurrenceCount: m.failureStreak[key],
		Consequence:     consequence,
		CreatedAt:       time.Now(),
	}
	m.antiPatterns[domain] = append(m.antiPatterns[domain], ap)
	return ap
}

// IsAntiPattern reports whether action is a known anti-pattern for domain
// under the given preconditions.
func (m *Memory) IsAntiPattern(domain string, ctx models.PageContext, action models.ActionStep) (*models.AntiPattern, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ap := range m.antiPatterns[domain] {
		if ap.Action.Type != action.Type || ap.Action.Selector != action.Selector {
			continue
		}
		if preconditionsMet(ap.Preconditions, ctx) {
			return ap, true
		}
	}
	return nil, false
}

// Explain renders a deterministic, human-readable description of a skill's
// action sequence.
func Explain(s *models.Skill) models.SkillExplanation {
	steps := make([]string, 0, len(s.ActionSequence))
	for _, a := range s.ActionSequence {
		steps = append(steps, explainStep(a))
	}
	return models.SkillExplanation{SkillName: s.Name, Steps: steps}
}

func explainStep(a models.ActionStep) string {
	switch a.Type {
	case "wait":
		return fmt.Sprintf("wait %dms", a.Milliseconds)
	case "click":
		return fmt.Sprintf("click %q", a.Selector)
	case "scroll":
		return fmt.Sprintf("scroll %s by %d", a.Direction, a.Amount)
	case "execute_js":
		return "run custom script"
	case "scrape":
		return fmt.Sprintf("scrape %q", a.Selector)
	default:
		return a.Type
	}
}

// GetStats summarizes what the memory currently holds.
type Stats struct {
	SkillCount       int
	AntiPatternCount int
}

func (m *Memory) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, v := range m.antiPatterns {
		total += len(v)
	}
	return Stats{SkillCount: len(m.skills), AntiPatternCount: total}
}

func skillID(name string, p models.Preconditions) string {
	sum := sha256.Sum256([]byte(name + "|" + strings.Join(p.DomainPatterns, ",")))
	return hex.EncodeToString(sum[:])[:16]
}

func patternHashID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
