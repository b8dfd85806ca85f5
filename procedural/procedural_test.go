package procedural

import (
	"testing"

	"github.com/use-agent/sift/models"
)

func newTestMemory() *Memory {
	return New(64, nil, 5)
}

func sampleContext(domain string) models.PageContext {
	return models.PageContext{
		URL:                "https://" + domain + "/items/1",
		Domain:             domain,
		PageType:           "listing",
		Language:           "en",
		AvailableSelectors: []string{"div.item"},
	}
}

func TestAddSkillAndFindApplicableSkills(t *testing.T) {
	m := newTestMemory()
	ctx := sampleContext("shop.example.com")

	skill := &models.Skill{
		Name: "paginate-listing",
		Preconditions: models.Preconditions{
			DomainPatterns:    []string{"shop.example.com"},
			RequiredSelectors: []string{"div.item"},
			PageType:          "listing",
		},
		ActionSequence: []models.ActionStep{{Type: "scroll", Direction: "down", Amount: 500}},
	}
	if err := m.AddSkill(skill); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}

	matches := m.FindApplicableSkills(ctx, 5)
	if len(matches) != 1 {
		t.Fatalf("expected 1 applicable skill, got %d: %+v", len(matches), matches)
	}
	if matches[0].Skill.Name != "paginate-listing" {
		t.Errorf("got skill %q", matches[0].Skill.Name)
	}
}

func TestFindApplicableSkills_FiltersByPreconditions(t *testing.T) {
	m := newTestMemory()
	skill := &models.Skill{
		Name: "needs-login-selector",
		Preconditions: models.Preconditions{
			DomainPatterns:    []string{"shop.example.com"},
			RequiredSelectors: []string{"button.login"},
		},
		ActionSequence: []models.ActionStep{{Type: "click", Selector: "button.login"}},
	}
	_ = m.AddSkill(skill)

	ctx := sampleContext("shop.example.com") // doesn't have button.login selector
	matches := m.FindApplicableSkills(ctx, 5)
	if len(matches) != 0 {
		t.Errorf("expected skill filtered out by missing precondition, got %+v", matches)
	}
}

func TestWildcardDomainPatternMatch(t *testing.T) {
	if !anyMatchesDomainPattern([]string{"*.example.com"}, "shop.example.com") {
		t.Error("expected wildcard subdomain match")
	}
	if anyMatchesDomainPattern([]string{"*.example.com"}, "example.com") {
		t.Error("bare domain should not match *.example.com wildcard")
	}
}

func TestRecordOutcome_RollsBackAfterRepeatedFailures(t *testing.T) {
	m := New(64, nil, 3)
	skill := &models.Skill{
		Name:           "flaky-skill",
		ActionSequence: []models.ActionStep{{Type: "click", Selector: "a.v1"}},
	}
	_ = m.AddSkill(skill)
	// simulate an update producing a v2 that will prove unreliable
	m.mu.Lock()
	skill.VersionHistory = append(skill.VersionHistory, models.SkillVersion{
		Version:        2,
		ActionSequence: []models.ActionStep{{Type: "click", Selector: "a.v2-broken"}},
		ChangeReason:   models.ChangeUpdate,
	})
	skill.ActionSequence = []models.ActionStep{{Type: "click", Selector: "a.v2-broken"}}
	skill.CurrentVersion = 2
	m.mu.Unlock()

	for i := 0; i < 4; i++ {
		m.RecordOutcome(skill.ID, false)
	}

	if skill.CurrentVersion != 1 {
		t.Errorf("expected rollback to version 1, got version %d", skill.CurrentVersion)
	}
	if skill.ActionSequence[0].Selector != "a.v1" {
		t.Errorf("expected action sequence reverted to v1, got %+v", skill.ActionSequence)
	}
}

func TestRecordFailedAction_SynthesizesAntiPatternAfterThreeFailures(t *testing.T) {
	m := newTestMemory()
	action := models.ActionStep{Type: "click", Selector: "button.subscribe"}
	pre := models.Preconditions{DomainPatterns: []string{"news.example.com"}}

	var ap *models.AntiPattern
	for i := 0; i < 3; i++ {
		ap = m.RecordFailedAction("news.example.com", pre, action, "triggers an infinite modal loop")
	}
	if ap == nil {
		t.Fatal("expected an anti-pattern to be synthesized on the 3rd failure")
	}

	ctx := sampleContext("news.example.com")
	found, ok := m.IsAntiPattern("news.example.com", ctx, action)
	if !ok || found.ID != ap.ID {
		t.Errorf("expected IsAntiPattern to report the synthesized pattern, got %+v ok=%v", found, ok)
	}
}

func TestExtractSkillFromTrajectory_RejectsFailedTrajectory(t *testing.T) {
	m := newTestMemory()
	_, err := m.ExtractSkillFromTrajectory(models.Trajectory{Success: false}, "x", "y")
	if err == nil {
		t.Error("expected an error extracting a skill from a failed trajectory")
	}
}

func TestExplain_RendersDeterministicSteps(t *testing.T) {
	skill := &models.Skill{
		Name: "example",
		ActionSequence: []models.ActionStep{
			{Type: "wait", Milliseconds: 500},
			{Type: "click", Selector: "button.load-more"},
			{Type: "scroll", Direction: "down", Amount: 300},
		},
	}
	exp := Explain(skill)
	if len(exp.Steps) != 3 {
		t.Fatalf("expected 3 explained steps, got %d", len(exp.Steps))
	}
	if exp.Steps[1] != `click "button.load-more"` {
		t.Errorf("unexpected step text: %q", exp.Steps[1])
	}
}
