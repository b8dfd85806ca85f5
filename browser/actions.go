package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/sift/models"
)

// actionTimeout is the per-action deadline, matching the browser action
// vocabulary procedural.Memory replays (wait/click/scroll/execute_js/scrape).
const actionTimeout = 10 * time.Second

func executeActions(ctx context.Context, page *rod.Page, actions []models.ActionStep) error {
	for i, action := range actions {
		if err := executeSingleAction(ctx, page, action); err != nil {
			return fmt.Errorf("action %d (%s) failed after %d completed: %w", i, action.Type, i, err)
		}
	}
	return nil
}

func executeSingleAction(ctx context.Context, page *rod.Page, action models.ActionStep) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	p := page.Context(actionCtx)

	switch action.Type {
	case "wait":
		return execWait(p, action)
	case "click":
		return execClick(p, action)
	case "scroll":
		return execScroll(p, action)
	case "execute_js":
		return execJS(p, action)
	case "scrape":
		// marker step for multi-step skills; state capture happens at the
		// call site after all actions run.
		return nil
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func execWait(p *rod.Page, action models.ActionStep) error {
	if action.Selector != "" {
		return p.WaitElementsMoreThan(action.Selector, 0)
	}
	if action.Milliseconds > 0 {
		d := time.Duration(action.Milliseconds) * time.Millisecond
		select {
		case <-time.After(d):
			return nil
		case <-p.GetContext().Done():
			return p.GetContext().Err()
		}
	}
	return nil
}

func execClick(p *rod.Page, action models.ActionStep) error {
	if action.Selector == "" {
		return fmt.Errorf("click action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func execScroll(p *rod.Page, action models.ActionStep) error {
	amount := action.Amount
	if amount <= 0 {
		amount = 1
	}

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < amount; i++ {
		var delta int
		if action.Direction == "up" {
			delta = -viewportHeight
		} else {
			delta = viewportHeight
		}
		if err := p.Mouse.Scroll(0, float64(delta), 0); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func execJS(p *rod.Page, action models.ActionStep) error {
	if action.Code == "" {
		return fmt.Errorf("execute_js action requires code")
	}
	_, err := p.Eval(action.Code)
	return err
}
