package selector

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Resolve finds the element a locator points at, bounded by ctx. The caller
// decides how long a try may take.
func Resolve(ctx context.Context, page *rod.Page, loc Locator) (*rod.Element, error) {
	p := page.Context(ctx)

	switch loc.Kind {
	case LocatorCSS:
		return p.Element(loc.Value)
	case LocatorXPath:
		return p.ElementX(loc.Value)
	case LocatorText:
		return p.ElementR("*", loc.Value)
	default:
		return nil, fmt.Errorf("unknown locator kind %q", loc.Kind)
	}
}

// ResolveAll finds every element a locator matches. Text locators resolve
// to at most one element.
func ResolveAll(ctx context.Context, page *rod.Page, loc Locator) (rod.Elements, error) {
	p := page.Context(ctx)

	switch loc.Kind {
	case LocatorCSS:
		return p.Elements(loc.Value)
	case LocatorXPath:
		return p.ElementsX(loc.Value)
	case LocatorText:
		el, err := p.ElementR("*", loc.Value)
		if err != nil {
			return nil, err
		}
		return rod.Elements{el}, nil
	default:
		return nil, fmt.Errorf("unknown locator kind %q", loc.Kind)
	}
}

// ElementAction adapts element-level work into an Action: resolve the
// locator, check visibility, run fn. Resolution and action errors are
// retryable; only the caller's fn may declare something fatal.
func ElementAction(page *rod.Page, fn func(el *rod.Element) error) Action {
	return func(ctx context.Context, loc Locator) (Outcome, error) {
		el, err := Resolve(ctx, page, loc)
		if err != nil {
			return OutcomeRetryable, fmt.Errorf("resolve %s: %w", loc, err)
		}

		if visible, err := el.Visible(); err != nil || !visible {
			return OutcomeRetryable, fmt.Errorf("element %s not visible", loc)
		}

		if err := fn(el.Context(ctx)); err != nil {
			return OutcomeRetryable, fmt.Errorf("act on %s: %w", loc, err)
		}
		return OutcomeOK, nil
	}
}

// Click clicks the first matching, visible element.
func Click(page *rod.Page) Action {
	return ElementAction(page, func(el *rod.Element) error {
		if err := el.ScrollIntoView(); err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

// Fill clears the matching input and types value into it.
func Fill(page *rod.Page, value string) Action {
	return ElementAction(page, func(el *rod.Element) error {
		// Typing over a full selection replaces any existing value.
		_ = el.SelectAllText()
		return el.Input(value)
	})
}
