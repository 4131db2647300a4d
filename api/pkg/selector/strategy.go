// Package selector turns UI-touching steps into data. Every logical action
// on the target console carries an ordered list of locators; the retry
// orchestrator is the sole interpreter, so UI drift becomes a table update
// instead of a code change.
package selector

import (
	"fmt"
)

type LocatorKind string

const (
	LocatorCSS   LocatorKind = "css"
	LocatorXPath LocatorKind = "xpath"
	// LocatorText matches visible element text against a regex.
	LocatorText LocatorKind = "text"
)

// Locator describes one way to find a UI element.
type Locator struct {
	Kind  LocatorKind `json:"kind"`
	Value string      `json:"value"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%s(%s)", l.Kind, l.Value)
}

func CSS(value string) Locator   { return Locator{Kind: LocatorCSS, Value: value} }
func XPath(value string) Locator { return Locator{Kind: LocatorXPath, Value: value} }
func Text(value string) Locator  { return Locator{Kind: LocatorText, Value: value} }

// Strategy is the ordered candidate list for one logical UI action,
// most reliable locator first.
type Strategy struct {
	Action   string    `json:"action"`
	Locators []Locator `json:"locators"`
}
