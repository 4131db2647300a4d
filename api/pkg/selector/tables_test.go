package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTableIsComplete(t *testing.T) {
	table := DefaultTable()

	assert.NotEmpty(t, table.Version)

	strategies := []Strategy{
		table.LoginEmail,
		table.LoginPassword,
		table.LoginSubmit,
		table.MFASendCode,
		table.OTPDigitInputs,
		table.OTPSingleInput,
		table.OTPSubmit,
		table.WizardCreate,
		table.WizardName,
		table.WizardFormSubmit,
		table.WizardScopeInput,
		table.WizardTokenText,
		table.WizardTokenCopy,
	}

	for _, strategy := range strategies {
		assert.NotEmpty(t, strategy.Action, "every strategy needs a name")
		assert.NotEmptyf(t, strategy.Locators, "strategy %q needs at least one locator", strategy.Action)
	}
}

func TestLocatorString(t *testing.T) {
	assert.Equal(t, "css(#email)", CSS("#email").String())
	assert.Equal(t, "xpath(//input)", XPath("//input").String())
	assert.Equal(t, "text(Create new)", Text("Create new").String())
}
