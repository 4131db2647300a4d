package selector

// Table is the versioned set of strategies for the target console. It is
// injected as data; nothing outside this package interprets locators.
type Table struct {
	Version string

	LoginEmail    Strategy
	LoginPassword Strategy
	LoginSubmit   Strategy

	MFASendCode    Strategy
	OTPDigitInputs Strategy
	OTPSingleInput Strategy
	OTPSubmit      Strategy

	WizardCreate     Strategy
	WizardName       Strategy
	WizardFormSubmit Strategy
	WizardScopeInput Strategy
	WizardTokenText  Strategy
	WizardTokenCopy  Strategy
}

// DefaultTable carries the locators observed working against the current
// console build. The UI is explicitly unstable; when it drifts, update the
// table, bump the version, leave the code alone.
func DefaultTable() Table {
	return Table{
		Version: "2025-07",

		LoginEmail: Strategy{
			Action: "fill login email",
			Locators: []Locator{
				XPath(`/html/body/div[1]/div[1]/div[4]/section/div[2]/div/div/div/div[2]/div/div[2]/input`),
				CSS(`input[type="email"]`),
				CSS(`input[name="email"]`),
				CSS(`input[placeholder*="mail"]`),
			},
		},
		LoginPassword: Strategy{
			Action: "fill login password",
			Locators: []Locator{
				XPath(`/html/body/div[1]/div[1]/div[4]/section/div[2]/div/div/div/div[3]/div/div[2]/input`),
				CSS(`input[type="password"]`),
				CSS(`input[name="password"]`),
			},
		},
		LoginSubmit: Strategy{
			Action: "submit login form",
			Locators: []Locator{
				Text(`Sign in`),
				CSS(`button[type="submit"]`),
				CSS(`.n-button--primary-type`),
			},
		},

		MFASendCode: Strategy{
			Action: "send security code",
			Locators: []Locator{
				Text(`Send Security Code`),
				Text(`Send Code`),
				XPath(`/html/body/div[1]/div[1]/div[4]/section/div[2]/div/div/div/div[3]/div/button`),
				CSS(`button[type="submit"]`),
			},
		},
		OTPDigitInputs: Strategy{
			Action: "locate otp digit inputs",
			Locators: []Locator{
				CSS(`input[maxlength="1"]`),
				CSS(`input[type="text"][maxlength="1"]`),
				CSS(`.otp-digit`),
				CSS(`input[class*="digit"]`),
				CSS(`input[id*="digit"]`),
			},
		},
		OTPSingleInput: Strategy{
			Action: "fill otp single input",
			Locators: []Locator{
				CSS(`input[name*="code"]`),
				CSS(`input[name*="otp"]`),
				CSS(`input[placeholder*="code" i]`),
				CSS(`.otp-input`),
				CSS(`input[type="number"]`),
			},
		},
		OTPSubmit: Strategy{
			Action: "submit otp",
			Locators: []Locator{
				CSS(`button[type="submit"]`),
				Text(`Verify`),
				Text(`Confirm`),
				Text(`Continue`),
			},
		},

		WizardCreate: Strategy{
			Action: "open integration form",
			Locators: []Locator{
				XPath(`/html/body/div[1]/div[1]/div[4]/section/div/section/div/div/div/div[2]/div/div/div[2]/button[2]/span`),
				Text(`Create new integration`),
				CSS(`#no-apps-found-btn-positive-action`),
				CSS(`.n-button--primary-type`),
				XPath(`//span[normalize-space()='Create new integration']/ancestor::button`),
			},
		},
		WizardName: Strategy{
			Action: "fill integration name",
			Locators: []Locator{
				XPath(`/html/body/div[1]/div[1]/div[4]/section/div/section/div/div/div/div[2]/div/div[2]/div/div/div[1]/div/form/div[1]/div[1]/div/div[1]/div[1]/input`),
				CSS(`form input[type="text"]`),
				CSS(`input[placeholder*="name" i]`),
			},
		},
		WizardFormSubmit: Strategy{
			Action: "submit integration form",
			Locators: []Locator{
				XPath(`/html/body/div[1]/div[1]/div[4]/section/div/section/div/div/div/div[2]/div/div[2]/div/div/div[2]/div/button[2]`),
				CSS(`#btn-next`),
				Text(`Create`),
			},
		},
		WizardScopeInput: Strategy{
			Action: "focus scope input",
			Locators: []Locator{
				XPath(`//input[@placeholder='Search scopes...']`),
				XPath(`//div[contains(@class, 'n-base-selection-input-tag')]//input`),
				XPath(`//*[contains(@placeholder, 'Search') or contains(@placeholder, 'search')]`),
			},
		},
		WizardTokenText: Strategy{
			Action: "read minted token",
			Locators: []Locator{
				XPath(`/html/body/div[7]/div/div/div[1]/div/div[3]/div[1]/div/div[2]/p`),
				XPath(`//p[contains(text(), 'pit-')]`),
				XPath(`//pre[contains(text(), 'pit-')]`),
				CSS(`pre, code`),
			},
		},
		WizardTokenCopy: Strategy{
			Action: "copy minted token",
			Locators: []Locator{
				XPath(`/html/body/div[7]/div/div/div[1]/div/div[3]/div[1]/div/div[2]/button/span`),
				Text(`Copy`),
				CSS(`button[class*="copy"]`),
			},
		},
	}
}
