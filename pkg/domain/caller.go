package domain

// Caller is the resolved identity of the party submitting an operation,
// together with its authorization scope. The scope is capability-tagged
// rather than hierarchical: a trader acting for a company and the company
// itself both resolve to the same shape.
type Caller struct {
	ParticipantID string
	Companies     []Symbol
	Accounts      []AccountID
}

// MayActForCompany reports whether the caller is authorized to act on behalf
// of the given company.
func (c Caller) MayActForCompany(symbol Symbol) bool {
	for _, s := range c.Companies {
		if s == symbol {
			return true
		}
	}
	return false
}

// MayActForAccount reports whether the caller is authorized to move funds
// through the given account.
func (c Caller) MayActForAccount(id AccountID) bool {
	for _, a := range c.Accounts {
		if a == id {
			return true
		}
	}
	return false
}

// IsZero reports whether no caller was resolved.
func (c Caller) IsZero() bool {
	return c.ParticipantID == "" && len(c.Companies) == 0 && len(c.Accounts) == 0
}
