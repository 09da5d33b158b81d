package relayselector

// LocationFilter narrows candidate relays by geography. Empty fields are
// wildcards.
type LocationFilter struct {
	CountryCode string
	CityCode    string
}

func (f LocationFilter) matches(countryCode, cityCode string) bool {
	if f.CountryCode != "" && f.CountryCode != countryCode {
		return false
	}
	if f.CityCode != "" && f.CityCode != cityCode {
		return false
	}
	return true
}

// RelayConstraints narrows the relay list down to the candidates a
// connection attempt may use. The settings-patch-editable
// relay_overrides[] (spec.md §6) are applied before constraints, not
// represented here.
type RelayConstraints struct {
	Location      *LocationFilter
	OwnershipOnly bool // true restricts to Mullvad-owned relays
	Multihop      bool
}
