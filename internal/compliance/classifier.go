// Package compliance maps donor profiles to regulatory tiers.
//
// Classify is the single authoritative implementation. Any other copy (for
// example a client-side pre-check) must pass testdata/contract.json.
package compliance

import "strings"

// CountryDomestic marks a donor residing in the country of the election.
const CountryDomestic = "domestic"

// MinZipLength is the shortest zip accepted for the compliant tier.
const MinZipLength = 5

// Profile holds the donor fields the classifier reads.
type Profile struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	Zip        string `json:"zip"`
	Country    string `json:"country"`
	ForeignID  string `json:"foreign_id"`
	Employed   bool   `json:"employed"`
	Occupation string `json:"occupation"`
	Employer   string `json:"employer"`
}

// Classify returns TierCompliant when every required field is present and
// TierGuest otherwise. Whitespace-only values count as missing.
func Classify(p Profile) TierName {
	if !hasIdentity(p) || !hasAddress(p) || !hasResidency(p) || !hasEmployment(p) {
		return TierGuest
	}
	return TierCompliant
}

// Missing lists the fields that keep p out of the compliant tier, in a
// stable order suitable for prompting the donor.
func Missing(p Profile) []string {
	var missing []string
	check := func(field string, ok bool) {
		if !ok {
			missing = append(missing, field)
		}
	}
	check("first_name", present(p.FirstName))
	check("last_name", present(p.LastName))
	check("address", present(p.Address))
	check("city", present(p.City))
	check("state", present(p.State))
	check("zip", len(strings.TrimSpace(p.Zip)) >= MinZipLength)
	check("foreign_id", hasResidency(p))
	if p.Employed {
		check("occupation", present(p.Occupation))
		check("employer", present(p.Employer))
	}
	return missing
}

func hasIdentity(p Profile) bool {
	return present(p.FirstName) && present(p.LastName)
}

func hasAddress(p Profile) bool {
	return len(strings.TrimSpace(p.Zip)) >= MinZipLength &&
		present(p.City) && present(p.State) && present(p.Address)
}

func hasResidency(p Profile) bool {
	return strings.TrimSpace(p.Country) == CountryDomestic || present(p.ForeignID)
}

func hasEmployment(p Profile) bool {
	if !p.Employed {
		return true
	}
	return present(p.Occupation) && present(p.Employer)
}

func present(s string) bool { return strings.TrimSpace(s) != "" }
