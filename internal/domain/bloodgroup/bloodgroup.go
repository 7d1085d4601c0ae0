// Package bloodgroup defines the eight ABO/Rh groups and the
// donor-to-recipient compatibility table.
package bloodgroup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

type Group string

const (
	APositive  Group = "A_POSITIVE"
	ANegative  Group = "A_NEGATIVE"
	BPositive  Group = "B_POSITIVE"
	BNegative  Group = "B_NEGATIVE"
	ABPositive Group = "AB_POSITIVE"
	ABNegative Group = "AB_NEGATIVE"
	OPositive  Group = "O_POSITIVE"
	ONegative  Group = "O_NEGATIVE"
)

// All lists every group in a fixed order.
var All = []Group{
	APositive, ANegative, BPositive, BNegative,
	ABPositive, ABNegative, OPositive, ONegative,
}

// recipients maps a donor group to the groups it can give to.
var recipients = map[Group][]Group{
	ONegative:  {ONegative, OPositive, ANegative, APositive, BNegative, BPositive, ABNegative, ABPositive},
	OPositive:  {OPositive, APositive, BPositive, ABPositive},
	ANegative:  {ANegative, APositive, ABNegative, ABPositive},
	APositive:  {APositive, ABPositive},
	BNegative:  {BNegative, BPositive, ABNegative, ABPositive},
	BPositive:  {BPositive, ABPositive},
	ABNegative: {ABNegative, ABPositive},
	ABPositive: {ABPositive},
}

func (g Group) Valid() bool {
	_, ok := recipients[g]
	return ok
}

func (g Group) String() string { return string(g) }

// Parse accepts the canonical names case-insensitively.
func Parse(s string) (Group, error) {
	g := Group(strings.ToUpper(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", apperr.Validation(fmt.Sprintf("unrecognized blood group %q", s))
	}
	return g, nil
}

// CompatibleRecipients returns the recipient groups donor can serve. The
// returned slice is a copy.
func CompatibleRecipients(donor Group) []Group {
	out := make([]Group, len(recipients[donor]))
	copy(out, recipients[donor])
	return out
}

// CanDonate reports whether blood of group donor may be given to recipient.
func CanDonate(donor, recipient Group) bool {
	for _, g := range recipients[donor] {
		if g == recipient {
			return true
		}
	}
	return false
}

// VerifyTable checks that the table covers exactly the eight groups and
// only references known groups. It is run once at startup.
func VerifyTable() error {
	return verify(recipients)
}

func verify(table map[Group][]Group) error {
	known := make(map[Group]bool, len(All))
	for _, g := range All {
		known[g] = true
	}

	var problems []string
	for _, g := range All {
		if _, ok := table[g]; !ok {
			problems = append(problems, fmt.Sprintf("missing donor group %s", g))
		}
	}
	for donor, recips := range table {
		if !known[donor] {
			problems = append(problems, fmt.Sprintf("unknown donor group %s", donor))
			continue
		}
		self := false
		for _, r := range recips {
			if !known[r] {
				problems = append(problems, fmt.Sprintf("unknown recipient group %s for %s", r, donor))
			}
			if r == donor {
				self = true
			}
		}
		if !self {
			problems = append(problems, fmt.Sprintf("%s cannot donate to itself", donor))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("blood group compatibility table: %s", strings.Join(problems, "; "))
	}
	return nil
}
