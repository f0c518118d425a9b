//go:build linux

package splittunnel

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/vishvananda/netlink"
)

// NetlinkRuleController implements RuleController using netlink policy
// routing rules for both address families.
type NetlinkRuleController struct{}

// AddExclusionRule adds "fwmark mark lookup table" for IPv4 and IPv6.
func (NetlinkRuleController) AddExclusionRule(mark uint32, table, priority int) error {
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		if err := netlink.RuleAdd(exclusionRule(family, mark, table, priority)); err != nil && !errors.Is(err, syscall.EEXIST) {
			return fmt.Errorf("splittunnel: add rule: %w", err)
		}
	}
	return nil
}

// DeleteExclusionRule removes the rules added by AddExclusionRule.
func (NetlinkRuleController) DeleteExclusionRule(mark uint32, table, priority int) error {
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		err := netlink.RuleDel(exclusionRule(family, mark, table, priority))
		if err != nil && !errors.Is(err, syscall.ENOENT) && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("splittunnel: delete rule: %w", err)
		}
	}
	return nil
}

func exclusionRule(family int, mark uint32, table, priority int) *netlink.Rule {
	rule := netlink.NewRule()
	rule.Family = family
	rule.Mark = mark
	rule.Table = table
	rule.Priority = priority
	return rule
}
