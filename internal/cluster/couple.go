package cluster

import (
	"sort"
	"strconv"
	"strings"
)

// Couple binds the groups forming one replica set. Its key is the sorted
// group ids joined by ':'; once created a couple is only ever equal to that
// same id set.
type Couple struct {
	key      string
	groupIDs []int // sorted
	groups   []*Group

	Status     GroupStatus
	StatusText string
}

// CoupleKey computes the canonical key for a set of group ids
func CoupleKey(ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ":")
}

func newCouple(ids []int) *Couple {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	return &Couple{
		key:      CoupleKey(sorted),
		groupIDs: sorted,
		Status:   GroupInit,
	}
}

// Key returns the couple key
func (c *Couple) Key() string {
	return c.key
}

// GroupIDs returns the sorted member group ids
func (c *Couple) GroupIDs() []int {
	return c.groupIDs
}

// Groups returns the bound member groups
func (c *Couple) Groups() []*Group {
	return c.groups
}

// check reports whether ids name exactly this couple's groups; ids must be
// sorted
func (c *Couple) check(ids []int) bool {
	if len(ids) != len(c.groupIDs) {
		return false
	}
	for i, id := range ids {
		if id != c.groupIDs[i] {
			return false
		}
	}
	return true
}

func (c *Couple) bindGroup(g *Group) {
	for _, bound := range c.groups {
		if bound == g {
			return
		}
	}
	c.groups = append(c.groups, g)
	g.couple = c
}

// deriveStatus folds member group statuses into the couple status, worst
// member wins
func (c *Couple) deriveStatus() {
	if len(c.groups) == 0 {
		c.Status = GroupInit
		c.StatusText = "No bound groups"
		return
	}

	worst := c.groups[0].Status
	for _, g := range c.groups[1:] {
		if g.Status.severity() > worst.severity() {
			worst = g.Status
		}
	}
	c.Status = worst
	if worst == GroupCoupled {
		c.StatusText = "Couple is OK"
	} else {
		c.StatusText = "Couple status is derived from the worst group status"
	}
}
