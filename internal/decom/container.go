package decom

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"example.com/tlmdecom/internal/mdb"
)

// decodeContainer decodes c at the cursor: the entries of every ancestor
// from the root down, then those of c. With resolve set the decoder then
// descends into the first inheritor whose restriction holds, level by level.
// It returns the most specific container decoded.
func (pc *processingContext) decodeContainer(c *mdb.SequenceContainer, resolve bool) error {
	pc.depth++
	defer func() { pc.depth-- }()
	if pc.depth > maxContainerDepth {
		return pc.fail(fmt.Errorf("%w: containers nested deeper than %d", ErrUnsupportedConstruct, maxContainerDepth))
	}

	pc.containerStart = pc.buf.Position()
	for _, anc := range c.Ancestors() {
		if err := pc.entries(anc); err != nil {
			return err
		}
	}
	if !resolve {
		return nil
	}
	for cur := c; ; {
		next := pc.selectInheritor(cur)
		if next == nil {
			pc.result.Container = cur.Qualified()
			return nil
		}
		if err := pc.entries(next); err != nil {
			return err
		}
		cur = next
	}
}

func (pc *processingContext) entries(c *mdb.SequenceContainer) error {
	pc.container = c.Qualified()
	for _, e := range c.Entries {
		if err := pc.processEntry(e); err != nil {
			return err
		}
	}
	pc.advance()
	return nil
}

// selectInheritor returns the first direct inheritor of c, in declaration
// order, whose restriction holds against the values decoded so far.
func (pc *processingContext) selectInheritor(c *mdb.SequenceContainer) *mdb.SequenceContainer {
	var chosen *mdb.SequenceContainer
	var ties []string
	for _, sub := range pc.db.Inheritors(c) {
		if !Evaluate(sub.Restriction, pc.result) {
			continue
		}
		if chosen == nil {
			chosen = sub
			continue
		}
		ties = append(ties, sub.Qualified())
	}
	if chosen == nil {
		return nil
	}
	fields := logrus.Fields{"base": c.Qualified(), "container": chosen.Qualified()}
	if len(ties) > 0 {
		fields["ignored"] = ties
		pc.log.WithFields(fields).Warn("several inheritors match, using the first declared")
	} else {
		pc.log.WithFields(fields).Debug("inheritor selected")
	}
	return chosen
}
