package attempt

import (
	"fmt"

	"assessment-attempt-service/internal/domain"
)

// Cursor keeps the current question index within [0, count).
type Cursor struct {
	index int
	count int
}

func NewCursor(count int) (*Cursor, error) {
	if count <= 0 {
		return nil, domain.ErrEmptyAssessment
	}
	return &Cursor{count: count}, nil
}

// Next moves forward; at the last question it returns the index unchanged.
func (c *Cursor) Next() int {
	if c.index < c.count-1 {
		c.index++
	}
	return c.index
}

// Previous moves back; at the first question it returns the index unchanged.
func (c *Cursor) Previous() int {
	if c.index > 0 {
		c.index--
	}
	return c.index
}

func (c *Cursor) JumpTo(index int) error {
	if index < 0 || index >= c.count {
		return fmt.Errorf("%w: %d not in [0, %d)", domain.ErrOutOfRange, index, c.count)
	}
	c.index = index
	return nil
}

func (c *Cursor) Index() int { return c.index }

func (c *Cursor) Count() int { return c.count }
