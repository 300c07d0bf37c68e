package condition

// node is an element of a parsed guard expression.
type node interface {
	position() int
}

type literalNode struct {
	pos   int
	value any
}

type nameNode struct {
	pos  int
	name string
}

type attrNode struct {
	pos    int
	target node
	name   string
}

type indexNode struct {
	pos    int
	target node
	index  node
}

type listNode struct {
	pos   int
	elems []node
	tuple bool
}

type dictNode struct {
	pos    int
	keys   []node
	values []node
}

type unaryNode struct {
	pos     int
	op      string
	operand node
}

type binaryNode struct {
	pos         int
	op          string
	left, right node
}

// compareNode holds a chained comparison: a < b <= c.
type compareNode struct {
	pos    int
	left   node
	ops    []string
	rights []node
}

type logicalNode struct {
	pos         int
	op          string // "and" or "or"
	left, right node
}

// callNode is parsed only so that it can be rejected by name.
type callNode struct {
	pos  int
	fn   node
	args []node
}

func (n *literalNode) position() int { return n.pos }
func (n *nameNode) position() int    { return n.pos }
func (n *attrNode) position() int    { return n.pos }
func (n *indexNode) position() int   { return n.pos }
func (n *listNode) position() int    { return n.pos }
func (n *dictNode) position() int    { return n.pos }
func (n *unaryNode) position() int   { return n.pos }
func (n *binaryNode) position() int  { return n.pos }
func (n *compareNode) position() int { return n.pos }
func (n *logicalNode) position() int { return n.pos }
func (n *callNode) position() int    { return n.pos }
