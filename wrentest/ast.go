package wrentest

// srcLine is embedded by every syntax node to record its source line.
type srcLine int

func (l srcLine) pos() int { return int(l) }

type node interface{ pos() int }

type (
	numLit    struct{ srcLine; v float64 }
	strLit    struct{ srcLine; v string }
	interpLit struct {
		srcLine
		parts []node
	}
	boolLit  struct{ srcLine; v bool }
	nullLit  struct{ srcLine }
	thisExpr struct{ srcLine }
	listLit  struct {
		srcLine
		elems []node
	}
	mapLit struct {
		srcLine
		keys, vals []node
	}
	nameExpr  struct{ srcLine; name string }
	fieldExpr struct {
		srcLine
		name   string
		static bool
	}
	// callExpr is a method call; recv is nil for an implicit receiver.
	callExpr struct {
		srcLine
		recv node
		name string
		sig  string
		args []node
	}
	subscriptExpr struct {
		srcLine
		recv node
		args []node
	}
	assignExpr struct {
		srcLine
		target, value node
	}
	binaryExpr struct {
		srcLine
		op          string
		left, right node
	}
	logicalExpr struct {
		srcLine
		and         bool
		left, right node
	}
	isExpr struct {
		srcLine
		left, right node
	}
	unaryExpr struct {
		srcLine
		op      string
		operand node
	}
	condExpr struct {
		srcLine
		cond, then, els node
	}
	fnLit struct {
		srcLine
		fn *fnDecl
	}
)

type (
	varStmt struct {
		srcLine
		name string
		init node
	}
	blockStmt struct {
		srcLine
		body []node
	}
	ifStmt struct {
		srcLine
		cond, then, els node
	}
	whileStmt struct {
		srcLine
		cond, body node
	}
	forStmt struct {
		srcLine
		name      string
		seq, body node
	}
	returnStmt struct {
		srcLine
		value node
	}
	breakStmt  struct{ srcLine }
	importStmt struct {
		srcLine
		module string
		names  []string
	}
	classStmt struct {
		srcLine
		name    string
		super   string
		foreign bool
		members []*memberDecl
	}
)

// fnDecl is a callable body. Single-line bodies are an expression whose
// value is returned.
type fnDecl struct {
	name   string
	params []string
	body   []node
	expr   node
}

type memberDecl struct {
	fn        *fnDecl
	name      string
	sig       string
	line      int
	static    bool
	foreign   bool
	construct bool
}
